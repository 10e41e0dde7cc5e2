package onboard

import (
	"context"
	"sync"
	"time"

	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/CodedInternet/pitank/onboard/hardware"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Actuator names one of the crane servos.
type Actuator string

const (
	Lift    Actuator = "lift"
	Grabber Actuator = "grabber"
)

const (
	DefaultStep        = 2.0
	DefaultStepDelay   = 20 * time.Millisecond
	DefaultSettleDelay = 500 * time.Millisecond
)

// ServoState is the angle of one servo and the bounds it is held within.
type ServoState struct {
	Angle float64 `json:"angle"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (s ServoState) Midpoint() float64 {
	return (s.Min + s.Max) / 2
}

// CraneStatus is the snapshot reported to clients.
type CraneStatus struct {
	LiftAngle       float64 `json:"lift_angle"`
	GrabberAngle    float64 `json:"grabber_angle"`
	LiftPosition    string  `json:"lift_position"`
	GrabberPosition string  `json:"grabber_position"`
	DriverAvailable bool    `json:"driver_available"`
}

// CraneConfig describes both servos and how gradual moves are paced.
type CraneConfig struct {
	Lift    ServoConfig
	Grabber ServoConfig

	Step        float64
	StepDelay   time.Duration
	SettleDelay time.Duration
}

type servo struct {
	name       Actuator
	driver     hardware.ServoDriver
	state      ServoState
	safe       float64
	high, low  string
	cancel     context.CancelFunc
	generation uint64
}

func (s *servo) label() string {
	if s.state.Angle > s.state.Midpoint() {
		return s.high
	}
	return s.low
}

// Crane positions the lift and grabber servos. The lock is only held for a
// single write, gradual moves take it once per step.
type Crane struct {
	lock   sync.Mutex
	servos map[Actuator]*servo

	step        float64
	stepDelay   time.Duration
	settleDelay time.Duration
	logger      golog.Logger
}

// NewCrane takes ownership of both drivers and moves them to their initial
// angles. A failed initial write is logged, the recorded angle is the initial one.
func NewCrane(config CraneConfig, lift, grabber hardware.ServoDriver, logger golog.Logger) *Crane {
	if lift == nil {
		lift = hardware.AbsentServo{Name: string(Lift)}
	}
	if grabber == nil {
		grabber = hardware.AbsentServo{Name: string(Grabber)}
	}

	c := &Crane{
		step:        config.Step,
		stepDelay:   config.StepDelay,
		settleDelay: config.SettleDelay,
		logger:      logger,
	}
	if c.step <= 0 {
		c.step = DefaultStep
	}
	if c.stepDelay <= 0 {
		c.stepDelay = DefaultStepDelay
	}
	if c.settleDelay < 0 {
		c.settleDelay = 0
	}

	c.servos = map[Actuator]*servo{
		Lift:    newServo(Lift, config.Lift, lift, "up", "down"),
		Grabber: newServo(Grabber, config.Grabber, grabber, "closed", "open"),
	}

	for _, s := range c.servos {
		if err := s.driver.SetAngle(s.state.Angle); err != nil {
			logger.Warnw("unable to set initial angle", "actuator", s.name, "angle", s.state.Angle, "error", err)
		}
	}

	return c
}

func newServo(name Actuator, config ServoConfig, driver hardware.ServoDriver, high, low string) *servo {
	s := &servo{
		name:   name,
		driver: driver,
		high:   high,
		low:    low,
		state: ServoState{
			Min: config.Min,
			Max: config.Max,
		},
	}
	s.state.Angle = mgl64.Clamp(config.Initial, config.Min, config.Max)
	s.safe = mgl64.Clamp(config.Safe, config.Min, config.Max)
	return s
}

func (c *Crane) get(a Actuator) (*servo, error) {
	s, ok := c.servos[a]
	if !ok {
		return nil, errors.Errorf("unknown actuator '%s'", a)
	}
	return s, nil
}

// SetAngle clamps the angle to the actuator's bounds and writes it. The
// recorded angle only changes when the write succeeds.
func (c *Crane) SetAngle(a Actuator, angle float64) error {
	s, err := c.get(a)
	if err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	return c.setAngle(s, angle)
}

// setAngle must be called with the lock held.
func (c *Crane) setAngle(s *servo, angle float64) error {
	angle = mgl64.Clamp(angle, s.state.Min, s.state.Max)
	if err := s.driver.SetAngle(angle); err != nil {
		return errors.Wrapf(err, "setting %s to %.1f", s.name, angle)
	}
	s.state.Angle = angle
	return nil
}

// MoveTo walks the actuator to target in fixed steps, waiting stepDelay/speed
// between each. A later MoveTo or Stop on the same actuator ends the motion
// early; that is not an error. Cancelling ctx returns its error.
func (c *Crane) MoveTo(ctx context.Context, a Actuator, target, speed float64) error {
	s, err := c.get(a)
	if err != nil {
		return err
	}
	if speed <= 0 {
		speed = 1
	}
	delay := time.Duration(float64(c.stepDelay) / speed)

	motion, cancel := context.WithCancel(ctx)
	defer cancel()

	c.lock.Lock()
	s.halt()
	s.cancel = cancel
	generation := s.generation
	current := s.state.Angle
	target = mgl64.Clamp(target, s.state.Min, s.state.Max)
	c.lock.Unlock()

	defer func() {
		c.lock.Lock()
		if s.generation == generation {
			s.cancel = nil
		}
		c.lock.Unlock()
	}()

	step := int(c.step)
	if step < 1 {
		step = 1
	}
	if !(target > current) {
		step = -step
	}
	end := int(target) + step

	for angle := int(current); (step > 0 && angle < end) || (step < 0 && angle > end); angle += step {
		if ok, err := c.stepTo(motion, s, generation, float64(angle)); !ok || err != nil {
			return firstErr(err, ctx.Err())
		}

		select {
		case <-motion.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	_, err = c.stepTo(motion, s, generation, target)
	return firstErr(err, ctx.Err())
}

// stepTo writes one angle of a gradual move. It reports false without writing
// when the move was cancelled or superseded, checked under the same lock
// Stop, MoveTo and Close take.
func (c *Crane) stepTo(motion context.Context, s *servo, generation uint64, angle float64) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if s.generation != generation || motion.Err() != nil {
		return false, nil
	}
	return true, c.setAngle(s, angle)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop ends any gradual move of the actuator. Servos hold their position
// without further commands.
func (c *Crane) Stop(a Actuator) error {
	s, err := c.get(a)
	if err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	s.halt()
	return nil
}

// halt cancels the motion in flight and invalidates any step it has yet to
// write. Must be called with the lock held.
func (s *servo) halt() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (c *Crane) Lift(ctx context.Context, speed float64) error {
	return c.MoveTo(ctx, Lift, c.bound(Lift, true), speed)
}

func (c *Crane) Lower(ctx context.Context, speed float64) error {
	return c.MoveTo(ctx, Lift, c.bound(Lift, false), speed)
}

func (c *Crane) CloseGrabber(ctx context.Context, speed float64) error {
	return c.MoveTo(ctx, Grabber, c.bound(Grabber, true), speed)
}

func (c *Crane) OpenGrabber(ctx context.Context, speed float64) error {
	return c.MoveTo(ctx, Grabber, c.bound(Grabber, false), speed)
}

func (c *Crane) StopLift() error {
	return c.Stop(Lift)
}

func (c *Crane) StopGrabber() error {
	return c.Stop(Grabber)
}

func (c *Crane) bound(a Actuator, upper bool) float64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	s := c.servos[a]
	if upper {
		return s.state.Max
	}
	return s.state.Min
}

// Position returns the derived label of an actuator: "up"/"down" for the
// lift, "closed"/"open" for the grabber.
func (c *Crane) Position(a Actuator) string {
	s, err := c.get(a)
	if err != nil {
		return ""
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	return s.label()
}

func (c *Crane) Status() CraneStatus {
	c.lock.Lock()
	defer c.lock.Unlock()

	lift, grabber := c.servos[Lift], c.servos[Grabber]
	return CraneStatus{
		LiftAngle:       lift.state.Angle,
		GrabberAngle:    grabber.state.Angle,
		LiftPosition:    lift.label(),
		GrabberPosition: grabber.label(),
		DriverAvailable: lift.driver.Attached() && grabber.driver.Attached(),
	}
}

// Close ends any motion, parks both servos at their safe angles, lets them
// settle and releases the drivers. Missing drivers are not an error here.
func (c *Crane) Close() (err error) {
	c.lock.Lock()
	for _, s := range c.servos {
		s.halt()
	}
	for _, a := range []Actuator{Lift, Grabber} {
		s := c.servos[a]
		if setErr := c.setAngle(s, s.safe); setErr != nil && !deviceErrors.IsHardwareUnavailable(setErr) {
			err = multierr.Append(err, setErr)
		}
	}
	c.lock.Unlock()

	time.Sleep(c.settleDelay)

	for _, a := range []Actuator{Lift, Grabber} {
		err = multierr.Append(err, errors.Wrapf(c.servos[a].driver.Close(), "releasing %s", a))
	}

	c.logger.Debugw("crane released", "error", err)
	return err
}
