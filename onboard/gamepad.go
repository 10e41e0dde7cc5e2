package onboard

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	AXIS_LEFT_X  = 0
	AXIS_LEFT_Y  = 1
	AXIS_RIGHT_Y = 4

	tickBackoff = 100 * time.Millisecond
)

// Gamepad is a polled input device. Poll must not block.
type Gamepad interface {
	Poll() error
	Axis(i int) float64
	Button(i int) bool
	NumAxes() int
	NumButtons() int
	Name() string
	Close() error
}

// GamepadState is the last tick seen by the poll loop.
type GamepadState struct {
	Connected bool      `json:"connected"`
	Name      string    `json:"name,omitempty"`
	Axes      []float64 `json:"axes,omitempty"`
	Buttons   []bool    `json:"buttons,omitempty"`
	Left      float64   `json:"left_track"`
	Right     float64   `json:"right_track"`
}

// PollLoop reads the gamepad at a fixed rate and drives the motors and the
// crane from it.
type PollLoop struct {
	pad      Gamepad
	motors   *DriveMotors
	crane    *Crane
	arbiter  *Arbiter
	bindings []Binding
	deadzone Deadzone
	interval time.Duration
	logger   golog.Logger

	previous []bool // owned by the loop goroutine

	lock    sync.RWMutex
	state   GamepadState
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	stopped bool
}

func NewPollLoop(pad Gamepad, motors *DriveMotors, crane *Crane, arbiter *Arbiter, config TankConfig, logger golog.Logger) (*PollLoop, error) {
	dz, err := NewDeadzone(config.Deadzone)
	if err != nil {
		return nil, err
	}
	bindings := config.Bindings
	if bindings == nil {
		bindings = DefaultBindings()
	}

	return &PollLoop{
		pad:      pad,
		motors:   motors,
		crane:    crane,
		arbiter:  arbiter,
		bindings: bindings,
		deadzone: dz,
		interval: config.PollInterval(),
		logger:   logger,
		state: GamepadState{
			Connected: pad != nil,
			Name:      padName(pad),
		},
	}, nil
}

func padName(pad Gamepad) string {
	if pad == nil {
		return ""
	}
	return pad.Name()
}

// Run polls until ctx is cancelled or Stop is called. Errors from a tick are
// logged and the loop carries on after a short back-off.
func (p *PollLoop) Run(ctx context.Context) error {
	if p.pad == nil {
		return errors.New("no gamepad connected")
	}

	p.lock.Lock()
	if p.running {
		p.lock.Unlock()
		return errors.New("poll loop already running")
	}
	if p.stopped {
		p.lock.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.lock.Unlock()

	defer func() {
		cancel()
		p.lock.Lock()
		p.running = false
		p.lock.Unlock()
		close(done)
	}()

	p.logger.Infow("polling gamepad", "name", p.pad.Name(), "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := p.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Errorw("gamepad tick failed", "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(tickBackoff):
			}
		}
	}
}

// Stop ends Run and waits for it to return. Later calls to Run return at once.
func (p *PollLoop) Stop() {
	p.lock.Lock()
	p.stopped = true
	if !p.running {
		p.lock.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.lock.Unlock()

	cancel()
	<-done
}

func (p *PollLoop) tick(ctx context.Context) (err error) {
	if err = p.pad.Poll(); err != nil {
		err = errors.Wrap(err, "polling gamepad")
		p.lost()
		return multierr.Append(err, errors.Wrap(p.motors.Stop(), "stopping after lost gamepad"))
	}

	numAxes := p.pad.NumAxes()
	sticks := Sticks{
		LeftX: p.pad.Axis(AXIS_LEFT_X),
		LeftY: p.pad.Axis(AXIS_LEFT_Y),
	}
	if numAxes > AXIS_RIGHT_Y {
		sticks.RightY = p.pad.Axis(AXIS_RIGHT_Y)
		sticks.HasRightStick = true
	}
	left, right := ComputeTracks(sticks, p.deadzone)
	err = multierr.Append(err, p.motors.ApplyGamepadTracks(left, right))

	buttons := make([]bool, p.pad.NumButtons())
	for i := range buttons {
		buttons[i] = p.pad.Button(i)
	}

	for _, b := range p.bindings {
		current := pressed(buttons, b.Button)
		fire := current
		if b.Trigger == TriggerPress {
			fire = current && !pressed(p.previous, b.Button)
		}
		if fire {
			err = multierr.Append(err, p.runAction(ctx, b.Action))
		}
	}

	p.previous = buttons
	p.record(numAxes, buttons, left, right)
	return err
}

func pressed(buttons []bool, i int) bool {
	return i >= 0 && i < len(buttons) && buttons[i]
}

func (p *PollLoop) runAction(ctx context.Context, action string) error {
	if action == ACTION_GRABBER_TOGGLE {
		if p.crane.Position(Grabber) == "open" {
			return p.crane.CloseGrabber(ctx, craneSpeed)
		}
		return p.crane.OpenGrabber(ctx, craneSpeed)
	}
	_, err := p.arbiter.Dispatch(ctx, action)
	return err
}

func (p *PollLoop) record(numAxes int, buttons []bool, left, right float64) {
	axes := make([]float64, numAxes)
	for i := range axes {
		axes[i] = p.pad.Axis(i)
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.state.Connected = true
	p.state.Axes = axes
	p.state.Buttons = buttons
	p.state.Left, p.state.Right = left, right
}

// lost marks the pad as disconnected until a poll succeeds again.
func (p *PollLoop) lost() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.state.Connected = false
	p.state.Left, p.state.Right = 0, 0
}

// State returns a copy of the last tick.
func (p *PollLoop) State() GamepadState {
	p.lock.RLock()
	defer p.lock.RUnlock()

	s := p.state
	s.Axes = append([]float64(nil), p.state.Axes...)
	s.Buttons = append([]bool(nil), p.state.Buttons...)
	return s
}

func (p *PollLoop) Close() error {
	p.Stop()
	if p.pad == nil {
		return nil
	}
	return p.pad.Close()
}
