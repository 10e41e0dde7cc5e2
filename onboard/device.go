package onboard

import (
	"context"

	"github.com/CodedInternet/pitank/onboard/hardware"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Tank is the actuator surface used by the web layer and the shell.
type Tank interface {
	DispatchCommand(ctx context.Context, command string) (applied bool, err error)
	ApplyStickInput(leftY, rightY float64) error
	SetSpeeds(left, right int) error
	SetAngle(a Actuator, angle float64) error
	Status() TankStatus
	CraneStatus() CraneStatus
	Commands() []Command
	Close() error
}

// TankStatus is the aggregate snapshot of every actuator and the gamepad.
type TankStatus struct {
	Motor            MotorState   `json:"motor"`
	Servo            CraneStatus  `json:"servo"`
	MotorsAttached   bool         `json:"motor_driver_available"`
	GamepadConnected bool         `json:"gamepad_connected"`
	Gamepad          GamepadState `json:"gamepad"`
}

// Drivers are the hardware handles chosen at start up. Nil entries are
// replaced by absent drivers.
type Drivers struct {
	Left, Right   hardware.MotorDriver
	Lift, Grabber hardware.ServoDriver
}

type ActuatorTank struct {
	motors  *DriveMotors
	crane   *Crane
	arbiter *Arbiter
	poll    *PollLoop
	logger  golog.Logger
}

var _ Tank = (*ActuatorTank)(nil)

// NewActuatorTank builds the tank around the given drivers. pad may be nil
// when no gamepad is connected.
func NewActuatorTank(config TankConfig, drivers Drivers, pad Gamepad, logger golog.Logger) (t *ActuatorTank, err error) {
	if err = config.Validate(); err != nil {
		return nil, errors.Wrap(err, "unable to build tank")
	}

	t = &ActuatorTank{logger: logger}
	t.motors = NewDriveMotors(drivers.Left, drivers.Right, config.DriveSpeed, logger.Named("motors"))
	t.crane = NewCrane(config.CraneConfig(), drivers.Lift, drivers.Grabber, logger.Named("crane"))
	t.arbiter = NewArbiter(t.motors, t.crane, logger.Named("arbiter"))

	t.poll, err = NewPollLoop(pad, t.motors, t.crane, t.arbiter, config, logger.Named("gamepad"))
	if err != nil {
		return nil, err
	}

	logger.Infow("tank ready",
		"motors", t.motors.Attached(),
		"servos", t.crane.Status().DriverAvailable,
		"gamepad", padName(pad),
	)
	return t, nil
}

// Start runs the gamepad poll loop in the background when a gamepad is connected.
func (t *ActuatorTank) Start(ctx context.Context) {
	if t.poll.pad == nil {
		t.logger.Warn("no gamepad connected, only web control is available")
		return
	}
	go func() {
		if err := t.poll.Run(ctx); err != nil {
			t.logger.Errorw("poll loop stopped", "error", err)
		}
	}()
}

func (t *ActuatorTank) DispatchCommand(ctx context.Context, command string) (bool, error) {
	return t.arbiter.Dispatch(ctx, command)
}

// ApplyStickInput drives the tracks from two stick Y values, as sent by a web
// gamepad. The browser applies its own deadzone so the values are used as is.
func (t *ActuatorTank) ApplyStickInput(leftY, rightY float64) error {
	return t.motors.ApplyGamepadTracks(leftY, rightY)
}

func (t *ActuatorTank) SetSpeeds(left, right int) error {
	return t.motors.SetSpeeds(left, right)
}

func (t *ActuatorTank) SetAngle(a Actuator, angle float64) error {
	return t.crane.SetAngle(a, angle)
}

func (t *ActuatorTank) Status() TankStatus {
	pad := t.poll.State()
	return TankStatus{
		Motor:            t.motors.Speeds(),
		Servo:            t.crane.Status(),
		MotorsAttached:   t.motors.Attached(),
		GamepadConnected: pad.Connected,
		Gamepad:          pad,
	}
}

func (t *ActuatorTank) CraneStatus() CraneStatus {
	return t.crane.Status()
}

func (t *ActuatorTank) Commands() []Command {
	return t.arbiter.Commands()
}

// Close stops the poll loop, zeroes the motors, parks the servos and
// releases every driver. A failing step does not skip the rest.
func (t *ActuatorTank) Close() (err error) {
	t.poll.Stop()

	err = multierr.Append(err, errors.Wrap(t.motors.Stop(), "stopping motors"))
	err = multierr.Append(err, errors.Wrap(t.crane.Close(), "parking crane"))
	err = multierr.Append(err, errors.Wrap(t.motors.Close(), "releasing motors"))
	err = multierr.Append(err, errors.Wrap(t.poll.Close(), "closing gamepad"))

	if err != nil {
		t.logger.Errorw("shutdown incomplete", "error", err)
	} else {
		t.logger.Info("tank shut down")
	}
	return err
}
