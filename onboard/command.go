package onboard

import (
	"context"
	"sort"

	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/edaniels/golog"
)

// Symbolic commands accepted from the web, the shell and gamepad bindings.
const (
	CMD_FORWARD       = "forward"
	CMD_BACKWARD      = "backward"
	CMD_LEFT          = "left"
	CMD_RIGHT         = "right"
	CMD_STOP          = "stop"
	CMD_CRANE_UP      = "crane_up"
	CMD_CRANE_DOWN    = "crane_down"
	CMD_CRANE_STOP    = "crane_stop"
	CMD_GRABBER_OPEN  = "grabber_open"
	CMD_GRABBER_CLOSE = "grabber_close"
	CMD_GRABBER_STOP  = "grabber_stop"

	// only available as a gamepad binding
	ACTION_GRABBER_TOGGLE = "grabber_toggle"

	craneSpeed = 1.0
)

var commandNames = []string{
	CMD_FORWARD, CMD_BACKWARD, CMD_LEFT, CMD_RIGHT, CMD_STOP,
	CMD_CRANE_UP, CMD_CRANE_DOWN, CMD_CRANE_STOP,
	CMD_GRABBER_OPEN, CMD_GRABBER_CLOSE, CMD_GRABBER_STOP,
}

func isAction(name string) bool {
	if name == ACTION_GRABBER_TOGGLE {
		return true
	}
	for _, c := range commandNames {
		if c == name {
			return true
		}
	}
	return false
}

type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context) error
}

// Arbiter maps symbolic commands onto the motors and the crane. It holds no
// state of its own and is safe to call from any goroutine.
type Arbiter struct {
	commands map[string]Command
	logger   golog.Logger
}

func NewArbiter(motors *DriveMotors, crane *Crane, logger golog.Logger) *Arbiter {
	speed := motors.DefaultSpeed()
	drive := func(f func(int) error) func(context.Context) error {
		return func(context.Context) error { return f(speed) }
	}

	commands := []Command{
		{CMD_FORWARD, "drive forward", drive(motors.MoveForward)},
		{CMD_BACKWARD, "drive backward", drive(motors.MoveBackward)},
		{CMD_LEFT, "turn left on the spot", drive(motors.TurnLeft)},
		{CMD_RIGHT, "turn right on the spot", drive(motors.TurnRight)},
		{CMD_STOP, "stop both tracks", func(context.Context) error { return motors.Stop() }},
		{CMD_CRANE_UP, "raise the lift", func(ctx context.Context) error { return crane.Lift(ctx, craneSpeed) }},
		{CMD_CRANE_DOWN, "lower the lift", func(ctx context.Context) error { return crane.Lower(ctx, craneSpeed) }},
		{CMD_CRANE_STOP, "hold the lift where it is", func(context.Context) error { return crane.StopLift() }},
		{CMD_GRABBER_OPEN, "open the grabber", func(ctx context.Context) error { return crane.OpenGrabber(ctx, craneSpeed) }},
		{CMD_GRABBER_CLOSE, "close the grabber", func(ctx context.Context) error { return crane.CloseGrabber(ctx, craneSpeed) }},
		{CMD_GRABBER_STOP, "hold the grabber where it is", func(context.Context) error { return crane.StopGrabber() }},
	}

	a := &Arbiter{
		commands: make(map[string]Command, len(commands)),
		logger:   logger,
	}
	for _, c := range commands {
		a.commands[c.Name] = c
	}
	return a
}

// Dispatch runs the named command. applied is true only when the command is
// known and its actuation succeeded. Unknown commands actuate nothing.
func (a *Arbiter) Dispatch(ctx context.Context, name string) (applied bool, err error) {
	c, ok := a.commands[name]
	if !ok {
		err = deviceErrors.InvalidCommandError{Command: name}
		a.logger.Warnw("ignoring command", "command", name, "error", err)
		return false, err
	}

	if err = c.Run(ctx); err != nil {
		a.logger.Errorw("command failed", "command", name, "error", err)
		return false, err
	}

	a.logger.Debugw("command applied", "command", name)
	return true, nil
}

// Commands lists every known command by name.
func (a *Arbiter) Commands() []Command {
	commands := make([]Command, 0, len(a.commands))
	for _, c := range a.commands {
		commands = append(commands, c)
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands
}
