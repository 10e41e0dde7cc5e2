package onboard

import (
	"math"
	"sync"

	"github.com/CodedInternet/pitank/onboard/hardware"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	DutyMax           = hardware.BridgeDutyMax
	DefaultDriveSpeed = 2000
)

// MotorState is the last requested signed duty per track.
type MotorState struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// DriveMotors owns the left and right track motors.
type DriveMotors struct {
	left, right hardware.MotorDriver
	speed       int
	logger      golog.Logger

	lock  sync.RWMutex
	state MotorState
}

// NewDriveMotors takes ownership of both drivers. A nil driver is replaced by
// an absent one. A non-positive speed selects DefaultDriveSpeed.
func NewDriveMotors(left, right hardware.MotorDriver, speed int, logger golog.Logger) *DriveMotors {
	if left == nil {
		left = hardware.AbsentMotor{}
	}
	if right == nil {
		right = hardware.AbsentMotor{}
	}
	if speed <= 0 {
		speed = DefaultDriveSpeed
	}
	return &DriveMotors{
		left:   left,
		right:  right,
		speed:  clampDuty(speed),
		logger: logger,
	}
}

func clampDuty(d int) int {
	if d > DutyMax {
		return DutyMax
	}
	if d < -DutyMax {
		return -DutyMax
	}
	return d
}

func driveMotor(m hardware.MotorDriver, duty int) error {
	fraction := math.Abs(float64(duty)) / DutyMax
	switch {
	case duty > 0:
		return m.Forward(fraction)
	case duty < 0:
		return m.Backward(fraction)
	default:
		return m.Stop()
	}
}

// SetSpeeds clamps both duties, writes them to the drivers and records them as
// one pair. The recorded state is the request, even when a driver write fails.
func (d *DriveMotors) SetSpeeds(left, right int) error {
	left, right = clampDuty(left), clampDuty(right)

	d.lock.Lock()
	defer d.lock.Unlock()

	err := multierr.Append(
		errors.Wrap(driveMotor(d.left, left), "left motor"),
		errors.Wrap(driveMotor(d.right, right), "right motor"),
	)
	d.state = MotorState{Left: left, Right: right}

	if err != nil {
		d.logger.Warnw("motor write failed", "left", left, "right", right, "error", err)
	}
	return err
}

// Speeds returns the last pair written by SetSpeeds.
func (d *DriveMotors) Speeds() MotorState {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.state
}

// DefaultSpeed is the magnitude used by the symbolic drive commands.
func (d *DriveMotors) DefaultSpeed() int {
	return d.speed
}

func (d *DriveMotors) MoveForward(speed int) error {
	return d.SetSpeeds(speed, speed)
}

func (d *DriveMotors) MoveBackward(speed int) error {
	return d.SetSpeeds(-speed, -speed)
}

func (d *DriveMotors) TurnLeft(speed int) error {
	return d.SetSpeeds(-speed, speed)
}

func (d *DriveMotors) TurnRight(speed int) error {
	return d.SetSpeeds(speed, -speed)
}

func (d *DriveMotors) Stop() error {
	return d.SetSpeeds(0, 0)
}

// ApplyGamepadTracks converts unit track values into duty. Pushing a stick up
// reads negative, so the sign is inverted to make that drive forward.
func (d *DriveMotors) ApplyGamepadTracks(left, right float64) error {
	return d.SetSpeeds(trackToDuty(left), trackToDuty(right))
}

func trackToDuty(t float64) int {
	if math.IsNaN(t) {
		return 0
	}
	t = math.Max(-1, math.Min(1, t))
	return -int(math.Round(t * DutyMax))
}

// Attached reports whether both motors have a real driver.
func (d *DriveMotors) Attached() bool {
	return d.left.Attached() && d.right.Attached()
}

// Close stops both motors and releases the drivers. Every step runs even
// when an earlier one fails.
func (d *DriveMotors) Close() (err error) {
	err = multierr.Append(err, errors.Wrap(d.Stop(), "stopping motors"))

	d.lock.Lock()
	defer d.lock.Unlock()
	err = multierr.Append(err, errors.Wrap(d.left.Close(), "releasing left motor"))
	err = multierr.Append(err, errors.Wrap(d.right.Close(), "releasing right motor"))
	return err
}
