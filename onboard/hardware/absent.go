package hardware

import (
	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
)

// AbsentMotor stands in for a motor whose driver board was not detected.
// Every write succeeds without doing anything.
type AbsentMotor struct{}

var _ MotorDriver = AbsentMotor{}

func (AbsentMotor) Forward(float64) error  { return nil }
func (AbsentMotor) Backward(float64) error { return nil }
func (AbsentMotor) Stop() error            { return nil }
func (AbsentMotor) Attached() bool         { return false }
func (AbsentMotor) Close() error           { return nil }

// AbsentServo stands in for a servo without a driver. Positioning fails so
// callers never record an angle that was not applied.
type AbsentServo struct {
	Name string
}

var _ ServoDriver = AbsentServo{}

func (s AbsentServo) SetAngle(float64) error {
	return deviceErrors.HardwareUnavailableError{Actuator: s.Name}
}

func (AbsentServo) Attached() bool { return false }
func (AbsentServo) Close() error   { return nil }
