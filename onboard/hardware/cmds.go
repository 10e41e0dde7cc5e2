package hardware

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Line commands understood by the motor bridge firmware. Every command is a
// single ASCII line; arguments are space separated.
const (
	CMD_ALLSTOP = 'X' // X
	CMD_MOTOR   = 'M' // M <channel> <duty -4095..4095>
	CMD_SERVO   = 'S' // S <channel> <angle 0..180>
	CMD_VERSION = 'V' // V -> replies with the firmware version

	CMD_MAX_RETRIES = 5
	CMD_TIMEOUT     = 50 * time.Millisecond

	BridgeDutyMax = 4095
	ServoAngleMax = 180
)

var (
	ERR_NODE_CLOSED = errors.New("control node has been closed")
)

// NodeCommand is a single encoded instruction for the bridge.
type NodeCommand interface {
	Msg() []byte
}

// CMDSetMotor sets a motor channel to a signed duty.
type CMDSetMotor struct {
	Channel uint8
	Duty    int
}

func (c CMDSetMotor) Msg() []byte {
	return []byte(fmt.Sprintf("%c %d %d\n", CMD_MOTOR, c.Channel, c.Duty))
}

// CMDSetServo positions a servo channel. Angles are sent as whole degrees.
type CMDSetServo struct {
	Channel uint8
	Angle   int
}

func (c CMDSetServo) Msg() []byte {
	return []byte(fmt.Sprintf("%c %d %d\n", CMD_SERVO, c.Channel, c.Angle))
}

type CMDAllStop struct{}

func (CMDAllStop) Msg() []byte {
	return []byte{CMD_ALLSTOP, '\n'}
}

type CMDVersion struct{}

func (CMDVersion) Msg() []byte {
	return []byte{CMD_VERSION, '\n'}
}

// speedToDuty maps a [0, 1] fraction and a direction onto the bridge duty range.
func speedToDuty(speed float64, dir int) int {
	if speed < 0 {
		speed = 0
	} else if speed > 1 {
		speed = 1
	}
	return dir * int(math.Round(speed*BridgeDutyMax))
}

func angleToWire(deg float64) int {
	a := int(math.Round(deg))
	if a < 0 {
		return 0
	} else if a > ServoAngleMax {
		return ServoAngleMax
	}
	return a
}
