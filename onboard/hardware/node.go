package hardware

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const (
	NODE_VERSION = "~1.0"

	versionWait = 4 * CMD_TIMEOUT
)

// ControlNode is a microcontroller on a serial line that owns the motor
// H-bridges and the servo PWM outputs. Writes are cached per channel so a
// repeated value is not resent every poll tick.
type ControlNode struct {
	port    io.ReadWriteCloser
	lock    *sync.Mutex
	version string

	motors map[uint8]int
	servos map[uint8]int
	users  int
	closed bool
}

// OpenControlNode opens the serial port and performs the version handshake.
func OpenControlNode(name string, baud int) (n *ControlNode, err error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", name)
	}

	if err = port.SetReadTimeout(CMD_TIMEOUT); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "unable to set read timeout")
	}

	n, err = NewControlNode(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return n, nil
}

// NewControlNode wraps an already open connection and checks the firmware
// version is acceptable.
func NewControlNode(port io.ReadWriteCloser) (n *ControlNode, err error) {
	n = &ControlNode{
		port:   port,
		lock:   new(sync.Mutex),
		motors: make(map[uint8]int),
		servos: make(map[uint8]int),
	}

	versionString, err := n.requestVersion()
	if err != nil {
		return nil, err
	}
	n.version = versionString

	if versionString == "DEV" {
		// development firmware flashed straight from the workbench
		return n, nil
	}

	semVer, err := semver.NewVersion(versionString)
	if err != nil {
		return nil, errors.Wrapf(err, "node reported version %q", versionString)
	}

	semVerConstraint, err := semver.NewConstraint(NODE_VERSION)
	if err != nil {
		return nil, err
	}

	if !semVerConstraint.Check(semVer) {
		return nil, errors.Errorf("unable to use node: received version %s - require %s", versionString, NODE_VERSION)
	}

	return n, nil
}

func (n *ControlNode) Version() string {
	return n.version
}

// requestVersion asks for the firmware version until a line comes back. A
// serial read that times out returns no bytes and no error, so each attempt
// is bounded by its own deadline rather than by the reader.
func (n *ControlNode) requestVersion() (string, error) {
	buf := make([]byte, 64)
	line := make([]byte, 0, 16)

	for i := 0; i < CMD_MAX_RETRIES; i++ {
		if err := n.SendMsg(CMDVersion{}); err != nil {
			return "", err
		}

		line = line[:0]
		deadline := time.Now().Add(versionWait)
		for time.Now().Before(deadline) {
			count, err := n.port.Read(buf)
			for _, b := range buf[:count] {
				if b != '\n' {
					line = append(line, b)
					continue
				}
				if version := strings.TrimSpace(string(line)); version != "" {
					return version, nil
				}
				line = line[:0]
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", errors.Wrap(err, "reading node version")
			}
		}
	}

	return "", errors.Errorf("no version reply after %d attempts", CMD_MAX_RETRIES)
}

func (n *ControlNode) SendMsg(cmd NodeCommand) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	return n.send(cmd)
}

// send must be called with the lock held.
func (n *ControlNode) send(cmd NodeCommand) error {
	if n.closed {
		return ERR_NODE_CLOSED
	}
	_, err := n.port.Write(cmd.Msg())
	return err
}

func (n *ControlNode) setMotor(ch uint8, duty int) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if old, cached := n.motors[ch]; cached && old == duty {
		return nil
	}
	if err := n.send(CMDSetMotor{Channel: ch, Duty: duty}); err != nil {
		delete(n.motors, ch)
		return errors.Wrapf(err, "motor %d", ch)
	}
	n.motors[ch] = duty
	return nil
}

func (n *ControlNode) setServo(ch uint8, angle int) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if old, cached := n.servos[ch]; cached && old == angle {
		return nil
	}
	if err := n.send(CMDSetServo{Channel: ch, Angle: angle}); err != nil {
		delete(n.servos, ch)
		return errors.Wrapf(err, "servo %d", ch)
	}
	n.servos[ch] = angle
	return nil
}

// Motor returns a driver for one motor channel of the node.
func (n *ControlNode) Motor(ch uint8) *NodeMotor {
	n.acquire()
	return &NodeMotor{node: n, channel: ch}
}

// Servo returns a driver for one servo channel of the node.
func (n *ControlNode) Servo(ch uint8) *NodeServo {
	n.acquire()
	return &NodeServo{node: n, channel: ch}
}

func (n *ControlNode) acquire() {
	n.lock.Lock()
	n.users++
	n.lock.Unlock()
}

// release closes the port once every channel driver has been released.
func (n *ControlNode) release() error {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.users--
	if n.users > 0 || n.closed {
		return nil
	}

	stopErr := n.send(CMDAllStop{})
	n.closed = true
	if err := n.port.Close(); err != nil {
		return err
	}
	return stopErr
}

type NodeMotor struct {
	node    *ControlNode
	channel uint8
}

var _ MotorDriver = (*NodeMotor)(nil)

func (m *NodeMotor) Forward(speed float64) error {
	return m.node.setMotor(m.channel, speedToDuty(speed, 1))
}

func (m *NodeMotor) Backward(speed float64) error {
	return m.node.setMotor(m.channel, speedToDuty(speed, -1))
}

func (m *NodeMotor) Stop() error {
	return m.node.setMotor(m.channel, 0)
}

func (m *NodeMotor) Attached() bool {
	return true
}

func (m *NodeMotor) Close() error {
	stopErr := m.Stop()
	if err := m.node.release(); err != nil {
		return err
	}
	if errors.Cause(stopErr) == ERR_NODE_CLOSED {
		return nil
	}
	return stopErr
}

type NodeServo struct {
	node    *ControlNode
	channel uint8
}

var _ ServoDriver = (*NodeServo)(nil)

func (s *NodeServo) SetAngle(deg float64) error {
	return s.node.setServo(s.channel, angleToWire(deg))
}

func (s *NodeServo) Attached() bool {
	return true
}

func (s *NodeServo) Close() error {
	return s.node.release()
}

// SerialPorts lists the serial ports a control node could be attached to.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
