package onboard

import (
	"sync"

	"github.com/CodedInternet/pitank/onboard/hardware"
	"github.com/edaniels/golog"
)

// SimulatedMotor logs every write instead of driving a bridge.
type SimulatedMotor struct {
	Name   string
	logger golog.Logger

	lock sync.Mutex
	duty float64
}

var _ hardware.MotorDriver = (*SimulatedMotor)(nil)

func (m *SimulatedMotor) set(duty float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if duty != m.duty {
		m.logger.Debugw("motor", "name", m.Name, "duty", duty)
	}
	m.duty = duty
	return nil
}

func (m *SimulatedMotor) Forward(speed float64) error  { return m.set(speed) }
func (m *SimulatedMotor) Backward(speed float64) error { return m.set(-speed) }
func (m *SimulatedMotor) Stop() error                  { return m.set(0) }
func (m *SimulatedMotor) Attached() bool               { return true }
func (m *SimulatedMotor) Close() error                 { return m.Stop() }

// Duty is the last signed fraction written.
func (m *SimulatedMotor) Duty() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.duty
}

// SimulatedServo logs every angle it is given.
type SimulatedServo struct {
	Name   string
	logger golog.Logger

	lock  sync.Mutex
	angle float64
}

var _ hardware.ServoDriver = (*SimulatedServo)(nil)

func (s *SimulatedServo) SetAngle(deg float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.angle = deg
	s.logger.Debugw("servo", "name", s.Name, "angle", deg)
	return nil
}

func (s *SimulatedServo) Attached() bool { return true }
func (s *SimulatedServo) Close() error   { return nil }

// NewSimulatedDrivers returns a full set of logging drivers so the service
// can run on a workstation.
func NewSimulatedDrivers(logger golog.Logger) Drivers {
	logger = logger.Named("sim")
	return Drivers{
		Left:    &SimulatedMotor{Name: "left", logger: logger},
		Right:   &SimulatedMotor{Name: "right", logger: logger},
		Lift:    &SimulatedServo{Name: string(Lift), logger: logger},
		Grabber: &SimulatedServo{Name: string(Grabber), logger: logger},
	}
}

// OpenDrivers attaches to the serial control node named in the config. When
// no port is configured, or the node cannot be used, absent drivers are
// returned and the tank runs without that hardware.
func OpenDrivers(config TankConfig, logger golog.Logger) Drivers {
	if config.Serial.Port == "" {
		logger.Warn("no serial port configured, running without motor or servo drivers")
		return Drivers{}
	}

	node, err := hardware.OpenControlNode(config.Serial.Port, config.Serial.Baud)
	if err != nil {
		logger.Warnw("control node unavailable, running without motor or servo drivers",
			"port", config.Serial.Port, "error", err)
		return Drivers{}
	}

	logger.Infow("control node attached", "port", config.Serial.Port, "version", node.Version())
	return Drivers{
		Left:    node.Motor(config.Motors.Left),
		Right:   node.Motor(config.Motors.Right),
		Lift:    node.Servo(config.Servos.Lift.Channel),
		Grabber: node.Servo(config.Servos.Grabber.Channel),
	}
}
