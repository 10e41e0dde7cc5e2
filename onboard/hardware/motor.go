package hardware

// MotorDriver drives a single DC motor. Speed is a fraction of full power in [0, 1].
type MotorDriver interface {
	Forward(speed float64) error
	Backward(speed float64) error
	Stop() error
	Attached() bool
	Close() error
}

// ServoDriver positions a single hobby servo, angle in degrees.
type ServoDriver interface {
	SetAngle(deg float64) error
	Attached() bool
	Close() error
}
