package onboard

import (
	"io/ioutil"
	"strconv"
	"time"

	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

const (
	CONFIG_VERSION = "~1.0"

	DefaultPollRate = 60.0
	DefaultBaud     = 115200
)

const (
	TriggerHold  = "hold"
	TriggerPress = "press"
)

// Duration reads "20ms" style strings from YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type MotorChannels struct {
	Left  uint8 `yaml:"left"`
	Right uint8 `yaml:"right"`
}

// ServoConfig is one servo channel with its travel limits in degrees.
type ServoConfig struct {
	Channel uint8   `yaml:"channel"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Initial float64 `yaml:"initial"`
	Safe    float64 `yaml:"safe"`
}

type ServoChannels struct {
	Lift    ServoConfig `yaml:"lift"`
	Grabber ServoConfig `yaml:"grabber"`
}

// Binding ties a gamepad button to an action, fired every tick the button is
// held or only on the tick it is pressed.
type Binding struct {
	Button  int    `yaml:"button"`
	Action  string `yaml:"action"`
	Trigger string `yaml:"trigger"`
}

type GamepadConfig struct {
	Device string `yaml:"device"`
}

// TankConfig is the device configuration read from tank.yaml.
type TankConfig struct {
	Version    string  `yaml:"version"`
	Deadzone   float64 `yaml:"deadzone"`
	PollRate   float64 `yaml:"poll_rate"`
	DriveSpeed int     `yaml:"drive_speed"`

	Serial SerialConfig  `yaml:"serial"`
	Motors MotorChannels `yaml:"motors"`
	Servos ServoChannels `yaml:"servos"`

	Step        float64  `yaml:"step"`
	StepDelay   Duration `yaml:"step_delay"`
	SettleDelay Duration `yaml:"settle_delay"`

	Bindings []Binding     `yaml:"bindings"`
	Gamepad  GamepadConfig `yaml:"gamepad"`
}

func DefaultBindings() []Binding {
	return []Binding{
		{Button: 0, Action: CMD_STOP, Trigger: TriggerHold},
		{Button: 1, Action: CMD_CRANE_UP, Trigger: TriggerHold},
		{Button: 2, Action: CMD_CRANE_DOWN, Trigger: TriggerHold},
		{Button: 3, Action: ACTION_GRABBER_TOGGLE, Trigger: TriggerPress},
	}
}

func DefaultTankConfig() TankConfig {
	return TankConfig{
		Version:    "1.0.0",
		Deadzone:   DefaultDeadzone,
		PollRate:   DefaultPollRate,
		DriveSpeed: DefaultDriveSpeed,
		Serial: SerialConfig{
			Baud: DefaultBaud,
		},
		Motors: MotorChannels{Left: 0, Right: 1},
		Servos: ServoChannels{
			Lift:    ServoConfig{Channel: 0, Min: 90, Max: 150, Initial: 140, Safe: 140},
			Grabber: ServoConfig{Channel: 1, Min: 90, Max: 150, Initial: 90, Safe: 90},
		},
		Step:        DefaultStep,
		StepDelay:   Duration(DefaultStepDelay),
		SettleDelay: Duration(DefaultSettleDelay),
		Bindings:    DefaultBindings(),
		Gamepad:     GamepadConfig{Device: "/dev/input/js0"},
	}
}

// ParseTankConfig overlays the YAML document on the defaults and validates the result.
func ParseTankConfig(data []byte) (config TankConfig, err error) {
	config = DefaultTankConfig()
	if err = yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrap(err, "parsing tank config")
	}
	return config, config.Validate()
}

func LoadTankConfig(path string) (TankConfig, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return DefaultTankConfig(), errors.Wrapf(err, "reading %s", path)
	}
	return ParseTankConfig(data)
}

// Validate reports every unusable field at once.
func (c TankConfig) Validate() (err error) {
	if verr := checkConfigVersion(c.Version); verr != nil {
		err = multierr.Append(err, verr)
	}

	if _, dzErr := NewDeadzone(c.Deadzone); dzErr != nil {
		err = multierr.Append(err, dzErr)
	}
	if c.PollRate <= 0 {
		err = multierr.Append(err, deviceErrors.ConfigError{Field: "poll_rate", Reason: "must be positive"})
	}
	if c.DriveSpeed < 0 || c.DriveSpeed > DutyMax {
		err = multierr.Append(err, deviceErrors.ConfigError{Field: "drive_speed", Reason: "must be within [0, 4095]"})
	}
	if c.Step < 0 {
		err = multierr.Append(err, deviceErrors.ConfigError{Field: "step", Reason: "must not be negative"})
	}

	err = multierr.Append(err, c.Servos.Lift.validate("servos.lift"))
	err = multierr.Append(err, c.Servos.Grabber.validate("servos.grabber"))

	for i, b := range c.Bindings {
		field := "bindings[" + strconv.Itoa(i) + "]"
		if b.Button < 0 {
			err = multierr.Append(err, deviceErrors.ConfigError{Field: field, Reason: "negative button"})
		}
		if !isAction(b.Action) {
			err = multierr.Append(err, deviceErrors.ConfigError{Field: field, Reason: "unknown action '" + b.Action + "'"})
		}
		if b.Trigger != TriggerHold && b.Trigger != TriggerPress {
			err = multierr.Append(err, deviceErrors.ConfigError{Field: field, Reason: "trigger must be hold or press"})
		}
	}

	return err
}

func (s ServoConfig) validate(field string) error {
	if s.Min < 0 || s.Max > 180 || s.Min >= s.Max {
		return deviceErrors.ConfigError{Field: field, Reason: "bounds must satisfy 0 <= min < max <= 180"}
	}
	return nil
}

func checkConfigVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return deviceErrors.ConfigError{Field: "version", Reason: err.Error()}
	}
	constraint, err := semver.NewConstraint(CONFIG_VERSION)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return deviceErrors.ConfigError{Field: "version", Reason: "received " + v + " - require " + CONFIG_VERSION}
	}
	return nil
}

func (c TankConfig) CraneConfig() CraneConfig {
	return CraneConfig{
		Lift:        c.Servos.Lift,
		Grabber:     c.Servos.Grabber,
		Step:        c.Step,
		StepDelay:   time.Duration(c.StepDelay),
		SettleDelay: time.Duration(c.SettleDelay),
	}
}

func (c TankConfig) PollInterval() time.Duration {
	rate := c.PollRate
	if rate <= 0 {
		rate = DefaultPollRate
	}
	return time.Duration(float64(time.Second) / rate)
}
