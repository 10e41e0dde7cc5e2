package onboard

import (
	. "math"

	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/go-gl/mathgl/mgl64"
)

const DefaultDeadzone = 0.1

// Deadzone is the radius around zero in which stick values read as zero.
// Construct with NewDeadzone so a value of 1 or more can never reach Apply.
type Deadzone float64

func NewDeadzone(v float64) (Deadzone, error) {
	if IsNaN(v) || v < 0 || v >= 1 {
		return 0, deviceErrors.ConfigError{Field: "deadzone", Reason: "must be within [0, 1)"}
	}
	return Deadzone(v), nil
}

// Apply maps the travel outside the deadzone linearly back onto [-1, 1].
func (dz Deadzone) Apply(raw float64) float64 {
	raw = mgl64.Clamp(raw, -1, 1)
	d := float64(dz)

	mag := Abs(raw)
	if mag < d {
		return 0
	}
	return Copysign((mag-d)/(1-d), raw)
}

// Sticks are the raw axis readings of one poll tick.
type Sticks struct {
	LeftX  float64
	LeftY  float64
	RightY float64

	HasRightStick bool
}

// ComputeTracks converts stick positions into a unit track value per side.
// With a right stick each side follows its own stick (tank steering),
// otherwise the left stick is mixed into throttle and turn.
func ComputeTracks(s Sticks, dz Deadzone) (left, right float64) {
	if s.HasRightStick {
		return dz.Apply(s.LeftY), dz.Apply(s.RightY)
	}

	x, y := dz.Apply(s.LeftX), dz.Apply(s.LeftY)
	tracks := mgl64.Vec2{y - x, y + x}

	// only ever scale down, the ratio between the sides is kept
	scale := Max(Max(Abs(tracks.X()), Abs(tracks.Y())), 1.0)
	tracks = tracks.Mul(1 / scale)

	return tracks.X(), tracks.Y()
}
