//go:build !linux

package joystick

import "github.com/pkg/errors"

// Device is unavailable outside Linux; Open always fails.
type Device struct {
	*state
}

func Open(path string) (*Device, error) {
	return nil, errors.Errorf("joystick %s: only supported on linux", path)
}

func (d *Device) Poll() error        { return nil }
func (d *Device) Axis(i int) float64 { return d.axis(i) }
func (d *Device) Button(i int) bool  { return d.button(i) }
func (d *Device) NumAxes() int       { return len(d.axes) }
func (d *Device) NumButtons() int    { return len(d.buttons) }
func (d *Device) Name() string       { return "" }
func (d *Device) Close() error       { return nil }
