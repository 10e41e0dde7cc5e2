// Package joystick reads gamepads through the Linux joystick API (/dev/input/jsN).
package joystick

import (
	"encoding/binary"
	"sync"
)

const (
	eventSize = 8

	EventButton = 0x01
	EventAxis   = 0x02
	EventInit   = 0x80

	axisMax = 32767.0
)

// Event is a decoded struct js_event.
type Event struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

func decodeEvent(raw []byte) Event {
	return Event{
		Time:   binary.LittleEndian.Uint32(raw[0:4]),
		Value:  int16(binary.LittleEndian.Uint16(raw[4:6])),
		Type:   raw[6],
		Number: raw[7],
	}
}

// state holds the latest value of every axis and button. Axes are scaled to [-1, 1].
type state struct {
	lock    sync.RWMutex
	axes    []float64
	buttons []bool
}

func newState(nAxes, nButtons int) *state {
	return &state{
		axes:    make([]float64, nAxes),
		buttons: make([]bool, nButtons),
	}
}

func (s *state) apply(ev Event) {
	s.lock.Lock()
	defer s.lock.Unlock()

	idx := int(ev.Number)
	switch ev.Type &^ EventInit {
	case EventAxis:
		if idx >= len(s.axes) {
			return
		}
		v := float64(ev.Value) / axisMax
		if v < -1 {
			v = -1
		}
		s.axes[idx] = v
	case EventButton:
		if idx >= len(s.buttons) {
			return
		}
		s.buttons[idx] = ev.Value != 0
	}
}

// applyRaw decodes and applies every complete event in buf.
func (s *state) applyRaw(buf []byte) {
	for len(buf) >= eventSize {
		s.apply(decodeEvent(buf[:eventSize]))
		buf = buf[eventSize:]
	}
}

func (s *state) axis(i int) float64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if i < 0 || i >= len(s.axes) {
		return 0
	}
	return s.axes[i]
}

func (s *state) button(i int) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if i < 0 || i >= len(s.buttons) {
		return false
	}
	return s.buttons[i]
}
