package joystick

import (
	"bytes"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	jsiocgAxes    = 0x80016a11 // JSIOCGAXES
	jsiocgButtons = 0x80016a12 // JSIOCGBUTTONS
	jsiocgName    = 0x80006a13 // JSIOCGNAME(0), length goes in bits 16-29

	nameLen = 128
)

// Device is an open joystick. The file descriptor is non-blocking, so Poll
// only drains what the kernel has queued.
type Device struct {
	fd   int
	name string
	buf  []byte
	*state
}

// Open opens a joystick device such as /dev/input/js0.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}

	nAxes, err := unix.IoctlGetInt(fd, jsiocgAxes)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "reading axis count")
	}
	nButtons, err := unix.IoctlGetInt(fd, jsiocgButtons)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "reading button count")
	}

	d := &Device{
		fd:    fd,
		name:  readName(fd),
		buf:   make([]byte, eventSize*64),
		state: newState(nAxes&0xff, nButtons&0xff),
	}
	return d, nil
}

func readName(fd int) string {
	buf := make([]byte, nameLen)
	req := uintptr(jsiocgName | nameLen<<16)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return "unknown"
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// Poll reads every pending event without blocking.
func (d *Device) Poll() error {
	for {
		n, err := unix.Read(d.fd, d.buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "joystick read")
		}
		if n == 0 {
			return errors.New("joystick disconnected")
		}
		d.applyRaw(d.buf[:n])
	}
}

func (d *Device) Axis(i int) float64 { return d.axis(i) }
func (d *Device) Button(i int) bool  { return d.button(i) }
func (d *Device) NumAxes() int       { return len(d.axes) }
func (d *Device) NumButtons() int    { return len(d.buttons) }
func (d *Device) Name() string       { return d.name }

func (d *Device) Close() error {
	return unix.Close(d.fd)
}
