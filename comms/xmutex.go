package comms

import (
	"errors"
	"sync"
)

var ErrControlInUse = errors.New("control socket currently in use")

// xMutex is a lock that refuses instead of waiting. It keeps the control
// socket to a single operator.
type xMutex struct {
	lck   sync.Mutex
	inuse bool
}

func (xm *xMutex) Lock() error {
	xm.lck.Lock()
	defer xm.lck.Unlock()
	if xm.inuse {
		return ErrControlInUse
	}
	xm.inuse = true
	return nil
}

func (xm *xMutex) Unlock() {
	xm.lck.Lock()
	defer xm.lck.Unlock()
	xm.inuse = false
}

func (xm *xMutex) InUse() bool {
	xm.lck.Lock()
	defer xm.lck.Unlock()
	return xm.inuse
}
