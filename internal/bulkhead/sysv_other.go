//go:build !linux

package bulkhead

import (
	"errors"
	"time"
)

// sysvSet is unavailable on non-Linux platforms; every operation fails so
// the bulkhead falls back to the in-process condvar implementation.
type sysvSet struct{}

var errSysvUnsupported = errors.New("bulkhead: SysV semaphores unsupported on this platform")

func newSysvSet(key int32, perm uint32) (*sysvSet, bool, error) {
	return nil, false, errSysvUnsupported
}

func (s *sysvSet) lockMeta() error                             { return errSysvUnsupported }
func (s *sysvSet) unlockMeta() error                            { return errSysvUnsupported }
func (s *sysvSet) acquireTicket(timeout *time.Duration) error   { return errSysvUnsupported }
func (s *sysvSet) releaseTicket() error                         { return errSysvUnsupported }
func (s *sysvSet) adjustTicketsBy(delta int) error              { return errSysvUnsupported }
func (s *sysvSet) getValue(slot int) (int, error)               { return 0, errSysvUnsupported }
func (s *sysvSet) setValue(slot, value int) error               { return errSysvUnsupported }
func (s *sysvSet) destroy() error                               { return errSysvUnsupported }

const sysvSupported = false

// errEAGAIN never matches on non-Linux platforms since useSysv is always
// false here (newSysvSet always fails).
var errEAGAIN = errors.New("bulkhead: no EAGAIN equivalent on this platform")
