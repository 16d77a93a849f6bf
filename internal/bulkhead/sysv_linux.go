//go:build linux

package bulkhead

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sembuf mirrors the kernel's struct sembuf for the semop/semtimedop ABI.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

const (
	semUndo  = 0x1000 // SEM_UNDO
	ipcCreat = 0x200
	ipcExcl  = 0x400
	ipcRmid  = 0
	ipcSet   = 1
	getVal   = 12
	setVal   = 16
)

// sysvSet wraps a SysV semaphore set backing one bulkhead: four semaphore
// slots (meta-lock, tickets, max-tickets value, registered-workers value),
// addressed via the raw semget/semop/semtimedop/semctl syscalls since
// x/sys/unix does not expose high-level wrappers for the union-typed
// semctl argument.
type sysvSet struct {
	id int
}

const (
	slotMeta = iota
	slotTickets
	slotMaxTickets
	slotRegisteredWorkers
	numSlots
)

// newSysvSet creates or attaches to the semaphore set identified by key,
// returning whether this call created it (vs. attached to an existing set).
func newSysvSet(key int32, perm uint32) (*sysvSet, bool, error) {
	id, created, err := semgetCreateOrAttach(int(key), numSlots, int(perm))
	if err != nil {
		return nil, false, err
	}
	return &sysvSet{id: id}, created, nil
}

func semgetCreateOrAttach(key, nsems, perm int) (int, bool, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(perm|ipcCreat|ipcExcl))
	if errno == 0 {
		return int(id), true, nil
	}
	if errno != unix.EEXIST {
		return 0, false, errno
	}

	id, _, errno = unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(perm))
	if errno != 0 {
		return 0, false, errno
	}
	return int(id), false, nil
}

func (s *sysvSet) setValue(slot, value int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), uintptr(slot), setVal, uintptr(value), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (s *sysvSet) getValue(slot int) (int, error) {
	v, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), uintptr(slot), getVal, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(v), nil
}

func (s *sysvSet) destroy() error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(s.id), 0, ipcRmid, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// lockMeta performs a blocking P() on the meta-lock slot.
func (s *sysvSet) lockMeta() error {
	ops := []sembuf{{num: slotMeta, op: -1, flg: 0}}
	return s.semop(ops, nil)
}

// unlockMeta performs a V() on the meta-lock slot.
func (s *sysvSet) unlockMeta() error {
	ops := []sembuf{{num: slotMeta, op: 1, flg: 0}}
	return s.semop(ops, nil)
}

// acquireTicket blocks (bounded by timeout, nil for unbounded) decrementing
// the tickets slot. SEM_UNDO registers the adjustment so a crashed process
// has its held tickets restored by the kernel.
func (s *sysvSet) acquireTicket(timeout *time.Duration) error {
	ops := []sembuf{{num: slotTickets, op: -1, flg: semUndo}}
	return s.semop(ops, timeout)
}

// releaseTicket increments the tickets slot back, undoing the SEM_UNDO
// adjustment recorded at acquire time.
func (s *sysvSet) releaseTicket() error {
	ops := []sembuf{{num: slotTickets, op: 1, flg: semUndo}}
	return s.semop(ops, nil)
}

// adjustTicketsBy applies delta to the tickets slot's raw value, used when
// recomputing max_tickets on worker registration changes. Must be called
// with the meta-lock held.
func (s *sysvSet) adjustTicketsBy(delta int) error {
	if delta == 0 {
		return nil
	}
	cur, err := s.getValue(slotTickets)
	if err != nil {
		return err
	}
	next := cur + delta
	if next < 0 {
		next = 0
	}
	return s.setValue(slotTickets, next)
}

func (s *sysvSet) semop(ops []sembuf, timeout *time.Duration) error {
	if timeout == nil {
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(s.id), uintptr(unsafe.Pointer(&ops[0])), uintptr(len(ops)))
		if errno != 0 {
			return errno
		}
		return nil
	}

	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	_, _, errno := unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(s.id), uintptr(unsafe.Pointer(&ops[0])), uintptr(len(ops)), uintptr(unsafe.Pointer(&ts)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

const sysvSupported = true

var errEAGAIN = unix.EAGAIN
