package jtag

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Driver is the hardware primitive contract used by the shift engine. Bit
// arrays are packed little-endian into 16-bit words: stream bit k, the k-th
// bit shifted in or out, is bit k%16 of word k/16.
//
// A failed transfer is reported as a *StatusError carrying the nonzero
// status. Callers treat it as unrecoverable.
type Driver interface {
	ShiftIR(bits int, in []uint16) ([]uint16, error)
	ShiftDR(bits int, in []uint16) ([]uint16, error)
	// ScanOutInverted reports whether TDO bits arrive complemented.
	ScanOutInverted() bool
}

// DRHinter is implemented by drivers that want to know the length of the
// data register scan that will follow an instruction scan.
type DRHinter interface {
	HintDR(bits int)
}

// SpeedSetter is implemented by drivers whose TCK frequency can be changed.
type SpeedSetter interface {
	SetSpeed(hz int) error
}

// ErrHardware matches every error produced by a failing primitive.
var ErrHardware = errors.New("jtag: hardware protocol error")

// StatusError reports a nonzero status from a shift primitive.
type StatusError struct {
	Op     string
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jtag: %s failed with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("jtag: %s failed with status %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is makes every StatusError match ErrHardware.
func (e *StatusError) Is(target error) bool { return target == ErrHardware }

var (
	// ErrLeaseUsed is returned when a hardware lease is presented twice.
	ErrLeaseUsed = errors.New("jtag: hardware lease already used")
	// ErrLeaseRequired is returned when a hardware driver is built without
	// a lease.
	ErrLeaseRequired = errors.New("jtag: hardware lease required")
)

// HardwareLease is a single-use token that entitles its holder to open one
// physical JTAG driver. A process creates exactly one lease at startup and
// hands it to the hardware constructor; a second constructor call with the
// same lease fails.
type HardwareLease struct {
	used atomic.Bool
}

// NewHardwareLease returns an unused lease.
func NewHardwareLease() *HardwareLease {
	return &HardwareLease{}
}

// Claim consumes the lease on behalf of owner.
func (l *HardwareLease) Claim(owner string) error {
	if l == nil {
		return fmt.Errorf("%w for %s", ErrLeaseRequired, owner)
	}
	if !l.used.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrLeaseUsed, owner)
	}
	return nil
}

// Used reports whether the lease has been claimed.
func (l *HardwareLease) Used() bool {
	return l.used.Load()
}

// SerializedDriver guards a Driver with a mutex so several goroutines can
// share it. Each primitive call holds the lock; Do holds it across a whole
// IR+DR pair so scans of different shifts never interleave.
type SerializedDriver struct {
	mu     sync.Mutex
	driver Driver
}

// NewSerializedDriver wraps d.
func NewSerializedDriver(d Driver) *SerializedDriver {
	return &SerializedDriver{driver: d}
}

// Do runs fn with exclusive use of the wrapped driver. fn must use the
// driver it is given, not s.
func (s *SerializedDriver) Do(fn func(Driver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.driver)
}

func (s *SerializedDriver) ShiftIR(bits int, in []uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.ShiftIR(bits, in)
}

func (s *SerializedDriver) ShiftDR(bits int, in []uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.ShiftDR(bits, in)
}

func (s *SerializedDriver) ScanOutInverted() bool {
	return s.driver.ScanOutInverted()
}

// PackWords packs stream-ordered bits into 16-bit words.
func PackWords(bits []bool) []uint16 {
	out := make([]uint16, (len(bits)+15)/16)
	for i, b := range bits {
		if b {
			out[i/16] |= 1 << (uint(i) % 16)
		}
	}
	return out
}

// UnpackWords returns the first n stream-ordered bits of words. Missing
// words read as zero.
func UnpackWords(words []uint16, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		if i/16 < len(words) {
			out[i] = words[i/16]&(1<<(uint(i)%16)) != 0
		}
	}
	return out
}
