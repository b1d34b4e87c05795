// Package jtag connects the scan-chain engine to JTAG hardware.
//
// Two layers live here. Adapter is the bit-banging contract of a USB probe:
// per-clock TMS and TDI buffers in, TDO buffer out. Driver is the word-level
// IR/DR primitive pair the shift engine consumes. AdapterDriver bridges the
// two by planning TAP walks with package tap.
package jtag

import (
	"errors"
	"fmt"
)

// AdapterInfo describes a probe as reported by its firmware.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	SupportsSRST bool
	SupportsTRST bool
	Notes        string
}

// Adapter drives TCK/TMS/TDI and samples TDO. Buffers hold one bit per clock,
// least significant bit of byte 0 first.
type Adapter interface {
	Info() (AdapterInfo, error)
	ShiftIR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ShiftDR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
}

// ErrNotImplemented is returned by adapters lacking an optional capability.
var ErrNotImplemented = errors.New("jtag: not implemented")

// ValidateShiftBuffers checks that non-empty TMS/TDI buffers cover bits
// clocks and returns the byte count needed for them.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	need := (bits + 7) / 8
	if len(tms) > 0 && len(tms) < need {
		return 0, fmt.Errorf("jtag: tms buffer has %d bytes, need %d", len(tms), need)
	}
	if len(tdi) > 0 && len(tdi) < need {
		return 0, fmt.Errorf("jtag: tdi buffer has %d bytes, need %d", len(tdi), need)
	}
	return need, nil
}
