package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/tap"
)

// AdapterDriver implements Driver on top of a bit-banging Adapter. Each
// primitive call becomes one adapter transfer that walks the TAP from
// Run-Test/Idle into Shift-IR or Shift-DR, shifts the payload, and returns to
// Run-Test/Idle through Update.
type AdapterDriver struct {
	adapter  Adapter
	tap      *tap.StateMachine
	inverted bool
	ready    bool
	drHint   int
}

// NewAdapterDriver wraps adapter. inverted declares that the target's TDO
// arrives complemented, as on some level-shifting cables.
func NewAdapterDriver(adapter Adapter, inverted bool) *AdapterDriver {
	return &AdapterDriver{
		adapter:  adapter,
		tap:      tap.NewStateMachine(),
		inverted: inverted,
	}
}

// Adapter returns the wrapped adapter.
func (d *AdapterDriver) Adapter() Adapter { return d.adapter }

func (d *AdapterDriver) ScanOutInverted() bool { return d.inverted }

// HintDR records the length of the next data register scan.
func (d *AdapterDriver) HintDR(bits int) { d.drHint = bits }

// LastDRHint returns the value passed to the latest HintDR call.
func (d *AdapterDriver) LastDRHint() int { return d.drHint }

// SetSpeed forwards to the adapter.
func (d *AdapterDriver) SetSpeed(hz int) error {
	if err := d.adapter.SetSpeed(hz); err != nil && !errors.Is(err, ErrNotImplemented) {
		return err
	}
	return nil
}

func (d *AdapterDriver) ShiftIR(bits int, in []uint16) ([]uint16, error) {
	return d.scan("ShiftIR", tap.StateShiftIR, bits, in)
}

func (d *AdapterDriver) ShiftDR(bits int, in []uint16) ([]uint16, error) {
	return d.scan("ShiftDR", tap.StateShiftDR, bits, in)
}

// idle brings the TAP to Run-Test/Idle through Test-Logic-Reset once, before
// the first scan.
func (d *AdapterDriver) idle() error {
	if d.ready {
		return nil
	}
	seq := d.tap.Reset()
	toIdle, err := d.tap.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return err
	}
	tms := append(seq.TMS, toIdle.TMS...)
	if _, err := d.adapter.ShiftDR(boolsToBytes(tms), make([]byte, (len(tms)+7)/8), len(tms)); err != nil {
		return &StatusError{Op: "reset", Status: 1, Err: err}
	}
	d.ready = true
	return nil
}

func (d *AdapterDriver) scan(op string, state tap.State, bits int, in []uint16) ([]uint16, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("jtag: %s: bits must be positive, got %d", op, bits)
	}
	if err := d.idle(); err != nil {
		return nil, err
	}
	plan, err := d.tap.Scan(state, bits)
	if err != nil {
		return nil, err
	}

	tdi := make([]bool, len(plan.TMS))
	copy(tdi[plan.First:], UnpackWords(in, bits))
	tmsBytes, tdiBytes := boolsToBytes(plan.TMS), boolsToBytes(tdi)

	var tdo []byte
	if state == tap.StateShiftIR {
		tdo, err = d.adapter.ShiftIR(tmsBytes, tdiBytes, len(plan.TMS))
	} else {
		tdo, err = d.adapter.ShiftDR(tmsBytes, tdiBytes, len(plan.TMS))
	}
	if err != nil {
		// The local TAP model no longer matches the target.
		d.ready = false
		return nil, &StatusError{Op: op, Status: 1, Err: err}
	}

	all := bytesToBools(tdo, len(plan.TMS))
	return PackWords(all[plan.First : plan.First+bits]), nil
}

func boolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

func bytesToBools(buf []byte, bits int) []bool {
	out := make([]bool, bits)
	for i := 0; i < bits && i/8 < len(buf); i++ {
		out[i] = buf[i/8]&(1<<(uint(i)%8)) != 0
	}
	return out
}
