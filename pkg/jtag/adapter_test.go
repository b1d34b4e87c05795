package jtag

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateShiftBuffers(t *testing.T) {
	cases := []struct {
		name     string
		tms, tdi []byte
		bits     int
		want     int
		ok       bool
	}{
		{"no clocks", nil, nil, 0, 0, false},
		{"negative", nil, nil, -3, 0, false},
		{"empty buffers allowed", nil, nil, 9, 2, true},
		{"short tms", []byte{0}, nil, 9, 0, false},
		{"short tdi", []byte{0, 0}, []byte{0}, 9, 0, false},
		{"exact", []byte{0}, []byte{1}, 8, 1, true},
		{"oversized", []byte{0, 0, 0}, []byte{0, 0, 0}, 1, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateShiftBuffers(tc.tms, tc.tdi, tc.bits)
			if tc.ok != (err == nil) {
				t.Fatalf("ValidateShiftBuffers error = %v, want ok=%v", err, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("ValidateShiftBuffers = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSimAdapterLoopback(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "loop"})
	tdo, err := sim.ShiftDR(nil, []byte{0x5A, 0x01}, 9)
	if err != nil {
		t.Fatalf("ShiftDR returned error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x5A, 0x01}, tdo); diff != "" {
		t.Fatalf("loopback mismatch (-want +got):\n%s", diff)
	}

	tdo, err = sim.ShiftIR(nil, nil, 4)
	if err != nil {
		t.Fatalf("ShiftIR returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0}) {
		t.Fatalf("tdo with no TDI = %X, want 00", tdo)
	}
	if last := sim.LastShift(); last.Region != ShiftRegionIR || last.Bits != 4 {
		t.Fatalf("LastShift = %+v", last)
	}
}

func TestSimAdapterHookFailure(t *testing.T) {
	stuck := errors.New("tdo stuck")
	sim := NewSimAdapter(AdapterInfo{})
	sim.OnShift = func(region ShiftRegion, _, tdi []byte, bits int) ([]byte, error) {
		if region == ShiftRegionDR {
			return nil, stuck
		}
		return []byte{0x01}, nil
	}

	if tdo, err := sim.ShiftIR(nil, nil, 2); err != nil || tdo[0] != 0x01 {
		t.Fatalf("ShiftIR = %X, %v", tdo, err)
	}
	if _, err := sim.ShiftDR(nil, nil, 2); !errors.Is(err, stuck) {
		t.Fatalf("ShiftDR error = %v, want hook error", err)
	}
	// Failed transfers are still recorded.
	if n := len(sim.History()); n != 2 {
		t.Fatalf("History has %d entries, want 2", n)
	}
}

func TestSimAdapterResetsAndSpeed(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	if err := sim.SetSpeed(400_000); err != nil {
		t.Fatalf("SetSpeed returned error: %v", err)
	}
	if sim.SpeedHz != 400_000 {
		t.Fatalf("SpeedHz = %d", sim.SpeedHz)
	}
	if err := sim.SetSpeed(-1); err == nil {
		t.Fatalf("expected error for negative speed")
	}

	for _, hard := range []bool{false, true, true} {
		if err := sim.ResetTAP(hard); err != nil {
			t.Fatalf("ResetTAP(%v) returned error: %v", hard, err)
		}
	}
	if soft, hard := sim.ResetCounts(); soft != 3 || hard != 2 {
		t.Fatalf("ResetCounts = %d/%d, want 3/2", soft, hard)
	}
}

func TestSimAdapterHistory(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	if got := sim.LastShift(); got.Bits != 0 {
		t.Fatalf("LastShift on fresh adapter = %+v", got)
	}
	tms := []byte{0x01}
	if _, err := sim.ShiftIR(tms, []byte{0x02}, 3); err != nil {
		t.Fatalf("ShiftIR returned error: %v", err)
	}
	tms[0] = 0xFF
	if _, err := sim.ShiftDR(nil, nil, 5); err != nil {
		t.Fatalf("ShiftDR returned error: %v", err)
	}
	ops := sim.History()
	if len(ops) != 2 {
		t.Fatalf("History has %d entries, want 2", len(ops))
	}
	if ops[0].Region != ShiftRegionIR || !bytes.Equal(ops[0].TMS, []byte{0x01}) {
		t.Fatalf("history did not copy the IR transfer: %+v", ops[0])
	}
	if ops[1].Region != ShiftRegionDR || ops[1].Bits != 5 {
		t.Fatalf("unexpected DR entry: %+v", ops[1])
	}
}
