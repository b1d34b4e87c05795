package shift_test

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/chipsim"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

var rws = scan.Access{Readable: true, Writeable: true, UsesShadow: true}

// twoChips returns chip a (IR 4, chain data) and chip b (IR 6, chain ctl
// with 15 bits over four subchains).
func twoChips(t *testing.T) (*scan.Tree, scan.NodeID) {
	t.Helper()
	tree := scan.New("sys")
	a, err := tree.AddChip("a", 4, "")
	if err != nil {
		t.Fatalf("AddChip returned error: %v", err)
	}
	if _, err := tree.AddChain(a, "data", "01", 8, scan.Access{Readable: true}, scan.ClearsNot); err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	b, err := tree.AddChip("b", 6, "")
	if err != nil {
		t.Fatalf("AddChip returned error: %v", err)
	}
	ctl, err := tree.AddChain(b, "ctl", "101", 0, scan.Access{}, scan.ClearsLow)
	if err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	for i, n := range []int{5, 0, 7, 3} {
		if _, err := tree.AddSubchain(ctl, string(rune('p'+i)), n, rws, scan.ClearsLow); err != nil {
			t.Fatalf("AddSubchain returned error: %v", err)
		}
	}
	return tree, ctl
}

func newSim(t *testing.T, tree *scan.Tree, opts ...chipsim.Option) *chipsim.Sim {
	t.Helper()
	sim, err := chipsim.New(tree, opts...)
	if err != nil {
		t.Fatalf("chipsim.New returned error: %v", err)
	}
	return sim
}

func TestInstructionRegister(t *testing.T) {
	tree, ctl := twoChips(t)
	e := shift.NewEngine(tree, newSim(t, tree))

	ir, err := e.InstructionRegister(ctl, true, false)
	if err != nil {
		t.Fatalf("InstructionRegister returned error: %v", err)
	}
	if ir != "1111100101" {
		t.Fatalf("IR = %q, want 1111100101", ir)
	}
	if got := e.CapturePattern(); got != "0001000001" {
		t.Fatalf("CapturePattern = %q", got)
	}

	chip, _ := tree.FindChip("b")
	if _, err := e.InstructionRegister(chip, false, false); !errors.Is(err, scan.ErrWrongKind) {
		t.Fatalf("error = %v, want ErrWrongKind", err)
	}
}

func TestShiftRoundTrip(t *testing.T) {
	for _, inverted := range []bool{false, true} {
		name := "plain"
		var opts []chipsim.Option
		if inverted {
			name = "inverted"
			opts = append(opts, chipsim.Inverted())
		}
		t.Run(name, func(t *testing.T) {
			tree, ctl := twoChips(t)
			sim := newSim(t, tree, opts...)
			e := shift.NewEngine(tree, sim)
			ch := tree.Node(ctl).Chain

			if err := ch.InBits.PutString(0, "110100111000101"); err != nil {
				t.Fatalf("PutString returned error: %v", err)
			}
			if err := e.Shift(ctl, false, true, report.Fatal); err != nil {
				t.Fatalf("Shift returned error: %v", err)
			}
			if got := ch.OutBits.String(); got != strings.Repeat("0", 15) {
				t.Fatalf("first OutBits = %s, want zeros", got)
			}
			if sim.LastDRHint() != 16 {
				t.Fatalf("DR hint = %d, want 16", sim.LastDRHint())
			}
			if ir, _ := sim.Instruction("b"); ir != "010101" {
				t.Fatalf("chip b IR = %q, want 010101", ir)
			}
			if ir, _ := sim.Instruction("a"); ir != "1111" {
				t.Fatalf("chip a IR = %q, want 1111", ir)
			}

			ch.InBits.SetAll(false)
			if err := e.Shift(ctl, false, false, report.Fatal); err != nil {
				t.Fatalf("Shift returned error: %v", err)
			}
			if got := ch.OutBits.String(); got != "110100111000101" {
				t.Fatalf("second OutBits = %s, want 110100111000101", got)
			}
		})
	}
}

func TestShiftFirstChipPadsHighIndices(t *testing.T) {
	tree, _ := twoChips(t)
	data, err := tree.FindChain("a.data")
	if err != nil {
		t.Fatalf("FindChain returned error: %v", err)
	}
	sim := newSim(t, tree)
	e := shift.NewEngine(tree, jtag.NewSerializedDriver(sim))
	ch := tree.Node(data).Chain

	for _, bits := range []string{"10110001", "00000000"} {
		if err := ch.InBits.PutString(0, bits); err != nil {
			t.Fatalf("PutString returned error: %v", err)
		}
		if err := e.Shift(data, false, false, report.Fatal); err != nil {
			t.Fatalf("Shift returned error: %v", err)
		}
	}
	if got := ch.OutBits.String(); got != "10110001" {
		t.Fatalf("OutBits = %s, want 10110001", got)
	}
	if got, _ := sim.Contents("a.data"); got != "00000000" {
		t.Fatalf("register = %s", got)
	}
}

// corruptIR flips the first scanned-out IR bit.
type corruptIR struct {
	jtag.Driver
}

func (c corruptIR) ShiftIR(bits int, in []uint16) ([]uint16, error) {
	out, err := c.Driver.ShiftIR(bits, in)
	if err == nil {
		out[0] ^= 1
	}
	return out, err
}

func TestShiftIRMismatchSeverity(t *testing.T) {
	tree, ctl := twoChips(t)
	tree.Node(ctl).Chain.InBits.SetAll(false)

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	e := shift.NewEngine(tree, corruptIR{newSim(t, tree)}, shift.WithLogger(logger))

	err := e.Shift(ctl, false, false, report.Fatal)
	if !errors.Is(err, shift.ErrIRCapture) {
		t.Fatalf("error = %v, want ErrIRCapture", err)
	}
	if !strings.Contains(err.Error(), shift.IRHint) {
		t.Fatalf("error %q lacks the cable hint", err)
	}

	if err := e.Shift(ctl, false, false, report.Warning); err != nil {
		t.Fatalf("Shift at Warning returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "warning: ") {
		t.Fatalf("warning not logged: %q", buf.String())
	}

	if err := e.Shift(ctl, false, false, report.NonFatal); err != nil {
		t.Fatalf("Shift at NonFatal returned error: %v", err)
	}
	if e.Reporter().NonFatalCount() != 1 {
		t.Fatalf("NonFatalCount = %d, want 1", e.Reporter().NonFatalCount())
	}
}

func TestShiftHardwareFailure(t *testing.T) {
	tree, ctl := twoChips(t)
	tree.Node(ctl).Chain.InBits.SetAll(false)
	sim := newSim(t, tree)
	e := shift.NewEngine(tree, sim)

	sim.Fail("ShiftDR", 5)
	err := e.Shift(ctl, false, false, report.Silent)
	var se *jtag.StatusError
	if !errors.As(err, &se) || se.Status != 5 {
		t.Fatalf("error = %v, want status 5", err)
	}
	if !errors.Is(err, jtag.ErrHardware) {
		t.Fatalf("error %v does not match ErrHardware", err)
	}
	if err := e.Shift(ctl, false, false, report.Fatal); err != nil {
		t.Fatalf("Shift after failure returned error: %v", err)
	}
}

// onesDR reports every data register bit as one.
type onesDR struct {
	jtag.Driver
}

func (o onesDR) ShiftDR(bits int, in []uint16) ([]uint16, error) {
	if _, err := o.Driver.ShiftDR(bits, in); err != nil {
		return nil, err
	}
	out := make([]uint16, (bits+15)/16)
	for i := range out {
		out[i] = 0xFFFF
	}
	return out, nil
}

func TestShiftBypassCheck(t *testing.T) {
	tree := scan.New("sys")
	c, _ := tree.AddChip("c", 5, "")
	byp, err := tree.AddChain(c, "byp", "111", 4, scan.Access{}, scan.ClearsNot)
	if err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	tree.Node(byp).Chain.InBits.SetAll(true)

	sim := newSim(t, tree)
	if err := shift.NewEngine(tree, sim).Shift(byp, false, false, report.Fatal); err != nil {
		t.Fatalf("Shift returned error: %v", err)
	}
	if got := tree.Node(byp).Chain.OutBits.String(); got != "0000" {
		t.Fatalf("OutBits = %s", got)
	}

	err = shift.NewEngine(tree, onesDR{sim}).Shift(byp, false, false, report.Fatal)
	if !errors.Is(err, shift.ErrBypass) {
		t.Fatalf("error = %v, want ErrBypass", err)
	}
}

func TestShiftVerboseLogsIR(t *testing.T) {
	tree, ctl := twoChips(t)
	tree.Node(ctl).Chain.InBits.SetAll(false)
	var buf bytes.Buffer
	e := shift.NewEngine(tree, newSim(t, tree), shift.WithLogger(log.New(&buf, "", 0)), shift.WithVerbose(true))
	if err := e.Shift(ctl, true, true, report.Fatal); err != nil {
		t.Fatalf("Shift returned error: %v", err)
	}
	if got := buf.String(); got != "b.ctl: IR 1111110101\n" {
		t.Fatalf("log = %q", got)
	}
}
