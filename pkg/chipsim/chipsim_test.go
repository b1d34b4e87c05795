package chipsim

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

func oneChip(t *testing.T, access scan.Access, clears scan.ClearBehavior) *scan.Tree {
	t.Helper()
	tree := scan.New("sys")
	c, _ := tree.AddChip("c", 4, "")
	if _, err := tree.AddChain(c, "r", "01", 3, access, clears); err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	return tree
}

func shiftIR(t *testing.T, s *Sim, ir string) string {
	t.Helper()
	words, err := shift.StringToWords(ir)
	if err != nil {
		t.Fatalf("StringToWords returned error: %v", err)
	}
	out, err := s.ShiftIR(len(ir), words)
	if err != nil {
		t.Fatalf("ShiftIR returned error: %v", err)
	}
	return shift.WordsToString(out, len(ir))
}

func shiftDR(t *testing.T, s *Sim, dr string) string {
	t.Helper()
	words, err := shift.StringToWords(dr)
	if err != nil {
		t.Fatalf("StringToWords returned error: %v", err)
	}
	out, err := s.ShiftDR(len(dr), words)
	if err != nil {
		t.Fatalf("ShiftDR returned error: %v", err)
	}
	return shift.WordsToString(out, len(dr))
}

func TestInstructionCaptureAndLoad(t *testing.T) {
	s, err := New(oneChip(t, scan.Access{}, scan.ClearsNot))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if ir, _ := s.Instruction("c"); ir != "1111" {
		t.Fatalf("reset IR = %q, want bypass", ir)
	}
	if got := shiftIR(t, s, "0001"); got != "0001" {
		t.Fatalf("IR scan-out = %q, want 0001", got)
	}
	if ir, _ := s.Instruction("c"); ir != "0001" {
		t.Fatalf("IR = %q, want 0001", ir)
	}
	if _, err := s.Instruction("d"); err == nil {
		t.Fatalf("expected error for unknown chip")
	}
}

func TestDataRegisterShiftsPreviousContents(t *testing.T) {
	s, _ := New(oneChip(t, scan.Access{}, scan.ClearsNot))
	shiftIR(t, s, "0001")
	if got := shiftDR(t, s, "110"); got != "000" {
		t.Fatalf("first scan-out = %q", got)
	}
	if got := shiftDR(t, s, "011"); got != "110" {
		t.Fatalf("second scan-out = %q, want 110", got)
	}
	// A longer scan pushes the register contents out after the new bits.
	if got := shiftDR(t, s, "10000"); got != "00011" {
		t.Fatalf("long scan-out = %q, want 00011", got)
	}
	if got, _ := s.Contents("c.r"); got != "100" {
		t.Fatalf("contents = %q, want 100", got)
	}
}

func TestBypassCapturesZero(t *testing.T) {
	s, _ := New(oneChip(t, scan.Access{}, scan.ClearsNot))
	if got := shiftDR(t, s, "1"); got != "0" {
		t.Fatalf("bypass scan-out = %q", got)
	}
	if got := shiftDR(t, s, "11"); got != "10" {
		t.Fatalf("two-bit scan through bypass = %q, want 10", got)
	}
}

func TestShadowReadWrite(t *testing.T) {
	rws := scan.Access{Readable: true, Writeable: true, UsesShadow: true}
	s, _ := New(oneChip(t, rws, scan.ClearsHigh))

	shiftIR(t, s, "0101") // write
	shiftDR(t, s, "101")
	if got, _ := s.Shadow("c.r"); got != "101" {
		t.Fatalf("shadow = %q, want 101", got)
	}

	shiftIR(t, s, "1001") // read
	if got := shiftDR(t, s, "000"); got != "101" {
		t.Fatalf("read scan-out = %q, want 101", got)
	}
	if got, _ := s.Contents("c.r"); got != "101" {
		t.Fatalf("single-ported read should reload the register, got %q", got)
	}

	if err := s.MasterClear(""); err != nil {
		t.Fatalf("MasterClear returned error: %v", err)
	}
	if got, _ := s.Shadow("c.r"); got != "111" {
		t.Fatalf("shadow after clear = %q, want 111", got)
	}
	if err := s.MasterClear("x"); err == nil {
		t.Fatalf("expected error for unknown chip")
	}
}

func TestInvertedOutput(t *testing.T) {
	s, _ := New(oneChip(t, scan.Access{}, scan.ClearsNot), Inverted())
	if !s.ScanOutInverted() {
		t.Fatalf("ScanOutInverted = false")
	}
	if got := shiftIR(t, s, "0001"); got != "1110" {
		t.Fatalf("inverted IR scan-out = %q, want 1110", got)
	}
}

func TestFailInjection(t *testing.T) {
	s, _ := New(oneChip(t, scan.Access{}, scan.ClearsNot))
	s.Fail("ShiftIR", 7)
	_, err := s.ShiftIR(4, []uint16{0xF})
	var se *jtag.StatusError
	if !errors.As(err, &se) || se.Status != 7 {
		t.Fatalf("error = %v, want status 7", err)
	}
	if _, err := s.ShiftIR(4, []uint16{0xF}); err != nil {
		t.Fatalf("failure should be one-shot, got %v", err)
	}
}

func TestSetShadowValidates(t *testing.T) {
	s, _ := New(oneChip(t, scan.Access{Readable: true, UsesDualPortedShadow: true}, scan.ClearsNot))
	if err := s.SetShadow("c.r", "01"); err == nil {
		t.Fatalf("expected length error")
	}
	if err := s.SetShadow("c.r", "0-1"); err == nil {
		t.Fatalf("expected digit error")
	}
	if err := s.SetShadow("c.x", "011"); err == nil {
		t.Fatalf("expected unknown chain error")
	}
	if err := s.SetShadow("c.r", "011"); err != nil {
		t.Fatalf("SetShadow returned error: %v", err)
	}
}

func TestNewRejectsSharedOpcode(t *testing.T) {
	tree := oneChip(t, scan.Access{}, scan.ClearsNot)
	c, _ := tree.FindChip("c")
	if _, err := tree.AddChain(c, "r2", "1", 2, scan.Access{}, scan.ClearsNot); err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	if _, err := New(tree); err == nil {
		t.Fatalf("expected error for chains sharing opcode 0001")
	}
}

func TestSpeedAndHint(t *testing.T) {
	s, _ := New(oneChip(t, scan.Access{}, scan.ClearsNot))
	if err := s.SetSpeed(0); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := s.SetSpeed(2000); err != nil || s.Speed() != 2000 {
		t.Fatalf("SetSpeed = %v, Speed = %d", err, s.Speed())
	}
	s.HintDR(9)
	if s.LastDRHint() != 9 {
		t.Fatalf("LastDRHint = %d", s.LastDRHint())
	}
}
