package control

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/chipsim"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

type harness struct {
	ctl   *Controller
	sim   *chipsim.Sim
	log   *bytes.Buffer
	exits []int
}

// newHarness builds chip "io" (IR 3, chain "pads" of 4 bits, no shadows)
// and chip "core" (IR 5, chain "cfg" with subchains mode[3] RWS clearing
// high and gain[2] RWS clearing low).
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	tree := scan.New("board")
	io, _ := tree.AddChip("io", 3, "pad ring")
	if _, err := tree.AddChain(io, "pads", "10", 4, scan.Access{Readable: true, Writeable: true}, scan.ClearsNot); err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	core, _ := tree.AddChip("core", 5, "")
	cfg, err := tree.AddChain(core, "cfg", "10", 0, scan.Access{}, scan.ClearsNot)
	if err != nil {
		t.Fatalf("AddChain returned error: %v", err)
	}
	rws := scan.Access{Readable: true, Writeable: true, UsesShadow: true}
	if _, err := tree.AddSubchain(cfg, "mode", 3, rws, scan.ClearsHigh); err != nil {
		t.Fatalf("AddSubchain returned error: %v", err)
	}
	if _, err := tree.AddSubchain(cfg, "gain", 2, rws, scan.ClearsLow); err != nil {
		t.Fatalf("AddSubchain returned error: %v", err)
	}
	sim, err := chipsim.New(tree)
	if err != nil {
		t.Fatalf("chipsim.New returned error: %v", err)
	}
	h := &harness{sim: sim, log: &bytes.Buffer{}}
	opts = append([]Option{
		WithLogger(log.New(h.log, "", 0)),
		WithExit(func(code int) { h.exits = append(h.exits, code) }),
	}, opts...)
	h.ctl = New(tree, sim, opts...)
	return h
}

func (h *harness) noFatal(t *testing.T) {
	t.Helper()
	if len(h.exits) != 0 {
		t.Fatalf("unexpected fatal exit %v:\n%s", h.exits, h.log)
	}
}

func TestWriteReadBackThroughPaths(t *testing.T) {
	h := newHarness(t)
	c := h.ctl

	c.SetInBitsString("core.cfg.mode", "101")
	c.SetInBitsString("core.cfg.gain", "01")
	if got := c.InBits("core.cfg").String(); got != "10101" {
		t.Fatalf("InBits = %s, want 10101", got)
	}
	if !c.Shift("core.cfg", false, true) {
		t.Fatalf("write shift mismatched")
	}
	c.SetInBitsAll("core.cfg", false)
	if !c.Shift("core.cfg", true, false) {
		t.Fatalf("read shift mismatched:\n%s", h.log)
	}
	if got := c.OutBits("core.cfg.mode").String(); got != "101" {
		t.Fatalf("OutBits(mode) = %s, want 101", got)
	}
	if got := c.ExpectedBits("core.cfg.gain").String(); got != "01" {
		t.Fatalf("ExpectedBits(gain) = %s, want 01", got)
	}
	if got := c.OutBits("core.cfg.gain").Name(); got != "core.cfg.gain" {
		t.Fatalf("vector name = %q", got)
	}
	h.noFatal(t)
}

func TestMasterClearAndResetInBits(t *testing.T) {
	h := newHarness(t)
	c := h.ctl

	c.SetInBitsAll("core.cfg", false)
	c.Shift("core.cfg", false, true)
	if err := h.sim.MasterClear("core"); err != nil {
		t.Fatalf("MasterClear returned error: %v", err)
	}
	c.ProcessMasterClear("core")

	c.ResetInBits("core.cfg", true)
	if got := c.InBits("core.cfg").String(); got != "11100" {
		t.Fatalf("ResetInBits(true) = %s, want 11100", got)
	}
	if !c.Shift("core.cfg", true, false) {
		t.Fatalf("read after master clear mismatched:\n%s", h.log)
	}
	if got := c.OutBits("core.cfg").String(); got != "11100" {
		t.Fatalf("OutBits = %s, want 11100", got)
	}
	c.ResetInBits("core.cfg", false)
	if got := c.InBits("core.cfg").String(); got != "00000" {
		t.Fatalf("ResetInBits(false) = %s", got)
	}
	h.noFatal(t)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	c := h.ctl
	if got := c.Length("core.cfg"); got != 5 {
		t.Fatalf("Length = %d, want 5", got)
	}
	if got := c.Length("core.cfg.gain"); got != 2 {
		t.Fatalf("Length(gain) = %d", got)
	}
	if got := c.Opcode("core.cfg.gain"); got != "10" {
		t.Fatalf("Opcode = %q, want 10", got)
	}
	if c.DefaultSeverities() != report.DefaultSeverities() {
		t.Fatalf("unexpected default severities %+v", c.DefaultSeverities())
	}
	h.noFatal(t)
}

func TestErrorsAreFatal(t *testing.T) {
	cases := map[string]func(c *Controller){
		"unknown path":  func(c *Controller) { c.Shift("core.nope", false, false) },
		"chip as chain": func(c *Controller) { c.Shift("core", false, false) },
		"bad string":    func(c *Controller) { c.SetInBitsString("io.pads", "10x1") },
		"wrong length":  func(c *Controller) { c.SetInBitsString("io.pads", "101") },
		"unknown chip":  func(c *Controller) { c.ProcessMasterClear("dsp") },
		"invalid bits":  func(c *Controller) { c.SetInBits("io.pads", bitvec.New(4, "x")) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			fn(h.ctl)
			if len(h.exits) != 1 || h.exits[0] != 1 {
				t.Fatalf("exits = %v, want [1]", h.exits)
			}
			if !strings.HasPrefix(h.log.String(), "fatal: ") {
				t.Fatalf("log = %q", h.log)
			}
		})
	}
}

func TestMismatchEscalatesAtFatalSeverity(t *testing.T) {
	h := newHarness(t)
	c := h.ctl
	c.SetInBitsString("core.cfg", "11011")
	c.Shift("core.cfg", false, true)
	if err := h.sim.SetShadow("core.cfg", "00000"); err != nil {
		t.Fatalf("SetShadow returned error: %v", err)
	}

	lenient := c.DefaultSeverities()
	lenient.ErrTest = report.NonFatal
	if c.ShiftWith("core.cfg", true, false, lenient) {
		t.Fatalf("ShiftWith reported a match")
	}
	if c.NonFatalCount() != 1 || len(h.exits) != 0 {
		t.Fatalf("NonFatalCount = %d, exits = %v", c.NonFatalCount(), h.exits)
	}

	c.SetDefaultSeverities(report.Severities{IRBad: report.Fatal, NoTest: report.Silent, ErrTest: report.Fatal})
	c.Invalidate("core")
	c.SetInBitsAll("core.cfg", false)
	c.Shift("core.cfg", false, true)
	if err := h.sim.SetShadow("core.cfg", "11111"); err != nil {
		t.Fatalf("SetShadow returned error: %v", err)
	}
	c.Shift("core.cfg", true, false)
	if len(h.exits) != 1 {
		t.Fatalf("exits = %v, want one fatal exit", h.exits)
	}
	if !strings.Contains(h.log.String(), "expected: 00000") {
		t.Fatalf("fatal log lacks the expectation dump:\n%s", h.log)
	}
}

func TestSetSpeed(t *testing.T) {
	h := newHarness(t)
	h.ctl.SetSpeed(400)
	if h.sim.Speed() != 400_000 {
		t.Fatalf("Speed = %d, want 400000", h.sim.Speed())
	}
	h.ctl.SetSpeed(0)
	if len(h.exits) != 1 {
		t.Fatalf("exits = %v, want one fatal exit", h.exits)
	}
}

func TestSetSpeedWithoutSpeedSetter(t *testing.T) {
	var buf bytes.Buffer
	tree := scan.New("board")
	c := New(tree, noSpeed{}, WithLogger(log.New(&buf, "", 0)), WithExit(func(int) { t.Fatalf("unexpected exit") }))
	c.SetSpeed(100)
	if !strings.Contains(buf.String(), "cannot change TCK") {
		t.Fatalf("log = %q", buf.String())
	}
}

type noSpeed struct{}

func (noSpeed) ShiftIR(bits int, in []uint16) ([]uint16, error) { return in, nil }
func (noSpeed) ShiftDR(bits int, in []uint16) ([]uint16, error) { return in, nil }
func (noSpeed) ScanOutInverted() bool                          { return false }

var _ jtag.Driver = noSpeed{}
