// Package shift drives scan-chain shifts through the instruction and data
// registers of a daisy chain of JTAG controllers.
//
// Chips are ordered by their position on the daisy chain, position 0
// nearest TDI. Every chip other than the target is put in bypass, which
// contributes one data register bit.
package shift

import (
	"errors"
	"fmt"
	"log"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

var (
	// ErrIRCapture reports an instruction register that did not scan out
	// its capture pattern.
	ErrIRCapture = errors.New("shift: instruction register scan-out mismatch")
	// ErrBypass reports a chain in bypass whose data scanned out nonzero.
	ErrBypass = errors.New("shift: bypass chain scanned out ones")
	// ErrOpcode reports an opcode that cannot be placed in its chip's IR.
	ErrOpcode = errors.New("shift: bad opcode")
)

// IRHint is appended to instruction register failures.
const IRHint = "bad or too-long JTAG cable, bad jtagVolts/jtagKhz, bad Vdd, broken controller"

// Engine shifts the chains of one tree through one driver.
type Engine struct {
	tree     *scan.Tree
	driver   jtag.Driver
	reporter *report.Reporter
	logger   *log.Logger
	verbose  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for verbose output.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithReporter sets where non-fatal IR failures go.
func WithReporter(r *report.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithVerbose logs every instruction register written.
func WithVerbose(v bool) Option {
	return func(e *Engine) { e.verbose = v }
}

// NewEngine returns an engine for tree over driver.
func NewEngine(tree *scan.Tree, driver jtag.Driver, opts ...Option) *Engine {
	e := &Engine{tree: tree, driver: driver, logger: log.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.reporter == nil {
		e.reporter = report.NewReporter(e.logger)
	}
	return e
}

// Tree returns the tree the engine shifts.
func (e *Engine) Tree() *scan.Tree { return e.tree }

// Driver returns the driver the engine shifts through.
func (e *Engine) Driver() jtag.Driver { return e.driver }

// Reporter returns the reporter used for IR failures.
func (e *Engine) Reporter() *report.Reporter { return e.reporter }

// PadOpcode left-pads opcode with zeros to irLength and overwrites its first
// two characters with the read and write enables.
func PadOpcode(opcode string, irLength int, readEnable, writeEnable bool) (string, error) {
	if irLength < 2 {
		return "", fmt.Errorf("%w: IR length %d leaves no room for the enables", ErrOpcode, irLength)
	}
	if len(opcode) > irLength {
		return "", fmt.Errorf("%w: %q is longer than the %d-bit IR", ErrOpcode, opcode, irLength)
	}
	if strings.Trim(opcode, "01") != "" {
		return "", fmt.Errorf("%w: %q is not binary", ErrOpcode, opcode)
	}
	b := []byte(strings.Repeat("0", irLength-len(opcode)) + opcode)
	b[0], b[1] = enableChar(readEnable), enableChar(writeEnable)
	return string(b), nil
}

func enableChar(v bool) byte {
	if v {
		return '1'
	}
	return '0'
}

// bypassPattern is the bypass opcode of an irLength-bit IR with both
// enables clear.
func bypassPattern(irLength int) string {
	return "00" + strings.Repeat("1", irLength-2)
}

// InstructionRegister builds the daisy-chain IR string that selects chain:
// its chip gets the padded opcode, every other chip all ones.
func (e *Engine) InstructionRegister(chain scan.NodeID, readEnable, writeEnable bool) (string, error) {
	n, err := e.chainNode(chain)
	if err != nil {
		return "", err
	}
	target, err := e.tree.ParentChip(chain)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, chip := range e.tree.Chips() {
		irLen, _ := e.tree.IRLength(chip)
		if chip != target {
			b.WriteString(strings.Repeat("1", irLen))
			continue
		}
		op, err := PadOpcode(n.Chain.Opcode, irLen, readEnable, writeEnable)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.tree.Path(chain), err)
		}
		b.WriteString(op)
	}
	return b.String(), nil
}

func (e *Engine) chainNode(id scan.NodeID) (*scan.Node, error) {
	n := e.tree.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: id %d", scan.ErrNotFound, id)
	}
	if n.Kind != scan.KindChain {
		return nil, fmt.Errorf("%w: %s is a %s, not a chain", scan.ErrWrongKind, e.tree.Path(id), n.Kind)
	}
	return n, nil
}

// CapturePattern is the expected IR scan-out: "0…01" per chip, complemented
// when the driver inverts.
func (e *Engine) CapturePattern() string {
	var b strings.Builder
	for _, chip := range e.tree.Chips() {
		irLen, _ := e.tree.IRLength(chip)
		if irLen == 0 {
			continue
		}
		b.WriteString(strings.Repeat("0", irLen-1))
		b.WriteByte('1')
	}
	if !e.driver.ScanOutInverted() {
		return b.String()
	}
	return strings.Map(func(r rune) rune {
		if r == '0' {
			return '1'
		}
		return '0'
	}, b.String())
}

// Shift writes the chain's InBits through the daisy chain and stores what
// scanned out in OutBits. A bad IR scan-out is reported at irBad; hardware
// failures and bypass violations are always returned.
func (e *Engine) Shift(chain scan.NodeID, readEnable, writeEnable bool, irBad report.Severity) error {
	if _, err := e.chainNode(chain); err != nil {
		return err
	}
	chip, err := e.tree.ParentChip(chain)
	if err != nil {
		return err
	}
	pos, err := e.tree.ChipPosition(chip)
	if err != nil {
		return err
	}
	ir, err := e.InstructionRegister(chain, readEnable, writeEnable)
	if err != nil {
		return pkgerrors.WithStack(err)
	}

	node := e.tree.Node(chain)
	path := e.tree.Path(chain)
	pre, post := pos, len(e.tree.Chips())-1-pos
	length := node.Length()

	dr := bitvec.New(pre+length+post, path+".dr")
	dr.SetAll(false)
	dr.Put(pre, node.Chain.InBits)

	if e.verbose {
		e.logger.Printf("%s: IR %s", path, ir)
	}

	run := func(d jtag.Driver) error {
		if h, ok := d.(jtag.DRHinter); ok {
			h.HintDR(dr.Len())
		}
		irWords, err := StringToWords(ir)
		if err != nil {
			return pkgerrors.WithStack(err)
		}
		irOut, err := d.ShiftIR(len(ir), irWords)
		if err != nil {
			return pkgerrors.Wrapf(err, "shift: %s: instruction scan", path)
		}
		if got, want := WordsToString(irOut, len(ir)), e.CapturePattern(); got != want {
			rerr := pkgerrors.Wrapf(ErrIRCapture, "%s: scanned out %s, expected %s; check %s", path, got, want, IRHint)
			if err := e.reporter.Report(irBad, rerr); err != nil {
				return err
			}
		}
		if dr.Len() == 0 {
			return nil
		}
		drOut, err := d.ShiftDR(dr.Len(), VectorToWords(dr))
		if err != nil {
			return pkgerrors.Wrapf(err, "shift: %s: data scan", path)
		}
		out := WordsToVector(drOut, dr.Len(), path+".dr")
		if d.ScanOutInverted() {
			out.FlipRange(0, out.Len())
		}
		node.Chain.OutBits.Put(0, out.Range(pre, length))
		return nil
	}

	if s, ok := e.driver.(*jtag.SerializedDriver); ok {
		err = s.Do(run)
	} else {
		err = run(e.driver)
	}
	if err != nil {
		return err
	}
	return e.checkBypass(chain, chip)
}

func (e *Engine) checkBypass(chain, chip scan.NodeID) error {
	irLen, _ := e.tree.IRLength(chip)
	node := e.tree.Node(chain)
	op, err := PadOpcode(node.Chain.Opcode, irLen, false, false)
	if err != nil || op != bypassPattern(irLen) {
		return nil
	}
	if out := node.Chain.OutBits; !out.IsEmpty() {
		return pkgerrors.Wrapf(ErrBypass, "%s: scanned out %s", e.tree.Path(chain), out)
	}
	return nil
}
