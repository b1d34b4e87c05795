// Package consistency predicts what every scan-chain shift should read back
// and checks the hardware against that prediction.
//
// The prediction for each chain lives in its OutBitsExpected vector, with
// Unknown wherever nothing can be said. Shadow registers are tracked in
// ShadowState so reads of single-ported shadows can be predicted across
// shifts and master clears.
package consistency

import (
	"errors"
	"fmt"
	"log"

	pkgerrors "github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

var (
	// ErrMismatch reports scanned-out bits that contradict the prediction.
	ErrMismatch = errors.New("consistency: scanned-out bits differ from expectation")
	// ErrNoComparison reports a shift of an initialized chain with no
	// predictable bit.
	ErrNoComparison = errors.New("consistency: no expected bits to compare")
)

// Tracker runs shifts through an engine and keeps the chain predictions.
type Tracker struct {
	engine  *shift.Engine
	logger  *log.Logger
	verbose bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger for the per-shift banner.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithVerbose logs a banner before every shift.
func WithVerbose(v bool) Option {
	return func(t *Tracker) { t.verbose = v }
}

// NewTracker returns a tracker over engine.
func NewTracker(engine *shift.Engine, opts ...Option) *Tracker {
	t := &Tracker{engine: engine, logger: log.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Engine returns the underlying shift engine.
func (t *Tracker) Engine() *shift.Engine { return t.engine }

func (t *Tracker) chain(id scan.NodeID) (*scan.Chain, []*scan.Node, error) {
	tree := t.engine.Tree()
	n := tree.Node(id)
	if n == nil {
		return nil, nil, fmt.Errorf("%w: id %d", scan.ErrNotFound, id)
	}
	if n.Kind != scan.KindChain {
		return nil, nil, fmt.Errorf("%w: %s is a %s, not a chain", scan.ErrWrongKind, tree.Path(id), n.Kind)
	}
	elems, err := tree.Elements(id)
	if err != nil {
		return nil, nil, err
	}
	return n.Chain, elems, nil
}

// Shift shifts chain and compares what scanned out with the prediction.
// It reports false when any predicted bit differed. Conditions whose
// severity in sev is Fatal, and hardware failures, are returned as errors.
func (t *Tracker) Shift(id scan.NodeID, readEnable, writeEnable bool, sev report.Severities) (bool, error) {
	ch, elems, err := t.chain(id)
	if err != nil {
		return false, err
	}
	path := t.engine.Tree().Path(id)
	rep := t.engine.Reporter()
	if t.verbose {
		t.logger.Printf("------ %s, R=%d, W=%d", path, flag(readEnable), flag(writeEnable))
	}

	expected := ch.OutBitsExpected
	for i, e := range elems {
		a := e.Access
		switch {
		case a.Unpredictable:
			expected.Invalidate(i)
		case readEnable && a.Readable && a.UsesShadow && ch.ShadowState.IsValid(i):
			expected.SetBit(i, ch.ShadowState.Bit(i))
		case readEnable:
			expected.Invalidate(i)
		}
	}

	if expected.IsInvalid() && ch.Initialized {
		if err := rep.Report(sev.NoTest, pkgerrors.Wrapf(ErrNoComparison, "%s", path)); err != nil {
			return false, err
		}
	}
	ch.Initialized = true

	if err := t.engine.Shift(id, readEnable, writeEnable, sev.IRBad); err != nil {
		return false, err
	}

	ok := true
	for i := 0; i < expected.Len(); i++ {
		if expected.IsValid(i) && expected.Get(i) != ch.OutBits.Get(i) {
			ok = false
			break
		}
	}
	if !ok {
		merr := pkgerrors.Wrapf(ErrMismatch, "%s\nexpected: %s\n outBits: %s", path, expected, ch.OutBits)
		if err := rep.Report(sev.ErrTest, merr); err != nil {
			return false, err
		}
	}

	ch.OldOutBitsExpected.PutIndiscriminate(0, expected)
	expected.PutIndiscriminate(0, ch.InBits)

	for i, e := range elems {
		a := e.Access
		if readEnable && a.Readable && a.UsesShadow && ch.ShadowState.IsValid(i) {
			expected.SetBit(i, ch.ShadowState.Bit(i))
		}
		if writeEnable && a.Writeable && a.AnyShadow() {
			ch.ShadowState.SetBit(i, ch.InBits.Bit(i))
		}
	}

	ch.NotifyShift(id)
	return ok, nil
}

// ProcessMasterClear applies a master clear to the shadow state of chain.
func (t *Tracker) ProcessMasterClear(id scan.NodeID) error {
	ch, elems, err := t.chain(id)
	if err != nil {
		return err
	}
	for i, e := range elems {
		if !e.Access.AnyShadow() {
			continue
		}
		switch e.Clears {
		case scan.ClearsHigh:
			ch.ShadowState.Set(i)
		case scan.ClearsLow:
			ch.ShadowState.Clear(i)
		case scan.ClearsUnknown:
			ch.ShadowState.Invalidate(i)
		}
	}
	return nil
}

// Invalidate forgets every prediction for chain, as after a power cycle.
func (t *Tracker) Invalidate(id scan.NodeID) error {
	ch, _, err := t.chain(id)
	if err != nil {
		return err
	}
	ch.OutBitsExpected.InvalidateAll()
	ch.Initialized = false
	return nil
}

func flag(v bool) int {
	if v {
		return 1
	}
	return 0
}
