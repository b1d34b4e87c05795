// Package control is the path-based front end used by bring-up scripts. It
// resolves dotted paths, reads and writes chain vectors, and runs checked
// shifts with default severities.
//
// Every error reaching a Controller is treated as fatal: it is logged with
// its stack and handed to the exit hook, which terminates the process unless
// replaced. Methods return zero values after a fatal error when the hook
// returns.
package control

import (
	"log"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/consistency"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

// Controller drives the chains of one tree through one driver.
type Controller struct {
	tree       *scan.Tree
	driver     jtag.Driver
	engine     *shift.Engine
	tracker    *consistency.Tracker
	severities report.Severities
	logger     *log.Logger
	verbose    bool
	exit       func(code int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for diagnostics and fatal reports.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithVerbose enables the per-shift banner and IR logging.
func WithVerbose(v bool) Option {
	return func(c *Controller) { c.verbose = v }
}

// WithSeverities sets the severities used by Shift.
func WithSeverities(s report.Severities) Option {
	return func(c *Controller) { c.severities = s }
}

// WithExit replaces os.Exit as the fatal hook.
func WithExit(exit func(code int)) Option {
	return func(c *Controller) { c.exit = exit }
}

// New builds a controller for tree shifting through driver.
func New(tree *scan.Tree, driver jtag.Driver, opts ...Option) *Controller {
	c := &Controller{
		tree:       tree,
		driver:     driver,
		severities: report.DefaultSeverities(),
		logger:     log.Default(),
		exit:       os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.engine = shift.NewEngine(tree, driver, shift.WithLogger(c.logger), shift.WithVerbose(c.verbose))
	c.tracker = consistency.NewTracker(c.engine, consistency.WithLogger(c.logger), consistency.WithVerbose(c.verbose))
	return c
}

// Tree returns the controlled tree.
func (c *Controller) Tree() *scan.Tree { return c.tree }

// Tracker returns the consistency tracker behind Shift.
func (c *Controller) Tracker() *consistency.Tracker { return c.tracker }

// Fatal logs err with its stack and calls the exit hook with status 1.
func (c *Controller) Fatal(err error) {
	c.logger.Printf("fatal: %+v", pkgerrors.WithStack(err))
	c.exit(1)
}

// try runs fn, converting both returned errors and panics raised by
// bitvec index and validity checks into a fatal report.
func (c *Controller) try(fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err, isErr := r.(error)
			if !isErr {
				panic(r)
			}
			c.Fatal(err)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		c.Fatal(err)
		return false
	}
	return true
}

// element resolves a chain or subchain path to its chain and bit range.
func (c *Controller) element(path string) (chain *scan.Chain, from, n int, err error) {
	id, err := c.tree.FindScannable(path)
	if err != nil {
		return nil, 0, 0, err
	}
	chainID, err := c.tree.ParentChain(id)
	if err != nil {
		return nil, 0, 0, err
	}
	from, err = c.tree.BitIndex(id)
	if err != nil {
		return nil, 0, 0, err
	}
	return c.tree.Node(chainID).Chain, from, c.tree.Node(id).Length(), nil
}

func (c *Controller) chainID(path string) (scan.NodeID, error) {
	return c.tree.FindChain(path)
}

// chipChains resolves a chip path to the IDs of its chains.
func (c *Controller) chipChains(path string) ([]scan.NodeID, error) {
	chip, err := c.tree.FindChip(path)
	if err != nil {
		return nil, err
	}
	return c.tree.Node(chip).Children(), nil
}

// SetInBits writes bits into the inBits range of a chain or subchain. The
// length of bits must match the element.
func (c *Controller) SetInBits(path string, bits *bitvec.Vector) {
	c.try(func() error {
		ch, from, n, err := c.element(path)
		if err != nil {
			return err
		}
		if bits.Len() != n {
			return pkgerrors.Wrapf(bitvec.ErrIndex, "control: %s has %d bits, got %d", path, n, bits.Len())
		}
		ch.InBits.Put(from, bits)
		return nil
	})
}

// SetInBitsString writes a '0'/'1' string into the inBits of an element.
func (c *Controller) SetInBitsString(path, bits string) {
	c.try(func() error {
		v, err := bitvec.Parse(bits, path)
		if err != nil {
			return err
		}
		c.SetInBits(path, v)
		return nil
	})
}

// SetInBitsAll sets every inBit of an element to value.
func (c *Controller) SetInBitsAll(path string, value bool) {
	c.try(func() error {
		ch, from, n, err := c.element(path)
		if err != nil {
			return err
		}
		ch.InBits.SetRange(from, n, value)
		return nil
	})
}

func (c *Controller) read(path string, pick func(*scan.Chain) *bitvec.Vector) *bitvec.Vector {
	var out *bitvec.Vector
	c.try(func() error {
		ch, from, n, err := c.element(path)
		if err != nil {
			return err
		}
		out = pick(ch).RangeIndiscriminate(from, n)
		out.SetName(path)
		return nil
	})
	return out
}

// InBits returns a copy of the inBits of an element.
func (c *Controller) InBits(path string) *bitvec.Vector {
	return c.read(path, func(ch *scan.Chain) *bitvec.Vector { return ch.InBits })
}

// OutBits returns a copy of what the latest shift read for an element.
func (c *Controller) OutBits(path string) *bitvec.Vector {
	return c.read(path, func(ch *scan.Chain) *bitvec.Vector { return ch.OutBits })
}

// ExpectedBits returns the prediction the latest shift was checked against.
func (c *Controller) ExpectedBits(path string) *bitvec.Vector {
	return c.read(path, func(ch *scan.Chain) *bitvec.Vector { return ch.OldOutBitsExpected })
}

// Length returns the bit length of a chain or subchain.
func (c *Controller) Length(path string) int {
	n := 0
	c.try(func() error {
		id, err := c.tree.FindScannable(path)
		if err != nil {
			return err
		}
		n = c.tree.Node(id).Length()
		return nil
	})
	return n
}

// Opcode returns the opcode of the chain containing path.
func (c *Controller) Opcode(path string) string {
	var op string
	c.try(func() error {
		ch, _, _, err := c.element(path)
		if err != nil {
			return err
		}
		op = ch.Opcode
		return nil
	})
	return op
}

// Shift shifts a chain with the default severities and reports whether the
// scanned-out bits matched the prediction.
func (c *Controller) Shift(path string, readEnable, writeEnable bool) bool {
	return c.ShiftWith(path, readEnable, writeEnable, c.severities)
}

// ShiftWith shifts a chain with explicit severities.
func (c *Controller) ShiftWith(path string, readEnable, writeEnable bool, sev report.Severities) bool {
	ok := false
	c.try(func() error {
		id, err := c.chainID(path)
		if err != nil {
			return err
		}
		ok, err = c.tracker.Shift(id, readEnable, writeEnable, sev)
		return err
	})
	return ok
}

// ProcessMasterClear applies a master clear to every chain of a chip.
func (c *Controller) ProcessMasterClear(chip string) {
	c.try(func() error {
		chains, err := c.chipChains(chip)
		if err != nil {
			return err
		}
		for _, id := range chains {
			if err := c.tracker.ProcessMasterClear(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Invalidate forgets the predictions of every chain of a chip.
func (c *Controller) Invalidate(chip string) {
	c.try(func() error {
		chains, err := c.chipChains(chip)
		if err != nil {
			return err
		}
		for _, id := range chains {
			if err := c.tracker.Invalidate(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetInBits loads a chain's inBits with zeros, or with each element's
// master-clear value when useMasterClearState is set.
func (c *Controller) ResetInBits(path string, useMasterClearState bool) {
	c.try(func() error {
		id, err := c.chainID(path)
		if err != nil {
			return err
		}
		return c.tree.ResetInBits(id, useMasterClearState)
	})
}

// SetDefaultSeverities replaces the severities used by Shift.
func (c *Controller) SetDefaultSeverities(s report.Severities) { c.severities = s }

// DefaultSeverities returns the severities used by Shift.
func (c *Controller) DefaultSeverities() report.Severities { return c.severities }

// SetSpeed sets the TCK frequency in kHz on drivers that support it.
func (c *Controller) SetSpeed(khz int) {
	s, ok := c.driver.(jtag.SpeedSetter)
	if !ok {
		c.logger.Printf("warning: driver cannot change TCK, ignoring %d kHz", khz)
		return
	}
	c.try(func() error { return s.SetSpeed(khz * 1000) })
}

// NonFatalCount returns how many NonFatal conditions shifts have reported.
func (c *Controller) NonFatalCount() int {
	return c.engine.Reporter().NonFatalCount()
}
