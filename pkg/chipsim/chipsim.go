// Package chipsim is a software daisy chain of JTAG controllers built from a
// scan tree. It implements jtag.Driver so the shift engine and tracker can
// run without hardware.
//
// Each chain in the tree becomes a data register of its chip, selected by
// the chain's opcode. The two leading IR bits are the read and write
// enables: with read enabled, Capture-DR loads readable shadowed elements
// from their shadow registers and Update-DR reloads single-ported ones;
// with write enabled, Update-DR copies the shifted-in value of writeable
// shadowed elements into their shadows. Chips whose IR is all ones select a
// one-bit bypass register that captures zero.
package chipsim

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

type register struct {
	path     string
	elems    []*scan.Node
	bypass   bool
	contents []byte
	shadow   []byte
}

type chip struct {
	name  string
	irLen int
	ir    string
	regs  map[string]*register
}

// Sim is a simulated daisy chain. Chip order follows the tree, position 0
// nearest TDI.
type Sim struct {
	chips    []*chip
	byPath   map[string]*register
	inverted bool
	drHint   int
	speedHz  int

	failOp     string
	failStatus int
}

// Option configures a Sim.
type Option func(*Sim)

// Inverted complements every bit scanned out, like an inverting cable.
func Inverted() Option {
	return func(s *Sim) { s.inverted = true }
}

// New builds a simulator for every chip and chain of tree. Registers and
// shadows start at zero.
func New(tree *scan.Tree, opts ...Option) (*Sim, error) {
	s := &Sim{byPath: make(map[string]*register)}
	for _, opt := range opts {
		opt(s)
	}
	for _, id := range tree.Chips() {
		n := tree.Node(id)
		c := &chip{
			name:  n.Name,
			irLen: n.IRLength,
			ir:    strings.Repeat("1", n.IRLength),
			regs:  make(map[string]*register),
		}
		paths, err := tree.ChainPaths(id)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			chainID, err := tree.FindChain(p)
			if err != nil {
				return nil, err
			}
			key, err := shift.PadOpcode(tree.Node(chainID).Chain.Opcode, c.irLen, false, false)
			if err != nil {
				return nil, fmt.Errorf("chipsim: %s: %w", p, err)
			}
			if other, dup := c.regs[key]; dup {
				return nil, fmt.Errorf("chipsim: %s and %s share opcode %s", other.path, p, key)
			}
			elems, err := tree.Elements(chainID)
			if err != nil {
				return nil, err
			}
			r := &register{
				path:     p,
				elems:    elems,
				bypass:   key == "00"+strings.Repeat("1", c.irLen-2),
				contents: zeros(len(elems)),
				shadow:   zeros(len(elems)),
			}
			c.regs[key] = r
			s.byPath[p] = r
		}
		s.chips = append(s.chips, c)
	}
	return s, nil
}

func zeros(n int) []byte {
	return []byte(strings.Repeat("0", n))
}

// selected returns the data register chosen by the chip's IR and the read
// and write enables.
func (c *chip) selected() (r *register, read, write bool) {
	if c.irLen < 2 || c.ir == strings.Repeat("1", c.irLen) {
		return nil, false, false
	}
	key := "00" + c.ir[2:]
	return c.regs[key], c.ir[0] == '1', c.ir[1] == '1'
}

// shiftThrough shifts in through a register holding state and returns the
// scan-out and the new state, both in string order.
func shiftThrough(state, in []byte) (out, next []byte) {
	all := append(append([]byte(nil), in...), state...)
	return all[len(all)-len(in):], all[:len(state)]
}

func (s *Sim) ScanOutInverted() bool { return s.inverted }

// HintDR records the announced data register length.
func (s *Sim) HintDR(bits int) { s.drHint = bits }

// LastDRHint returns the value of the latest HintDR call.
func (s *Sim) LastDRHint() int { return s.drHint }

func (s *Sim) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("chipsim: invalid speed %dHz", hz)
	}
	s.speedHz = hz
	return nil
}

// Speed returns the last accepted TCK frequency.
func (s *Sim) Speed() int { return s.speedHz }

// Fail makes the next call to op ("ShiftIR" or "ShiftDR") fail with status.
func (s *Sim) Fail(op string, status int) {
	s.failOp, s.failStatus = op, status
}

func (s *Sim) injected(op string) error {
	if s.failOp != op {
		return nil
	}
	s.failOp = ""
	return &jtag.StatusError{Op: op, Status: s.failStatus}
}

func (s *Sim) ShiftIR(bits int, in []uint16) ([]uint16, error) {
	if err := s.injected("ShiftIR"); err != nil {
		return nil, err
	}
	var capture []byte
	for _, c := range s.chips {
		if c.irLen > 0 {
			capture = append(capture, strings.Repeat("0", c.irLen-1)+"1"...)
		}
	}
	out, next := shiftThrough(capture, []byte(shift.WordsToString(in, bits)))
	pos := 0
	for _, c := range s.chips {
		c.ir = string(next[pos : pos+c.irLen])
		pos += c.irLen
	}
	return s.emit(out)
}

func (s *Sim) ShiftDR(bits int, in []uint16) ([]uint16, error) {
	if err := s.injected("ShiftDR"); err != nil {
		return nil, err
	}
	var state []byte
	for _, c := range s.chips {
		r, read, _ := c.selected()
		if r == nil {
			state = append(state, '0')
			continue
		}
		r.capture(read)
		state = append(state, r.contents...)
	}
	out, next := shiftThrough(state, []byte(shift.WordsToString(in, bits)))
	pos := 0
	for _, c := range s.chips {
		r, read, write := c.selected()
		if r == nil {
			pos++
			continue
		}
		copy(r.contents, next[pos:pos+len(r.contents)])
		pos += len(r.contents)
		r.update(read, write)
	}
	return s.emit(out)
}

func (r *register) capture(read bool) {
	for i, e := range r.elems {
		switch {
		case r.bypass:
			r.contents[i] = '0'
		case e.Access.Unpredictable:
			r.contents[i] ^= 1
		case read && e.Access.Readable && e.Access.AnyShadow():
			r.contents[i] = r.shadow[i]
		}
	}
}

func (r *register) update(read, write bool) {
	in := append([]byte(nil), r.contents...)
	for i, e := range r.elems {
		a := e.Access
		if read && a.Readable && a.UsesShadow && !a.UsesDualPortedShadow {
			r.contents[i] = r.shadow[i]
		}
		if write && a.Writeable && a.AnyShadow() {
			r.shadow[i] = in[i]
		}
	}
}

func (s *Sim) emit(out []byte) ([]uint16, error) {
	if s.inverted {
		for i := range out {
			out[i] ^= 1
		}
	}
	return shift.StringToWords(string(out))
}

// MasterClear asserts the master clear of the named chip, or of every chip
// when name is empty. Shadowed elements take their clear value; elements
// that clear to an unknown state are set to one.
func (s *Sim) MasterClear(name string) error {
	found := name == ""
	for _, c := range s.chips {
		if name != "" && c.name != name {
			continue
		}
		found = true
		for _, r := range c.regs {
			for i, e := range r.elems {
				if !e.Access.AnyShadow() {
					continue
				}
				switch e.Clears {
				case scan.ClearsHigh, scan.ClearsUnknown:
					r.shadow[i] = '1'
				case scan.ClearsLow:
					r.shadow[i] = '0'
				}
			}
		}
	}
	if !found {
		return fmt.Errorf("chipsim: no chip %q", name)
	}
	return nil
}

func (s *Sim) register(path string) (*register, error) {
	r, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("chipsim: no chain %q", path)
	}
	return r, nil
}

// Contents returns the data register of a chain in string order.
func (s *Sim) Contents(path string) (string, error) {
	r, err := s.register(path)
	if err != nil {
		return "", err
	}
	return string(r.contents), nil
}

// Shadow returns the shadow registers of a chain in string order. Elements
// without a shadow read as zero.
func (s *Sim) Shadow(path string) (string, error) {
	r, err := s.register(path)
	if err != nil {
		return "", err
	}
	return string(r.shadow), nil
}

// SetShadow overwrites the shadow registers of a chain, as the chip logic
// would for a dual-ported shadow.
func (s *Sim) SetShadow(path, bits string) error {
	r, err := s.register(path)
	if err != nil {
		return err
	}
	if len(bits) != len(r.shadow) || strings.Trim(bits, "01") != "" {
		return fmt.Errorf("chipsim: %s needs %d binary digits, got %q", path, len(r.shadow), bits)
	}
	copy(r.shadow, bits)
	return nil
}

// Instruction returns the current IR of the named chip.
func (s *Sim) Instruction(name string) (string, error) {
	for _, c := range s.chips {
		if c.name == name {
			return c.ir, nil
		}
	}
	return "", fmt.Errorf("chipsim: no chip %q", name)
}
