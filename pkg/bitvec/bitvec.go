// Package bitvec provides fixed-length tri-state bit vectors, the unit of
// scan data exchanged with JTAG scan chains.
//
// Every position holds Unknown, Zero or One. Reading an Unknown position is a
// programming error and panics, as does indexing outside [0, Len()). Position
// 0 is the first character of the string form and the last bit physically
// shifted into the target (big-endian).
package bitvec

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Bit is the state of a single vector position.
type Bit uint8

const (
	Unknown Bit = iota
	Zero
	One
)

// Char returns the text form of b: '-', '0' or '1'.
func (b Bit) Char() byte {
	switch b {
	case Zero:
		return '0'
	case One:
		return '1'
	default:
		return '-'
	}
}

func bitOf(v bool) Bit {
	if v {
		return One
	}
	return Zero
}

var (
	// ErrIndex reports an index or range outside [0, Len()).
	ErrIndex = errors.New("bitvec: index out of range")
	// ErrInvalidBit reports a read of a position whose state is Unknown.
	ErrInvalidBit = errors.New("bitvec: read of unknown bit")
	// ErrFormat reports a bad character or digit in textual or integer input.
	ErrFormat = errors.New("bitvec: malformed input")
)

// Vector is a fixed-length sequence of tri-state bits. The length never
// changes after construction.
type Vector struct {
	name string
	bits []Bit
}

// New returns a vector of n Unknown bits.
func New(n int, name string) *Vector {
	if n < 0 {
		panic(errors.Wrapf(ErrIndex, "%s: negative length %d", name, n))
	}
	return &Vector{name: name, bits: make([]Bit, n)}
}

// Len reports the number of positions.
func (v *Vector) Len() int { return len(v.bits) }

// Name returns the label used in diagnostics.
func (v *Vector) Name() string { return v.name }

// SetName replaces the diagnostic label.
func (v *Vector) SetName(name string) { v.name = name }

func (v *Vector) label() string {
	if v.name == "" {
		return "vector"
	}
	return v.name
}

func (v *Vector) checkIndex(i int) {
	if i < 0 || i >= len(v.bits) {
		panic(errors.Wrapf(ErrIndex, "%s: index %d outside [0,%d)", v.label(), i, len(v.bits)))
	}
}

func (v *Vector) checkRange(from, n int) {
	if n < 0 || from < 0 || from+n > len(v.bits) {
		panic(errors.Wrapf(ErrIndex, "%s: range [%d,%d) outside [0,%d)", v.label(), from, from+n, len(v.bits)))
	}
}

func (v *Vector) checkValid(i int) {
	if v.bits[i] == Unknown {
		panic(errors.Wrapf(ErrInvalidBit, "%s: bit %d is unknown in %s", v.label(), i, v.String()))
	}
}

// IsValid reports whether position i holds a known value.
func (v *Vector) IsValid(i int) bool {
	v.checkIndex(i)
	return v.bits[i] != Unknown
}

// Bit returns the raw state of position i without a validity check.
func (v *Vector) Bit(i int) Bit {
	v.checkIndex(i)
	return v.bits[i]
}

// SetBit stores a raw state, Unknown included.
func (v *Vector) SetBit(i int, b Bit) {
	v.checkIndex(i)
	v.bits[i] = b
}

// Get returns the value of position i. It panics if the position is Unknown.
func (v *Vector) Get(i int) bool {
	v.checkIndex(i)
	v.checkValid(i)
	return v.bits[i] == One
}

// Set makes position i true.
func (v *Vector) Set(i int) { v.SetTo(i, true) }

// Clear makes position i false.
func (v *Vector) Clear(i int) { v.SetTo(i, false) }

// SetTo stores value at position i.
func (v *Vector) SetTo(i int, value bool) {
	v.checkIndex(i)
	v.bits[i] = bitOf(value)
}

// Invalidate makes position i Unknown.
func (v *Vector) Invalidate(i int) {
	v.checkIndex(i)
	v.bits[i] = Unknown
}

// InvalidateAll makes every position Unknown.
func (v *Vector) InvalidateAll() {
	for i := range v.bits {
		v.bits[i] = Unknown
	}
}

// SetRange stores value in the n positions starting at from.
func (v *Vector) SetRange(from, n int, value bool) {
	v.checkRange(from, n)
	for i := from; i < from+n; i++ {
		v.bits[i] = bitOf(value)
	}
}

// SetAll stores value in every position.
func (v *Vector) SetAll(value bool) {
	v.SetRange(0, len(v.bits), value)
}

// Flip inverts position i, which must be valid.
func (v *Vector) Flip(i int) {
	v.SetTo(i, !v.Get(i))
}

// FlipRange inverts n valid positions starting at from.
func (v *Vector) FlipRange(from, n int) {
	v.checkRange(from, n)
	for i := from; i < from+n; i++ {
		v.Flip(i)
	}
}

// Range copies n positions starting at from into a new vector. Every copied
// position must be valid.
func (v *Vector) Range(from, n int) *Vector {
	v.checkRange(from, n)
	for i := from; i < from+n; i++ {
		v.checkValid(i)
	}
	return v.RangeIndiscriminate(from, n)
}

// RangeIndiscriminate copies n positions starting at from, Unknown states
// included.
func (v *Vector) RangeIndiscriminate(from, n int) *Vector {
	v.checkRange(from, n)
	out := New(n, v.name)
	copy(out.bits, v.bits[from:from+n])
	return out
}

// Put overwrites positions starting at from with src, which must be fully
// valid.
func (v *Vector) Put(from int, src *Vector) {
	for i := range src.bits {
		src.checkValid(i)
	}
	v.PutIndiscriminate(from, src)
}

// PutIndiscriminate overwrites positions starting at from with src, Unknown
// states included.
func (v *Vector) PutIndiscriminate(from int, src *Vector) {
	v.checkRange(from, len(src.bits))
	copy(v.bits[from:], src.bits)
}

// Cardinality counts the true positions. Every position must be valid.
func (v *Vector) Cardinality() int {
	count := 0
	for i := range v.bits {
		if v.Get(i) {
			count++
		}
	}
	return count
}

// IsEmpty reports whether every position is false. Every position must be
// valid.
func (v *Vector) IsEmpty() bool {
	return v.Cardinality() == 0
}

// IsInvalid reports whether no position is valid. Unlike IsEmpty it never
// panics on Unknown positions.
func (v *Vector) IsInvalid() bool {
	for _, b := range v.bits {
		if b != Unknown {
			return false
		}
	}
	return true
}

// IsFullyValid reports whether every position is valid.
func (v *Vector) IsFullyValid() bool {
	for _, b := range v.bits {
		if b == Unknown {
			return false
		}
	}
	return true
}

// Equal compares lengths and per-position states. Names are ignored.
func (v *Vector) Equal(o *Vector) bool {
	if o == nil || len(v.bits) != len(o.bits) {
		return false
	}
	for i := range v.bits {
		if v.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (v *Vector) Clone() *Vector {
	return v.RangeIndiscriminate(0, len(v.bits))
}

// Concat returns v followed by o.
func (v *Vector) Concat(o *Vector) *Vector {
	out := New(len(v.bits)+len(o.bits), v.name)
	copy(out.bits, v.bits)
	copy(out.bits[len(v.bits):], o.bits)
	return out
}

// String renders the vector as '-', '0' and '1', index ascending left to
// right.
func (v *Vector) String() string {
	var b strings.Builder
	b.Grow(len(v.bits))
	for _, bit := range v.bits {
		b.WriteByte(bit.Char())
	}
	return b.String()
}

// Describe renders the vector with its name and length for diagnostics.
func (v *Vector) Describe() string {
	return fmt.Sprintf("%s[%d]: %s", v.label(), len(v.bits), v.String())
}
