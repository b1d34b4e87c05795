package bitvec

import (
	"math/big"

	"github.com/pkg/errors"
)

// Parse builds a vector from its text form. Accepted characters are '0', '1'
// and '-' (Unknown).
func Parse(s, name string) (*Vector, error) {
	v := New(len(s), name)
	if err := v.PutString(0, s); err != nil {
		return nil, err
	}
	return v, nil
}

// MustParse is Parse for literals known to be well formed.
func MustParse(s string) *Vector {
	v, err := Parse(s, "")
	if err != nil {
		panic(err)
	}
	return v
}

// PutString overwrites positions starting at from with the text form s.
// Nothing is written if s contains a bad character.
func (v *Vector) PutString(from int, s string) error {
	parsed := make([]Bit, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			parsed[i] = Zero
		case '1':
			parsed[i] = One
		case '-':
			parsed[i] = Unknown
		default:
			return errors.Wrapf(ErrFormat, "%s: bad character %q at offset %d in %q", v.label(), s[i], i, s)
		}
	}
	v.checkRange(from, len(parsed))
	copy(v.bits[from:], parsed)
	return nil
}

// FromInts builds a fully valid vector from 0/1 integers.
func FromInts(vals []int, name string) (*Vector, error) {
	v := New(len(vals), name)
	if err := v.PutInts(0, vals); err != nil {
		return nil, err
	}
	return v, nil
}

// PutInts overwrites positions starting at from with 0/1 integers.
func (v *Vector) PutInts(from int, vals []int) error {
	for i, x := range vals {
		if x != 0 && x != 1 {
			return errors.Wrapf(ErrFormat, "%s: value %d at offset %d is not a bit", v.label(), x, i)
		}
	}
	v.checkRange(from, len(vals))
	for i, x := range vals {
		v.bits[from+i] = bitOf(x == 1)
	}
	return nil
}

// Ints returns the vector as 0/1 integers. Every position must be valid.
func (v *Vector) Ints() []int {
	out := make([]int, len(v.bits))
	for i := range v.bits {
		if v.Get(i) {
			out[i] = 1
		}
	}
	return out
}

// BigInt returns the unsigned integer whose most significant bit is position
// 0. Every position must be valid.
func (v *Vector) BigInt() *big.Int {
	n := len(v.bits)
	out := new(big.Int)
	for i := 0; i < n; i++ {
		if v.Get(i) {
			out.SetBit(out, n-1-i, 1)
		}
	}
	return out
}

// LittleInt returns the unsigned integer whose least significant bit is
// position 0. Every position must be valid.
func (v *Vector) LittleInt() *big.Int {
	out := new(big.Int)
	for i := range v.bits {
		if v.Get(i) {
			out.SetBit(out, i, 1)
		}
	}
	return out
}

// signed interprets the vector as a two's complement integer of its own
// width, position 0 being the sign bit.
func (v *Vector) signed() *big.Int {
	x := v.BigInt()
	if len(v.bits) > 0 && v.bits[0] == One {
		x.Sub(x, new(big.Int).Lsh(big.NewInt(1), uint(len(v.bits))))
	}
	return x
}

// FromBigInt returns an n-bit vector holding the low n bits of x in two's
// complement, most significant bit at position 0.
func FromBigInt(x *big.Int, n int, name string) *Vector {
	v := New(n, name)
	v.SetBigInt(x)
	return v
}

// SetBigInt overwrites every position with the low Len() bits of x, most
// significant bit at position 0. Negative values use two's complement.
func (v *Vector) SetBigInt(x *big.Int) {
	v.PutBigInt(0, len(v.bits), x)
}

// PutBigInt writes the low n bits of x into positions [from, from+n), most
// significant bit first.
func (v *Vector) PutBigInt(from, n int, x *big.Int) {
	v.checkRange(from, n)
	for i := 0; i < n; i++ {
		v.bits[from+i] = bitOf(x.Bit(n-1-i) == 1)
	}
}

// PutLittle writes the low n bits of x into positions [from, from+n), least
// significant bit first.
func (v *Vector) PutLittle(from, n int, x *big.Int) {
	v.checkRange(from, n)
	for i := 0; i < n; i++ {
		v.bits[from+i] = bitOf(x.Bit(i) == 1)
	}
}

// SetInt64 overwrites every position with the low Len() bits of x.
func (v *Vector) SetInt64(x int64) {
	v.SetBigInt(big.NewInt(x))
}

// Int64 returns the low 64 bits of BigInt.
func (v *Vector) Int64() int64 {
	mask := new(big.Int).SetUint64(^uint64(0))
	return int64(new(big.Int).And(v.BigInt(), mask).Uint64())
}

// EqualsInt64 reports whether the vector, truncated to 64 bits, equals x.
func (v *Vector) EqualsInt64(x int64) bool {
	return v.Int64() == x
}
