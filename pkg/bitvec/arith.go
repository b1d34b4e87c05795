package bitvec

import "math/big"

// Not returns the bitwise complement. Unknown positions stay Unknown.
func (v *Vector) Not() *Vector {
	out := New(len(v.bits), v.name)
	for i, b := range v.bits {
		switch b {
		case Zero:
			out.bits[i] = One
		case One:
			out.bits[i] = Zero
		}
	}
	return out
}

// And returns the bitwise conjunction at the longer operand's width. The
// shorter operand is zero padded on the left. A position is Unknown if either
// input is Unknown there.
func (v *Vector) And(o *Vector) *Vector {
	w := max(len(v.bits), len(o.bits))
	a, b := v.zeroExtend(w), o.zeroExtend(w)
	out := New(w, v.name)
	for i := 0; i < w; i++ {
		if a[i] == Unknown || b[i] == Unknown {
			continue
		}
		out.bits[i] = bitOf(a[i] == One && b[i] == One)
	}
	return out
}

func (v *Vector) zeroExtend(w int) []Bit {
	out := make([]Bit, w)
	pad := w - len(v.bits)
	for i := 0; i < pad; i++ {
		out[i] = Zero
	}
	copy(out[pad:], v.bits)
	return out
}

// Add returns v+o treating both as signed integers of their own widths. The
// result is truncated to the longer width. Both operands must be fully valid.
func (v *Vector) Add(o *Vector) *Vector {
	w := max(len(v.bits), len(o.bits))
	sum := new(big.Int).Add(v.signed(), o.signed())
	return FromBigInt(sum, w, v.name)
}

// Subtract returns v-o with the same width and sign rules as Add.
func (v *Vector) Subtract(o *Vector) *Vector {
	w := max(len(v.bits), len(o.bits))
	diff := new(big.Int).Sub(v.signed(), o.signed())
	return FromBigInt(diff, w, v.name)
}

// ShiftRight moves every bit n positions towards higher indices, filling
// with position 0 (arithmetic shift). Every position must be valid.
func (v *Vector) ShiftRight(n int) *Vector {
	out := New(len(v.bits), v.name)
	for i := range v.bits {
		src := max(i-n, 0)
		out.SetTo(i, v.Get(src))
	}
	return out
}

// RotateLeft moves every bit k positions towards index 0, wrapping around.
func (v *Vector) RotateLeft(k int) *Vector {
	return v.rotate(-k)
}

// RotateRight moves every bit k positions towards higher indices, wrapping
// around.
func (v *Vector) RotateRight(k int) *Vector {
	return v.rotate(k)
}

func (v *Vector) rotate(k int) *Vector {
	n := len(v.bits)
	out := New(n, v.name)
	if n == 0 {
		return out
	}
	k %= n
	if k < 0 {
		k += n
	}
	for i, b := range v.bits {
		out.bits[(i+k)%n] = b
	}
	return out
}

// BitReverse returns the vector in reverse index order.
func (v *Vector) BitReverse() *Vector {
	n := len(v.bits)
	out := New(n, v.name)
	for i, b := range v.bits {
		out.bits[n-1-i] = b
	}
	return out
}
