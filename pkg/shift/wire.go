package shift

import (
	"github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
)

// The last index of a vector is the first bit on the wire. Stream bit k of
// an n-bit vector is position n-1-k, packed into bit k%16 of word k/16.

// VectorToWords packs v for a driver primitive. Every position must be valid.
func VectorToWords(v *bitvec.Vector) []uint16 {
	n := v.Len()
	stream := make([]bool, n)
	for k := range stream {
		stream[k] = v.Get(n - 1 - k)
	}
	return jtag.PackWords(stream)
}

// WordsToVector unpacks the first n stream bits of words.
func WordsToVector(words []uint16, n int, name string) *bitvec.Vector {
	v := bitvec.New(n, name)
	for k, b := range jtag.UnpackWords(words, n) {
		v.SetTo(n-1-k, b)
	}
	return v
}

// StringToWords packs a '0'/'1' string. '-' is rejected.
func StringToWords(s string) ([]uint16, error) {
	v, err := bitvec.Parse(s, "")
	if err != nil {
		return nil, err
	}
	if !v.IsFullyValid() {
		return nil, bitvec.ErrFormat
	}
	return VectorToWords(v), nil
}

// WordsToString unpacks n stream bits into string form.
func WordsToString(words []uint16, n int) string {
	return WordsToVector(words, n, "").String()
}
