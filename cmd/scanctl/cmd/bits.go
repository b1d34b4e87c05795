package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

var (
	bitsBig     bool
	bitsLittle  bool
	bitsWords   bool
	bitsReverse bool
	bitsNot     bool
	bitsAnd     string
	bitsAdd     string
	bitsSub     string
	bitsShift   int
)

var bitsCmd = &cobra.Command{
	Use:   "bits <vector>",
	Short: "Inspect and combine tri-state bit vectors",
	Long: `Parse a vector written with '0', '1' and '-' (unknown), index 0 first, and
print derived forms. Arithmetic treats the vector as a signed big-endian
integer of its own width.

Examples:
  scanctl bits 1011 --big --little --words
  scanctl bits 0111 --add 0001
  scanctl bits 10-1 --not --and 1100`,
	Args: cobra.ExactArgs(1),
	RunE: runBits,
}

func init() {
	rootCmd.AddCommand(bitsCmd)

	bitsCmd.Flags().BoolVar(&bitsBig, "big", false, "print the value with index 0 as the most significant bit")
	bitsCmd.Flags().BoolVar(&bitsLittle, "little", false, "print the value with index 0 as the least significant bit")
	bitsCmd.Flags().BoolVar(&bitsWords, "words", false, "print the 16-bit words sent to a driver")
	bitsCmd.Flags().BoolVar(&bitsReverse, "reverse", false, "print the bit-reversed vector")
	bitsCmd.Flags().BoolVar(&bitsNot, "not", false, "print the complement")
	bitsCmd.Flags().StringVar(&bitsAnd, "and", "", "AND with another vector")
	bitsCmd.Flags().StringVar(&bitsAdd, "add", "", "add another vector")
	bitsCmd.Flags().StringVar(&bitsSub, "sub", "", "subtract another vector")
	bitsCmd.Flags().IntVar(&bitsShift, "shift", 0, "arithmetic shift right by n")
}

func runBits(cmd *cobra.Command, args []string) error {
	v, err := bitvec.Parse(args[0], "arg")
	if err != nil {
		return err
	}
	fmt.Printf("vector:  %s (%d bits)\n", v, v.Len())

	full := v.IsFullyValid()
	needFull := func(what string) error {
		if !full {
			return fmt.Errorf("--%s needs a vector without unknown bits", what)
		}
		return nil
	}

	if bitsBig {
		if err := needFull("big"); err != nil {
			return err
		}
		fmt.Printf("big:     %s\n", v.BigInt())
	}
	if bitsLittle {
		if err := needFull("little"); err != nil {
			return err
		}
		fmt.Printf("little:  %s\n", v.LittleInt())
	}
	if bitsWords {
		if err := needFull("words"); err != nil {
			return err
		}
		fmt.Printf("words:  ")
		for _, w := range shift.VectorToWords(v) {
			fmt.Printf(" %04X", w)
		}
		fmt.Println()
	}
	if bitsReverse {
		fmt.Printf("reverse: %s\n", v.BitReverse())
	}
	if bitsNot {
		fmt.Printf("not:     %s\n", v.Not())
	}
	if bitsAnd != "" {
		o, err := bitvec.Parse(bitsAnd, "and")
		if err != nil {
			return err
		}
		fmt.Printf("and:     %s\n", v.And(o))
	}
	for _, op := range []struct {
		name, arg string
		fn        func(a, b *bitvec.Vector) *bitvec.Vector
	}{
		{"add", bitsAdd, (*bitvec.Vector).Add},
		{"sub", bitsSub, (*bitvec.Vector).Subtract},
	} {
		if op.arg == "" {
			continue
		}
		if err := needFull(op.name); err != nil {
			return err
		}
		o, err := bitvec.Parse(op.arg, op.name)
		if err != nil {
			return err
		}
		if !o.IsFullyValid() {
			return fmt.Errorf("--%s operand %s has unknown bits", op.name, o)
		}
		fmt.Printf("%s:     %s\n", op.name, op.fn(v, o))
	}
	if bitsShift > 0 {
		if err := needFull("shift"); err != nil {
			return err
		}
		fmt.Printf("shift:   %s\n", v.ShiftRight(bitsShift))
	}
	return nil
}
