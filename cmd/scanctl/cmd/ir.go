package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/shift"
)

var (
	irLengths []int
	irTarget  int
	irOpcode  string
	irRead    bool
	irWrite   bool
)

var irCmd = &cobra.Command{
	Use:   "ir",
	Short: "Print the instruction register for a daisy chain",
	Long: `Build the instruction register that selects one chain: the target chip gets
the opcode padded to its IR length with the read and write enables in its two
leading bits, every other chip gets all ones (bypass).

Chips are listed nearest TDI first.

Examples:
  scanctl ir --lengths 4,6 --target 1 --opcode 101 --read
  scanctl ir --lengths 5 --target 0 --opcode 11 --read --write`,
	RunE: runIR,
}

func init() {
	rootCmd.AddCommand(irCmd)

	irCmd.Flags().IntSliceVar(&irLengths, "lengths", nil, "IR length of every chip, nearest TDI first")
	irCmd.Flags().IntVar(&irTarget, "target", 0, "position of the target chip")
	irCmd.Flags().StringVar(&irOpcode, "opcode", "", "opcode of the chain, without enables")
	irCmd.Flags().BoolVar(&irRead, "read", false, "set the read enable")
	irCmd.Flags().BoolVar(&irWrite, "write", false, "set the write enable")
	irCmd.MarkFlagRequired("lengths")
	irCmd.MarkFlagRequired("opcode")
}

func runIR(cmd *cobra.Command, args []string) error {
	if irTarget < 0 || irTarget >= len(irLengths) {
		return fmt.Errorf("--target %d outside the %d-chip chain", irTarget, len(irLengths))
	}
	tree := scan.New("ir")
	var chain scan.NodeID
	for i, n := range irLengths {
		chip, err := tree.AddChip(fmt.Sprintf("chip%d", i), n, "")
		if err != nil {
			return err
		}
		if i == irTarget {
			if chain, err = tree.AddChain(chip, "target", irOpcode, 1, scan.Access{}, scan.ClearsNot); err != nil {
				return err
			}
		}
	}

	engine := shift.NewEngine(tree, nil)
	ir, err := engine.InstructionRegister(chain, irRead, irWrite)
	if err != nil {
		return err
	}
	words, err := shift.StringToWords(ir)
	if err != nil {
		return err
	}

	var segs []string
	pos := 0
	for _, n := range irLengths {
		segs = append(segs, ir[pos:pos+n])
		pos += n
	}
	fmt.Printf("IR:       %s (%d bits)\n", ir, len(ir))
	fmt.Printf("Per chip: %s\n", strings.Join(segs, " "))
	fmt.Printf("Words:   ")
	for _, w := range words {
		fmt.Printf(" %04X", w)
	}
	fmt.Println()
	return nil
}
