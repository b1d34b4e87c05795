package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/chipsim"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/control"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

var (
	demoAdapter string
	demoKhz     int
	demoPattern string

	// exitFunc is the fatal hook handed to the controller.
	exitFunc = os.Exit
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Exercise a two-chip board",
	Long: `Build a sample board (an I/O ring chip followed by a core chip with shadowed
configuration bits) and run a checked write, a read-back, a master clear and a
second read-back, printing the vectors of every step.

Examples:
  scanctl demo
  scanctl demo --pattern 01101
  scanctl demo -v --adapter cmsis-dap --khz 400`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVarP(&demoAdapter, "adapter", "a", "", "adapter (simulator, cmsis-dap); overrides the config")
	demoCmd.Flags().IntVar(&demoKhz, "khz", 0, "TCK frequency in kHz; overrides the config")
	demoCmd.Flags().StringVar(&demoPattern, "pattern", "10110", "five bits written to core.cfg")
}

// demoBoard is chip "io" (IR 4) with a 6-bit pad chain and chip "core"
// (IR 6) whose chain "cfg" has a 3-bit mode field clearing high and a 2-bit
// gain field clearing low.
func demoBoard() (*scan.Tree, error) {
	tree := scan.New("demo")
	io, err := tree.AddChip("io", 4, "pad ring")
	if err != nil {
		return nil, err
	}
	if _, err := tree.AddChain(io, "pads", "0010", 6, scan.Access{Readable: true, Writeable: true}, scan.ClearsNot); err != nil {
		return nil, err
	}
	core, err := tree.AddChip("core", 6, "dsp core")
	if err != nil {
		return nil, err
	}
	cfg, err := tree.AddChain(core, "cfg", "101", 0, scan.Access{}, scan.ClearsNot)
	if err != nil {
		return nil, err
	}
	rws, _ := scan.ParseAccess("RWS", scan.Access{})
	high, _ := scan.ParseClears("H", scan.ClearsNot)
	low, _ := scan.ParseClears("L", scan.ClearsNot)
	if _, err := tree.AddSubchain(cfg, "mode", 3, rws, high); err != nil {
		return nil, err
	}
	if _, err := tree.AddSubchain(cfg, "gain", 2, rws, low); err != nil {
		return nil, err
	}
	return tree, nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	run := *cfg
	if cmd.Flags().Changed("adapter") {
		run.Adapter = demoAdapter
	}
	if cmd.Flags().Changed("khz") {
		run.JTAGKhz = demoKhz
	}
	if err := run.Validate(); err != nil {
		return err
	}

	tree, err := demoBoard()
	if err != nil {
		return err
	}
	driver, release, err := openDriver(&run, tree)
	if err != nil {
		return err
	}
	defer release()

	ctl := control.New(tree, driver,
		control.WithLogger(log.New(os.Stderr, "scanctl: ", 0)),
		control.WithVerbose(run.Verbose),
		control.WithSeverities(run.Severities),
		control.WithExit(exitFunc),
	)
	ctl.SetSpeed(run.JTAGKhz)

	fmt.Printf("Board %q: %d chips, %d IR bits, adapter %s at %d kHz\n",
		tree.Node(tree.Root()).Name, len(tree.Chips()), tree.TotalIRLength(), run.Adapter, run.JTAGKhz)
	for _, p := range tree.AllChainPaths() {
		fmt.Printf("  %-10s %2d bits, opcode %s\n", p, ctl.Length(p), ctl.Opcode(p))
	}

	check := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "MISMATCH"
	}

	ctl.SetInBitsString("core.cfg", demoPattern)
	ok := ctl.Shift("core.cfg", false, true)
	fmt.Printf("write core.cfg  <- %s  %s\n", ctl.InBits("core.cfg"), check(ok))

	ctl.ResetInBits("core.cfg", false)
	ok = ctl.Shift("core.cfg", true, false)
	fmt.Printf("read  core.cfg  -> %s  expected %s  %s\n", ctl.OutBits("core.cfg"), ctl.ExpectedBits("core.cfg"), check(ok))

	if sim, isSim := driver.(*chipsim.Sim); isSim {
		if err := sim.MasterClear("core"); err != nil {
			return err
		}
	}
	ctl.ProcessMasterClear("core")
	fmt.Println("master clear core")

	ok = ctl.Shift("core.cfg", true, false)
	fmt.Printf("read  core.cfg  -> %s  expected %s  %s\n", ctl.OutBits("core.cfg"), ctl.ExpectedBits("core.cfg"), check(ok))
	fmt.Printf("  mode %s  gain %s\n", ctl.OutBits("core.cfg.mode"), ctl.OutBits("core.cfg.gain"))
	fmt.Printf("Non-fatal errors: %d\n", ctl.NonFatalCount())
	return nil
}

