package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// cfg is loaded before every command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scanctl",
	Short: "Scan-chain bring-up and verification tool",
	Long: `scanctl drives the scan chains of daisy-chained JTAG controllers and checks
every shift against the predicted chip state.

Examples:
  scanctl interfaces                          # List attached JTAG probes
  scanctl bits 0110 --big --not               # Inspect a bit vector
  scanctl ir --lengths 4,6 --target 1 --opcode 101 --read
  scanctl demo                                # Exercise a simulated two-chip board`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: user config directory)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		c.Verbose = true
	}
	cfg = c
	return nil
}
