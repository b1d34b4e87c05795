package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/config"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
)

var discoverTimeout time.Duration

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List probes scanctl can drive",
	Long: `Enumerate USB CMSIS-DAP probes and show which transport the current
configuration selects. The chip simulator needs no hardware and is always
available.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
	interfacesCmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Second, "USB enumeration timeout")
}

// selected reports whether iface is the transport the config would open.
func selected(iface jtag.InterfaceInfo) bool {
	switch iface.Kind {
	case jtag.InterfaceKindSim:
		return cfg.Adapter == config.AdapterSimulator
	case jtag.InterfaceKindCMSISDAP:
		return cfg.Adapter == config.AdapterCMSISDAP && iface.VendorID == cfg.VID && iface.ProductID == cfg.PID
	}
	return false
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
	defer cancel()

	ifaces, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("enumerate probes: %w", err)
	}

	probes := 0
	for _, iface := range ifaces {
		mark := " "
		if selected(iface) {
			mark = "*"
		}
		if iface.Kind == jtag.InterfaceKindCMSISDAP {
			probes++
		}
		fmt.Printf("%s %-10s %s\n", mark, iface.Kind, iface.Label())
	}
	fmt.Printf("%d probe(s) attached; * marks the configured adapter\n", probes)
	return nil
}
