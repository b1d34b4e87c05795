package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceScan/internal/config"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/chipsim"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

// hardware is the process-wide permission to open a probe.
var hardware = jtag.NewHardwareLease()

// openDriver returns the driver named by the config for tree, and a function
// releasing it.
func openDriver(c *config.Config, tree *scan.Tree) (jtag.Driver, func(), error) {
	switch c.Adapter {
	case config.AdapterSimulator:
		var opts []chipsim.Option
		if c.Inverted {
			opts = append(opts, chipsim.Inverted())
		}
		sim, err := chipsim.New(tree, opts...)
		if err != nil {
			return nil, nil, err
		}
		return sim, func() {}, nil

	case config.AdapterCMSISDAP:
		probe, err := jtag.NewCMSISDAPAdapter(hardware, c.VID, c.PID)
		if err != nil {
			return nil, nil, fmt.Errorf("open probe: %w", err)
		}
		var lengths []int
		for _, chip := range tree.Chips() {
			n, _ := tree.IRLength(chip)
			lengths = append(lengths, n)
		}
		if err := probe.ConfigureChain(lengths); err != nil {
			probe.Close()
			return nil, nil, err
		}
		return jtag.NewAdapterDriver(probe, c.Inverted), func() { probe.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", c.Adapter)
}
