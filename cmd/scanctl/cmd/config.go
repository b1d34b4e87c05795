package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/config"
)

var configSave bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or save the effective configuration",
	Long: `Print the configuration scanctl runs with, after applying defaults. With
--save the configuration is written back to the config file, which creates it
on first use.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configSave, "save", false, "write the configuration file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if configSave {
		if err := config.Save(cfg, configPath); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("Saved.")
	}
	return nil
}
