// Package config persists scanctl settings as JSON in the user's config
// directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
)

// Adapter names accepted in the adapter field.
const (
	AdapterSimulator = "simulator"
	AdapterCMSISDAP  = "cmsis-dap"
)

// Config stores persistent tool settings.
type Config struct {
	Adapter    string            `json:"adapter"`
	VID        uint16            `json:"vid"`
	PID        uint16            `json:"pid"`
	JTAGKhz    int               `json:"jtag_khz"`
	JTAGVolts  float64           `json:"jtag_volts"` // informational; probes set Vref themselves
	Inverted   bool              `json:"inverted"`
	Verbose    bool              `json:"verbose"`
	Severities report.Severities `json:"severities"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Adapter:    AdapterSimulator,
		VID:        jtag.VendorIDRaspberryPi,
		PID:        jtag.ProductIDCMSISDAP,
		JTAGKhz:    100,
		JTAGVolts:  1.8,
		Severities: report.DefaultSeverities(),
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	switch c.Adapter {
	case AdapterSimulator, AdapterCMSISDAP:
	default:
		return fmt.Errorf("config: unknown adapter %q", c.Adapter)
	}
	if c.JTAGKhz <= 0 {
		return fmt.Errorf("config: jtag_khz must be positive, got %d", c.JTAGKhz)
	}
	return nil
}

// DefaultPath returns the platform config file location, creating its
// directory.
func DefaultPath() (string, error) {
	var dir string
	if appData := os.Getenv("APPDATA"); appData != "" {
		// Windows: %APPDATA%\OpenTraceScan
		dir = filepath.Join(appData, "OpenTraceScan")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "opentracescan")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads path, or DefaultPath when path is empty. A missing file yields
// Default. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Default(), err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Save writes cfg to path, or DefaultPath when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
