package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/report"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Adapter = AdapterCMSISDAP
	cfg.JTAGKhz = 400
	cfg.Verbose = true
	cfg.Severities.NoTest = report.Silent

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"jtag_khz": 50, "severities": {"err_test": "nonfatal"}}`), 0644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := Default()
	want.JTAGKhz = 50
	want.Severities.ErrTest = report.NonFatal
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"adapter":  `{"adapter": "buspirate"}`,
		"khz":      `{"jtag_khz": 0}`,
		"severity": `{"severities": {"ir_bad": "sometimes"}}`,
		"syntax":   `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(body), 0644); err != nil {
				t.Fatalf("WriteFile returned error: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load(%s) succeeded, want error", body)
			}
		})
	}
}

func TestDefaultPathHonoursAppData(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APPDATA", dir)
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath returned error: %v", err)
	}
	if want := filepath.Join(dir, "OpenTraceScan", "config.json"); path != want {
		t.Fatalf("DefaultPath = %q, want %q", path, want)
	}
}
