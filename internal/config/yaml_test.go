// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "beatloop.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Analysis.Debounce != 150*time.Millisecond {
		t.Errorf("default debounce = %s, want 150ms", cfg.Analysis.Debounce)
	}
	if cfg.Classifier.K != 3 {
		t.Errorf("default k = %d, want 3", cfg.Classifier.K)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
analysis:
  debounce: 80ms
  hop_size: 128
sync:
  ratios: [0.5, 1, 2]
  master_policy: measure
  bpm: 90
looper:
  tracks: 4
  max_record_duration: 12s
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Analysis.Debounce != 80*time.Millisecond {
		t.Errorf("debounce = %s, want 80ms", cfg.Analysis.Debounce)
	}
	if cfg.Analysis.HopSize != 128 || cfg.Analysis.FrameSize != 1024 {
		t.Errorf("hop/frame = %d/%d, want 128/1024", cfg.Analysis.HopSize, cfg.Analysis.FrameSize)
	}
	if len(cfg.Sync.Ratios) != 3 || cfg.Sync.MasterPolicy != PolicyMeasure || cfg.Sync.BPM != 90 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Looper.Tracks != 4 || cfg.Looper.MaxRecordDuration != 12*time.Second {
		t.Errorf("looper = %+v", cfg.Looper)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"frame not pow2", func(c *Config) { c.Analysis.FrameSize = 1000 }, "power of 2"},
		{"hop larger than frame", func(c *Config) { c.Analysis.HopSize = 4096 }, "hop_size"},
		{"empty ratios", func(c *Config) { c.Sync.Ratios = nil }, "sync.ratios"},
		{"negative ratio", func(c *Config) { c.Sync.Ratios = []float64{1, -2} }, "non-positive"},
		{"unknown policy", func(c *Config) { c.Sync.MasterPolicy = "bars" }, "master_policy"},
		{"too many tracks", func(c *Config) { c.Looper.Tracks = 99 }, "looper.tracks"},
		{"bad bit depth", func(c *Config) { c.Recording.BitDepth = 12 }, "bit_depth"},
		{"status without port", func(c *Config) {
			c.Transport.StatusEnabled = true
			c.Transport.StatusTarget = "localhost"
		}, "status_target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_EXCHANGE_DIR", "/tmp/exchange")
	t.Setenv("ENV_OSC_TARGET", "10.0.0.2:7000")
	t.Setenv("ENV_DEBUG", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Looper.ExchangeDir != "/tmp/exchange" {
		t.Errorf("exchange dir = %q", cfg.Looper.ExchangeDir)
	}
	if cfg.Transport.OSCTarget != "10.0.0.2:7000" {
		t.Errorf("osc target = %q", cfg.Transport.OSCTarget)
	}
	if !cfg.Debug {
		t.Error("debug override not applied")
	}
}
