// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MaxTracks       = 16
)

// Master loop quantization policies.
const (
	PolicyFree    = "free"    // first loop becomes the reference as recorded
	PolicyMeasure = "measure" // first loop snaps to whole measures of a fixed tempo
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level"`
	Command    string           `yaml:"command,omitempty"` // One-off command set by the CLI (list, transcribe, ...).
	Monitor    bool             `yaml:"monitor"`           // Show the terminal track monitor.
	Audio      AudioConfig      `yaml:"audio"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Sync       SyncConfig       `yaml:"sync"`
	Looper     LooperConfig     `yaml:"looper"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transport  TransportConfig  `yaml:"transport"`
	Database   DatabaseConfig   `yaml:"database"`
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames delivered per PortAudio callback.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured, analysis uses the first.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
}

// AnalysisConfig drives the onset detector.
type AnalysisConfig struct {
	FrameSize           int           `yaml:"frame_size"`           // FFT frame, power of two.
	HopSize             int           `yaml:"hop_size"`             // Samples between successive frames.
	Window              string        `yaml:"window"`               // Window function name ("hann", "hamming", ...).
	ThresholdMultiplier float64       `yaml:"threshold_multiplier"` // Applied to the running flux mean.
	MinFlux             float64       `yaml:"min_flux"`             // Absolute flux floor.
	HistorySize         int           `yaml:"history_size"`         // Hops in the running mean.
	Debounce            time.Duration `yaml:"debounce"`             // Minimum spacing between onsets.
}

// ClassifierConfig configures the nearest-neighbour classifier.
type ClassifierConfig struct {
	K            int    `yaml:"k"`
	TrainingFile string `yaml:"training_file"` // CSV training set, used when no database is configured.
}

// SyncConfig configures the master sync engine.
type SyncConfig struct {
	Ratios          []float64 `yaml:"ratios"`            // Ordered candidate ratios of the master reference.
	MasterPolicy    string    `yaml:"master_policy"`     // PolicyFree or PolicyMeasure.
	BPM             float64   `yaml:"bpm"`               // Tempo grid for PolicyMeasure.
	BeatsPerMeasure int       `yaml:"beats_per_measure"` // Measure size for PolicyMeasure.
}

// LooperConfig configures tracks and recording passes.
type LooperConfig struct {
	Tracks            int           `yaml:"tracks"`
	MaxRecordDuration time.Duration `yaml:"max_record_duration"` // Safety bound on a single recording pass.
	SyncStart         bool          `yaml:"sync_start"`          // Start recordings on the master grid.
	ExchangeDir       string        `yaml:"exchange_dir"`        // Pattern files shared with the variation service.
}

// RecordingConfig holds settings related to session WAV recording.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"`
}

// TransportConfig holds settings for everything leaving or entering the process.
type TransportConfig struct {
	WebSocketAddr  string        `yaml:"ws_addr"`         // Event hub and control input ("" disables).
	OSCTarget      string        `yaml:"osc_target"`      // Outbound notifications ("" disables).
	OSCListen      string        `yaml:"osc_listen"`      // Inbound notifications ("" disables).
	StatusEnabled  bool          `yaml:"status_enabled"`  // Binary UDP status feed.
	StatusTarget   string        `yaml:"status_target"`   // host:port of the status consumer.
	StatusInterval time.Duration `yaml:"status_interval"` // Interval between status packets.
}

// DatabaseConfig points at the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // "" disables the store.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      44100,
			FramesPerBuffer: 512,
			InputChannels:   1,
		},
		Analysis: AnalysisConfig{
			FrameSize:           1024,
			HopSize:             256,
			Window:              "hann",
			ThresholdMultiplier: 1.5,
			MinFlux:             0.1,
			HistorySize:         16,
			Debounce:            150 * time.Millisecond,
		},
		Classifier: ClassifierConfig{
			K:            3,
			TrainingFile: "training.csv",
		},
		Sync: SyncConfig{
			Ratios:          []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 3, 4, 6, 8},
			MasterPolicy:    PolicyFree,
			BPM:             120,
			BeatsPerMeasure: 4,
		},
		Looper: LooperConfig{
			Tracks:            3,
			MaxRecordDuration: 30 * time.Second,
			ExchangeDir:       "./patterns",
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketAddr:  ":8080",
			OSCTarget:      "127.0.0.1:5002",
			OSCListen:      "127.0.0.1:5001",
			StatusTarget:   "127.0.0.1:9090",
			StatusInterval: 33 * time.Millisecond,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches "beatloop.yaml" in the working directory. If no file is found, it uses
// built-in defaults. After loading, it applies environment variable overrides and
// validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("beatloop.yaml"); err == nil {
			path = "beatloop.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %.0f out of range [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate))
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d out of range (0, %d]",
			c.Audio.FramesPerBuffer, MaxBufferFrames))
	}
	if c.Audio.InputChannels < 1 {
		errs = append(errs, fmt.Errorf("audio.input_channels must be at least 1"))
	}
	if c.Audio.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.input_device %d is invalid", c.Audio.InputDevice))
	}

	a := c.Analysis
	if a.FrameSize <= 0 || a.FrameSize&(a.FrameSize-1) != 0 {
		errs = append(errs, fmt.Errorf("analysis.frame_size must be a power of 2, got %d", a.FrameSize))
	}
	if a.HopSize <= 0 || a.HopSize > a.FrameSize {
		errs = append(errs, fmt.Errorf("analysis.hop_size %d must be in (0, frame_size]", a.HopSize))
	}
	if a.ThresholdMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("analysis.threshold_multiplier must be positive"))
	}
	if a.MinFlux < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_flux must not be negative"))
	}
	if a.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("analysis.history_size must be at least 1"))
	}
	if a.Debounce < 0 {
		errs = append(errs, fmt.Errorf("analysis.debounce must not be negative"))
	}

	if c.Classifier.K < 1 {
		errs = append(errs, fmt.Errorf("classifier.k must be at least 1"))
	}

	if len(c.Sync.Ratios) == 0 {
		errs = append(errs, fmt.Errorf("sync.ratios must not be empty"))
	}
	for _, r := range c.Sync.Ratios {
		if r <= 0 {
			errs = append(errs, fmt.Errorf("sync.ratios contains non-positive ratio %g", r))
		}
	}
	switch c.Sync.MasterPolicy {
	case PolicyFree:
	case PolicyMeasure:
		if c.Sync.BPM <= 0 || c.Sync.BeatsPerMeasure < 1 {
			errs = append(errs, fmt.Errorf("sync.bpm and sync.beats_per_measure must be positive for the measure policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("sync.master_policy %q is not one of %q, %q",
			c.Sync.MasterPolicy, PolicyFree, PolicyMeasure))
	}

	if c.Looper.Tracks < 1 || c.Looper.Tracks > MaxTracks {
		errs = append(errs, fmt.Errorf("looper.tracks %d out of range [1, %d]", c.Looper.Tracks, MaxTracks))
	}
	if c.Looper.MaxRecordDuration <= 0 {
		errs = append(errs, fmt.Errorf("looper.max_record_duration must be positive"))
	}

	if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 && c.Recording.BitDepth != 32 {
		errs = append(errs, fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth))
	}

	if c.Transport.StatusEnabled {
		if !strings.Contains(c.Transport.StatusTarget, ":") {
			errs = append(errs, fmt.Errorf("transport.status_target '%s' appears invalid (missing port?)", c.Transport.StatusTarget))
		}
		if c.Transport.StatusInterval <= 0 {
			errs = append(errs, fmt.Errorf("transport.status_interval must be positive when the status feed is enabled"))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides lets deployments override a handful of settings without
// editing the YAML file. Overrides are applied after the file is loaded.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}
	// ENV_EXCHANGE_DIR
	if val, ok := os.LookupEnv("ENV_EXCHANGE_DIR"); ok {
		cfg.Looper.ExchangeDir = val
	}
	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		cfg.Transport.WebSocketAddr = val
	}
	// ENV_OSC_TARGET
	if val, ok := os.LookupEnv("ENV_OSC_TARGET"); ok {
		cfg.Transport.OSCTarget = val
	}
	// ENV_OSC_LISTEN
	if val, ok := os.LookupEnv("ENV_OSC_LISTEN"); ok {
		cfg.Transport.OSCListen = val
	}
}
