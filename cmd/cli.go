// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"beatloop/internal/config"
	"beatloop/pkg/build"

	"github.com/spf13/cobra"
)

// Invocation is the parsed command line: the resolved configuration plus
// whatever the chosen subcommand needs.
type Invocation struct {
	Config  *config.Config
	Command string // "" runs the live looper
	Args    []string

	Output      string
	Record      bool
	Interactive bool
	Replace     bool
	Bars        int
	Export      int64

	Kick  []string
	Snare []string
	Hat   []string
}

// Global flag values, applied over the loaded file only when set.
type overrides struct {
	configPath      string
	deviceID        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	verbose         bool
	logLevel        string
}

func ParseArgs() (*Invocation, error) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{}
	var o overrides

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(o.configPath)
			if err != nil {
				return err
			}
			if err := o.apply(cmd, cfg); err != nil {
				return err
			}
			inv.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("monitor") {
				inv.Config.Monitor, _ = cmd.Flags().GetBool("monitor")
			}
			if inv.Record {
				inv.Config.Recording.Enabled = true
			}
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Configuration
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "f", "",
		"YAML configuration file (default ./beatloop.yaml when present)")

	// Audio Device Configuration
	pf.IntVarP(&o.deviceID, "device", "d", config.MinDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.Float64VarP(&o.sampleRate, "sample-rate", "s", 44100,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&o.framesPerBuffer, "frames-per-buffer", "b", 512,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&o.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Debug Configuration
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "Show verbose output")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	// Live mode
	rootCmd.Flags().BoolVarP(&inv.Record, "record", "r", false,
		"Record the input stream to recording.output_dir")
	rootCmd.Flags().BoolP("monitor", "m", false, "Show the terminal track monitor")

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "list"
		},
	}
	listCmd.Flags().BoolVarP(&inv.Interactive, "interactive", "i", false,
		"Pick a device interactively and print its configuration")
	rootCmd.AddCommand(listCmd)

	// Offline transcription
	transcribeCmd := &cobra.Command{
		Use:   "transcribe <input.wav>",
		Short: "Transcribe a WAV recording into a pattern file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "transcribe"
			inv.Args = args
		},
	}
	transcribeCmd.Flags().StringVarP(&inv.Output, "output", "o", "", "Pattern file to write (default stdout)")
	rootCmd.AddCommand(transcribeCmd)

	// Classifier training
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Build the classifier training set from labelled WAV recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(inv.Kick)+len(inv.Snare)+len(inv.Hat) == 0 {
				return fmt.Errorf("train needs at least one of --kick, --snare or --hat")
			}
			inv.Command = "train"
			return nil
		},
	}
	trainCmd.Flags().StringSliceVar(&inv.Kick, "kick", nil, "WAV files containing only kicks")
	trainCmd.Flags().StringSliceVar(&inv.Snare, "snare", nil, "WAV files containing only snares")
	trainCmd.Flags().StringSliceVar(&inv.Hat, "hat", nil, "WAV files containing only hi-hats")
	trainCmd.Flags().StringVarP(&inv.Output, "output", "o", "", "CSV file to write (default classifier.training_file)")
	trainCmd.Flags().BoolVar(&inv.Replace, "replace", false, "Discard the existing training set")
	rootCmd.AddCommand(trainCmd)

	// Pattern file validation
	validateCmd := &cobra.Command{
		Use:   "validate <pattern.txt>...",
		Short: "Check pattern files for format and timing errors",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "validate"
			inv.Args = args
		},
	}
	rootCmd.AddCommand(validateCmd)

	// Test signal synthesis
	synthCmd := &cobra.Command{
		Use:   "synth <output.wav>",
		Short: "Render a synthetic beatbox loop for testing",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "synth"
			inv.Args = args
		},
	}
	synthCmd.Flags().IntVar(&inv.Bars, "bars", 1, "Number of measures at sync.bpm")
	rootCmd.AddCommand(synthCmd)

	// Take archive
	takesCmd := &cobra.Command{
		Use:   "takes [session]",
		Short: "List or export archived takes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inv.Config.Database.Path == "" {
				return fmt.Errorf("takes needs database.path to be configured")
			}
			inv.Command = "takes"
			inv.Args = args
			return nil
		},
	}
	takesCmd.Flags().Int64Var(&inv.Export, "export", 0, "Write the take with this ID as a pattern file")
	takesCmd.Flags().StringVarP(&inv.Output, "output", "o", "", "Pattern file for --export (default stdout)")
	rootCmd.AddCommand(takesCmd)

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	// --help and --version run no command and leave Config unset
	if inv.Config == nil {
		return nil, nil
	}

	return inv, nil
}

// apply writes the flags the user actually passed over cfg and revalidates.
func (o *overrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Audio.InputDevice = o.deviceID
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if flags.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = o.framesPerBuffer
	}
	if flags.Changed("low-latency") {
		cfg.Audio.LowLatency = o.lowLatency
	}
	if flags.Changed("verbose") && o.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
