// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"beatloop/cmd"
	"beatloop/internal/audio"
	"beatloop/internal/config"
	"beatloop/internal/log"
	"beatloop/internal/looper"
	"beatloop/internal/transport"
	"beatloop/internal/transport/osc"
	"beatloop/internal/transport/udp"
	"beatloop/internal/tui"
	"beatloop/internal/variant"
	"beatloop/pkg/build"
)

const (
	runnerQueue = 32 // depth of the runner's command and notification queues
	monitorLog  = "beatloop.log"
)

// main is the entry point for the looper.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Initialize PortAudio
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Build the looper and its transports
//   - Start the runner goroutine and the input stream
//   - Start the session recording if enabled
//   - Show the monitor or wait for a signal
//
// 3. Shutdown Phase (Cold Path):
//   - Stop the input stream and the recording
//   - Stop the transports
//   - Close the store
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Missing ldflags only matter for release builds
	if err := build.Initialize(); err != nil {
		log.Debugf("build info incomplete: %v", err)
	}

	// One thread for the PortAudio callback, one for the runner goroutine
	// and one for transports and the UI.
	runtime.GOMAXPROCS(3)

	// Initialize PortAudio subsystem
	if err := audio.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}
	defer audio.Terminate()

	// Parse command line arguments and build configuration
	inv, err := cmd.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		audio.Terminate()
		os.Exit(1)
	}
	if inv == nil {
		return // --help or --version
	}
	cfg := inv.Config

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		log.Warnf("unknown log level %q, using %s", cfg.LogLevel, level)
	}
	log.SetLevel(level)

	// Handle one-off commands (e.g., device listing, transcription) that
	// don't require the audio engine to be running
	if inv.Command != "" {
		if err := cmd.Execute(inv, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			audio.Terminate()
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Errorf("%v", err)
		audio.Terminate()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := cmd.OpenStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	classifier, err := cmd.LoadClassifier(cfg, db)
	if err != nil {
		return err
	}

	// Event sinks: the websocket hub, and every event in the log when debugging
	var sinks looper.Sinks
	var hub *transport.Hub
	if cfg.Transport.WebSocketAddr != "" {
		hub = transport.NewHub(cfg.Transport.WebSocketAddr, nil, nil)
		sinks = append(sinks, transport.NewEventSink(hub))
	}
	if cfg.Debug {
		sinks = append(sinks, transport.NewEventSink(transport.NewLoggingTransport()))
	}

	opts := looper.Options{
		Classifier: classifier,
		Sink:       sinks,
		Examples:   cmd.ExampleStore(cfg, db),
	}
	if db != nil {
		opts.Archive = db
	}
	if cfg.Transport.OSCTarget != "" {
		notifier, err := osc.Dial(cfg.Transport.OSCTarget)
		if err != nil {
			return err
		}
		opts.Notifier = notifier
	}

	l, err := looper.New(cfg, opts)
	if err != nil {
		return err
	}
	runner := looper.NewRunner(l, cfg.Audio.FramesPerBuffer, runnerQueue)
	go runner.Run(ctx)

	if hub != nil {
		hub.Bind(runner, runner)
		if err := hub.Start(); err != nil {
			return fmt.Errorf("start websocket hub: %w", err)
		}
		defer hub.Close()
	}

	if cfg.Transport.OSCListen != "" {
		listener, err := osc.Listen(cfg.Transport.OSCListen, runner)
		if err != nil {
			return err
		}
		go listener.Run(ctx)
	}

	if cfg.Looper.ExchangeDir != "" {
		watcher, err := variant.New(cfg.Looper.ExchangeDir, runner)
		if err != nil {
			return err
		}
		defer watcher.Close()
		go watcher.Run(ctx)
	}

	if cfg.Transport.StatusEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.StatusTarget)
		if err != nil {
			return err
		}
		defer sender.Close()
		publisher, err := udp.NewStatusPublisher(cfg.Transport.StatusInterval, sender, runner)
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Close()
	}

	// Initialize and start the audio engine
	engine, err := audio.NewEngine(cfg, runner)
	if err != nil {
		return err
	}

	// CRITICAL: Start of real-time audio processing
	// The first call to StartInputStream triggers PortAudio to begin
	// calling the callback function, marking the start of the hot path
	if err := engine.StartInputStream(); err != nil {
		return err
	}

	// Start recording if enabled in configuration
	if cfg.Recording.Enabled {
		if err := engine.StartRecording(audio.RecordingFile(cfg.Recording.OutputDir, time.Now())); err != nil {
			engine.Close()
			return err
		}
	}

	if cfg.Monitor {
		// The monitor owns the terminal, keep the log from tearing it
		logFile, err := os.OpenFile(monitorLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.SetOutput(io.Discard)
		} else {
			log.SetOutput(logFile)
			defer logFile.Close()
		}
		if err := tui.StartMonitor(ctx, runner, engine.Level); err != nil {
			log.Errorf("monitor: %v", err)
		}
		stop()
	} else {
		fmt.Printf("Looping %d tracks, '%s --help' for usage information.\n",
			cfg.Looper.Tracks, build.GetBuildFlags().Name)
		// Block until termination signal is received
		<-ctx.Done()
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	// Stop the stream first so nothing feeds a stopped runner
	if err := engine.Close(); err != nil {
		log.Errorf("Error closing audio engine: %v", err)
	}
	if path := engine.RecordingPath(); path != "" {
		fmt.Printf("\nRecording saved to: %s\n", path)
	}
	if n := engine.Dropped(); n > 0 {
		log.Warnf("%d input blocks were dropped", n)
	}
	return nil
}
