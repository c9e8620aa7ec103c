// SPDX-License-Identifier: MIT
/*
Package audio captures microphone input with PortAudio and hands it to the
looper:
- Float32 capture, first channel extracted into a preallocated mono buffer
- Non-blocking hand-off to a Feeder (the looper runner)
- Optional WAV recording of the raw input for the whole session
- Peak level for the monitor

Thread Safety:
- The capture callback never allocates and never blocks on the looper
- Locks OS thread during audio processing
*/
package audio

import (
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"beatloop/internal/config"
	"beatloop/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

var logger = log.Component("audio")

// Feeder accepts mono input blocks. Feed must not block.
type Feeder interface {
	Feed(samples []float32) bool
}

type Engine struct {
	config *config.Config
	feeder Feeder

	// Audio input handling.
	mono         []float32
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	peak    atomic.Uint32 // float32 bits of the last block's peak
	dropped atomic.Uint64

	// Recording state and buffers.
	recMu         sync.Mutex
	isRecording   int32 // Atomic flag, checked before taking recMu
	outputFile    *os.File
	wavEncoder    *wav.Encoder
	sampleBuf     *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale   float64
	recordingPath string
}

// NewEngine opens the configured input device. The stream is not started.
func NewEngine(cfg *config.Config, feeder Feeder) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := newEngine(cfg, feeder)
	engine.inputDevice = inputDevice
	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	logger.Infof("input device %q, %d channel(s) at %.0f Hz, latency %s",
		inputDevice.Name, cfg.Audio.InputChannels, cfg.Audio.SampleRate, engine.inputLatency)
	return engine, nil
}

func newEngine(cfg *config.Config, feeder Feeder) *Engine {
	return &Engine{
		config: cfg,
		feeder: feeder,
		mono:   make([]float32, cfg.Audio.FramesPerBuffer),
	}
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.Audio.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// Level is the peak absolute amplitude of the most recent input block.
func (e *Engine) Level() float32 { return math.Float32frombits(e.peak.Load()) }

// Dropped counts blocks the feeder refused.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.process(in)
}

// process extracts the analysis channel, feeds it and records the raw input.
func (e *Engine) process(in []float32) {
	channels := max(e.config.Audio.InputChannels, 1)
	frames := min(len(in)/channels, len(e.mono))
	mono := e.mono[:frames]

	var peak float32
	if channels == 1 {
		copy(mono, in)
	} else {
		for i := range mono {
			mono[i] = in[i*channels]
		}
	}
	for _, s := range mono {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	e.peak.Store(math.Float32bits(peak))

	if e.feeder != nil && !e.feeder.Feed(mono) {
		e.dropped.Add(1)
	}

	if atomic.LoadInt32(&e.isRecording) == 1 {
		e.writeRecording(in)
	}
}
