// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RecordingFile names a session recording in dir.
func RecordingFile(dir string, start time.Time) string {
	return filepath.Join(dir, "session-"+start.UTC().Format("02-01-2006-150405")+".wav")
}

// StartRecording writes the raw interleaved input to filename as PCM WAV at
// the configured bit depth until StopRecording.
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if atomic.LoadInt32(&e.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	bitDepth := e.config.Recording.BitDepth
	channels := max(e.config.Audio.InputChannels, 1)
	e.wavEncoder = wav.NewEncoder(file, int(e.config.Audio.SampleRate), bitDepth, channels, 1)
	e.sampleScale = float64(int64(1)<<(bitDepth-1) - 1)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(e.config.Audio.SampleRate),
		},
		Data:           make([]int, e.config.Audio.FramesPerBuffer*channels),
		SourceBitDepth: bitDepth,
	}
	e.recordingPath = filename

	atomic.StoreInt32(&e.isRecording, 1)
	logger.Infof("recording input to %s (%d-bit)", filename, bitDepth)

	return nil
}

// writeRecording converts one callback block. Samples are clipped to [-1, 1].
func (e *Engine) writeRecording(in []float32) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.wavEncoder == nil {
		return
	}
	n := min(len(in), cap(e.sampleBuf.Data))
	data := e.sampleBuf.Data[:n]
	for i, s := range in[:n] {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * e.sampleScale)
	}
	e.sampleBuf.Data = data

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		logger.Errorf("error writing to WAV file: %v", err)
	}
}

// RecordingPath is the file of the current or last recording.
func (e *Engine) RecordingPath() string {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	return e.recordingPath
}

func (e *Engine) StopRecording() error {
	if atomic.LoadInt32(&e.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&e.isRecording, 0)

	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.wavEncoder != nil {
		err := e.wavEncoder.Close()
		e.wavEncoder = nil
		if err != nil {
			e.outputFile.Close()
			e.outputFile = nil
			return err
		}
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			return err
		}
		e.outputFile = nil
	}

	return nil
}

func (e *Engine) Close() error {
	if err := e.StopInputStream(); err != nil {
		return err
	}

	if atomic.LoadInt32(&e.isRecording) == 1 {
		if err := e.StopRecording(); err != nil {
			return err
		}
	}

	return nil
}
