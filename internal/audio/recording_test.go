// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRecordingStartStop(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "test_recording.wav")
	engine := newEngine(testConfig(2), nopFeeder{})

	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}

	if atomic.LoadInt32(&engine.isRecording) != 1 {
		t.Error("Engine should be in recording state")
	}
	if engine.outputFile == nil || engine.wavEncoder == nil || engine.sampleBuf == nil {
		t.Fatal("recording buffers should be initialized")
	}
	if engine.sampleBuf.Format.NumChannels != 2 {
		t.Errorf("Buffer channels mismatch: got %d, want 2", engine.sampleBuf.Format.NumChannels)
	}
	if len(engine.sampleBuf.Data) != testFrameSize*2 {
		t.Errorf("Buffer size mismatch: got %d, want %d", len(engine.sampleBuf.Data), testFrameSize*2)
	}

	outputFile := engine.outputFile

	if err := engine.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
	if atomic.LoadInt32(&engine.isRecording) != 0 {
		t.Error("Engine should not be in recording state after stopping")
	}
	if engine.outputFile != nil || engine.wavEncoder != nil {
		t.Error("recording state should be cleared after stopping")
	}
	if err := outputFile.Close(); err == nil {
		t.Error("File should already be closed")
	}
	if _, err := os.Stat(filename); err != nil {
		t.Errorf("Recording file was not created: %v", err)
	}
	if engine.RecordingPath() != filename {
		t.Errorf("RecordingPath() = %q, want %q", engine.RecordingPath(), filename)
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc          string
		filename      string
		isRecording   int32
		errorContains string
	}{
		{"Already recording", filepath.Join(dir, "valid.wav"), 1, "already recording"},
		{"Unwritable path", filepath.Join(dir, "missing-file", "x.wav", "\x00"), 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			engine := newEngine(testConfig(1), nopFeeder{})
			atomic.StoreInt32(&engine.isRecording, tt.isRecording)

			err := engine.StartRecording(tt.filename)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error = %q, want substring %q", err, tt.errorContains)
			}
		})
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	for _, depth := range []int{16, 24, 32} {
		filename := filepath.Join(t.TempDir(), "take.wav")
		cfg := testConfig(2)
		cfg.Recording.BitDepth = depth
		engine := newEngine(cfg, nopFeeder{})

		if err := engine.StartRecording(filename); err != nil {
			t.Fatalf("%d-bit: StartRecording: %v", depth, err)
		}
		in := interleaved(testFrameSize, 2)
		in[0] = 2 // clipped
		for range 4 {
			engine.process(in)
		}
		if err := engine.Close(); err != nil {
			t.Fatalf("%d-bit: Close: %v", depth, err)
		}

		samples, rate, err := ReadWAV(filename)
		if err != nil {
			t.Fatalf("%d-bit: ReadWAV: %v", depth, err)
		}
		if rate != testSampleRate {
			t.Errorf("%d-bit: rate = %v, want %d", depth, rate, testSampleRate)
		}
		if len(samples) != 4*testFrameSize {
			t.Fatalf("%d-bit: %d frames, want %d", depth, len(samples), 4*testFrameSize)
		}
		if math.Abs(float64(samples[0])-1) > 1e-3 {
			t.Errorf("%d-bit: clipped sample = %v, want ~1", depth, samples[0])
		}
		if math.Abs(float64(samples[1])-0.1) > 1e-3 {
			t.Errorf("%d-bit: sample = %v, want ~0.1", depth, samples[1])
		}
	}
}

func TestRecordingFile(t *testing.T) {
	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := RecordingFile("out", start)
	want := filepath.Join("out", "session-04-03-2026-050607.wav")
	if got != want {
		t.Errorf("RecordingFile = %q, want %q", got, want)
	}
}

func TestRecordingNoAllocsHotPath(t *testing.T) {
	engine := newEngine(testConfig(2), nopFeeder{})
	filename := filepath.Join(t.TempDir(), "test_alloc.wav")
	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	defer engine.StopRecording()

	in := interleaved(testFrameSize, 2)
	allocs := testing.AllocsPerRun(100, func() {
		for i, s := range in {
			engine.sampleBuf.Data[i] = int(float64(s) * engine.sampleScale)
		}
	})
	if allocs > 0 {
		t.Errorf("Recording conversion allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkRecordingStartStop(b *testing.B) {
	engine := newEngine(testConfig(1), nopFeeder{})
	filename := filepath.Join(b.TempDir(), "bench.wav")

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_ = engine.StartRecording(filename)
		_ = engine.StopRecording()
	}
}
