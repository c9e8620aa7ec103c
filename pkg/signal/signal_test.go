// SPDX-License-Identifier: MIT
package signal

import (
	"math"
	"testing"
)

const testSampleRate = 44100

func TestRenderDeterministic(t *testing.T) {
	hits := []Hit{{At: 0.1, Kind: Crack, Amplitude: 0.8}, {At: 0.3, Kind: Tick, Amplitude: 0.5}}
	a := Render(0.5, testSampleRate, hits, 7)
	b := Render(0.5, testSampleRate, hits, 7)
	if len(a) != Seconds(0.5, testSampleRate) {
		t.Fatalf("length = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRenderPlacesTransients(t *testing.T) {
	buf := Render(0.5, testSampleRate, []Hit{{At: 0.2, Kind: Thump, Amplitude: 1}}, 1)
	start := Seconds(0.2, testSampleRate)
	for i := 0; i < start; i++ {
		if buf[i] != 0 {
			t.Fatalf("sample %d before the transient is %v, want 0", i, buf[i])
		}
	}
	var peak float64
	for _, s := range buf[start : start+Seconds(0.01, testSampleRate)] {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak < 0.5 {
		t.Errorf("transient peak = %v, want > 0.5", peak)
	}
}

func TestRenderClipsAtBufferEnd(t *testing.T) {
	// A transient that starts near the end must not index past the buffer.
	buf := Render(0.1, testSampleRate, []Hit{{At: 0.099, Kind: Crack, Amplitude: 1}}, 1)
	if len(buf) != Seconds(0.1, testSampleRate) {
		t.Fatalf("length = %d", len(buf))
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name       string
		mags       []float64
		start, end int
		want       int
	}{
		{"empty", nil, 0, 10, 0},
		{"middle", []float64{0, 1, 5, 2}, 0, 3, 2},
		{"clamped range", []float64{9, 1, 2, 3}, -4, 99, 0},
		{"sub range", []float64{9, 1, 2, 3}, 1, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(tt.mags, tt.start, tt.end); got != tt.want {
				t.Errorf("FindPeakBin() = %d, want %d", got, tt.want)
			}
		})
	}
}
