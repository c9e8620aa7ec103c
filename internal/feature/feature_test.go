// SPDX-License-Identifier: MIT
package feature

import (
	"math"
	"testing"
)

const testSampleRate = 44100.0

func spectrum(bins int, set map[int]float64) []float64 {
	m := make([]float64, bins)
	for i, v := range set {
		m[i] = v
	}
	return m
}

func TestExtractDeterministic(t *testing.T) {
	e, err := NewExtractor(testSampleRate, 513)
	if err != nil {
		t.Fatal(err)
	}
	prev := spectrum(513, map[int]float64{3: 0.2, 100: 0.1})
	cur := spectrum(513, map[int]float64{1: 0.9, 3: 0.5, 100: 0.05, 400: 0.3})

	a := e.Extract(cur, prev)
	b := e.Extract(cur, prev)
	if a != b {
		t.Fatalf("Extract is not deterministic: %v vs %v", a, b)
	}
	// Nothing about the previous call may leak into a fresh one.
	e.Extract(spectrum(513, map[int]float64{50: 9}), nil)
	if c := e.Extract(cur, prev); c != a {
		t.Fatalf("Extract depends on earlier calls: %v vs %v", c, a)
	}
}

func TestExtractBands(t *testing.T) {
	e, _ := NewExtractor(testSampleRate, 513)
	step := testSampleRate / 1024
	binFor := func(hz float64) int { return int(math.Round(hz / step)) }

	tests := []struct {
		name string
		hz   float64
		dim  int
	}{
		{"sub", 50, Sub},
		{"low", 150, Low},
		{"lowmid", 500, LowMid},
		{"midhigh", 2000, MidHigh},
		{"high", 10000, High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Extract(spectrum(513, map[int]float64{binFor(tt.hz): 1}), nil)
			if v[tt.dim] != 1 {
				t.Errorf("band share = %v, want 1 (%v)", v[tt.dim], v)
			}
			if v[Energy] != 1 {
				t.Errorf("energy = %v, want 1", v[Energy])
			}
		})
	}
}

func TestExtractFluxAndCentroid(t *testing.T) {
	e, _ := NewExtractor(testSampleRate, 5)
	prev := []float64{1, 1, 0, 0, 0}
	cur := []float64{0, 2, 0, 1, 0}
	v := e.Extract(cur, prev)
	if v[Flux] != 2 {
		t.Errorf("flux = %v, want 2", v[Flux])
	}
	// bins at 0.25 and 0.75 of Nyquist weighted 2:1
	if want := (2*0.25 + 1*0.75) / 3; math.Abs(v[Centroid]-want) > 1e-12 {
		t.Errorf("centroid = %v, want %v", v[Centroid], want)
	}
}

func TestExtractSilence(t *testing.T) {
	e, _ := NewExtractor(testSampleRate, 9)
	if v := e.Extract(make([]float64, 9), nil); v != (Vector{}) {
		t.Errorf("silence produced %v", v)
	}
}

func TestIntensity(t *testing.T) {
	tests := []struct {
		energy float64
		want   float64
	}{
		{0, 0},
		{-1, 0},
		{1, 1},
		{4, 1},
		{1e-3, 0.5},
		{1e-7, 0},
	}
	for _, tt := range tests {
		if got := Intensity(tt.energy); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Intensity(%g) = %v, want %v", tt.energy, got, tt.want)
		}
	}
}

func TestNewExtractorValidation(t *testing.T) {
	if _, err := NewExtractor(testSampleRate, 1); err == nil {
		t.Error("expected error for 1 bin")
	}
	if _, err := NewExtractor(0, 64); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
