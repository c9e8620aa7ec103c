// SPDX-License-Identifier: MIT
//
// Package master quantizes loop lengths against the first loop of a session
// so every track is a simple ratio of one reference and stays phase locked.
package master

import (
	"errors"
	"fmt"
	"math"
)

// Policy decides how the first loop becomes the reference.
type Policy int

const (
	// Free keeps the first loop as recorded.
	Free Policy = iota
	// Measure snaps the first loop to whole measures of a fixed tempo.
	Measure
)

// ParsePolicy accepts "free" and "measure".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "free":
		return Free, nil
	case "measure":
		return Measure, nil
	default:
		return Free, fmt.Errorf("unknown master policy %q", s)
	}
}

// ErrEstablished is returned when a second reference is set without Reset.
var ErrEstablished = errors.New("master reference already established")

// Config configures an Engine.
type Config struct {
	Ratios          []float64
	Policy          Policy
	BPM             float64
	BeatsPerMeasure int
	SampleRate      float64
}

// Reference is the master loop: its length and the sample it started at.
type Reference struct {
	Samples int64
	Origin  int64
}

// Fit is the quantized length chosen for a recording.
type Fit struct {
	Ratio   float64 // ratio to the reference, 1 for the first loop
	Samples int64
	First   bool // no reference existed, this fit should become it
}

// Engine holds the session's reference. Written at most once per session.
type Engine struct {
	cfg  Config
	grid int64
	ref  Reference
	set  bool
}

// New validates cfg and returns an engine with no reference.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Ratios) == 0 {
		return nil, errors.New("master: no candidate ratios")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("master: sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.Policy == Measure && (cfg.BPM <= 0 || cfg.BeatsPerMeasure <= 0) {
		return nil, errors.New("master: measure policy needs bpm and beats per measure")
	}
	grid := int64(1)
	for _, r := range cfg.Ratios {
		if !(r > 0) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("master: invalid ratio %v", r)
		}
		grid = lcm(grid, denominator(r))
	}
	return &Engine{cfg: cfg, grid: grid}, nil
}

// Grid is the sample multiple every reference length is rounded to, it makes
// ratio*reference an exact integer for every configured ratio.
func (e *Engine) Grid() int64 { return e.grid }

// Reference returns the master reference if one is set.
func (e *Engine) Reference() (Reference, bool) { return e.ref, e.set }

// Fit quantizes a raw recording length in samples.
func (e *Engine) Fit(raw int64) Fit {
	if !e.set {
		return Fit{Ratio: 1, Samples: e.firstLength(raw), First: true}
	}
	r, _ := FitRatio(float64(e.ref.Samples), float64(raw), e.cfg.Ratios)
	return Fit{Ratio: r, Samples: int64(math.Round(r * float64(e.ref.Samples)))}
}

func (e *Engine) firstLength(raw int64) int64 {
	length := float64(raw)
	if e.cfg.Policy == Measure {
		measure := 60 / e.cfg.BPM * float64(e.cfg.BeatsPerMeasure) * e.cfg.SampleRate
		length = math.Max(1, math.Round(length/measure)) * measure
	}
	n := math.Max(1, math.Round(length/float64(e.grid)))
	return int64(n) * e.grid
}

// Establish sets the reference. It fails if one exists.
func (e *Engine) Establish(samples, origin int64) error {
	if e.set {
		return ErrEstablished
	}
	if samples <= 0 {
		return fmt.Errorf("master: non-positive reference %d", samples)
	}
	e.ref = Reference{Samples: samples, Origin: origin}
	e.set = true
	return nil
}

// Reset drops the reference for a new session.
func (e *Engine) Reset() {
	e.ref = Reference{}
	e.set = false
}

// NextBoundary returns the first reference boundary at or after t. Without a
// reference it returns t.
func (e *Engine) NextBoundary(t int64) int64 {
	if !e.set {
		return t
	}
	d := t - e.ref.Origin
	k := d / e.ref.Samples
	if d%e.ref.Samples != 0 && d > 0 {
		k++
	}
	return e.ref.Origin + k*e.ref.Samples
}

// Seconds converts samples to seconds.
func (e *Engine) Seconds(samples int64) float64 { return float64(samples) / e.cfg.SampleRate }

// FitRatio returns the candidate ratio minimising |raw - r*ref| and its index.
// Earlier candidates win ties.
func FitRatio(ref, raw float64, ratios []float64) (float64, int) {
	best, idx := 0.0, -1
	bestErr := math.Inf(1)
	for i, r := range ratios {
		if err := math.Abs(raw - r*ref); err < bestErr {
			best, idx, bestErr = r, i, err
		}
	}
	return best, idx
}

// denominator returns the smallest d <= 64 with r*d integral, 1 if none.
func denominator(r float64) int64 {
	for d := int64(1); d <= 64; d++ {
		x := r * float64(d)
		if math.Abs(x-math.Round(x)) < 1e-9 {
			return d
		}
	}
	return 1
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int64) int64 { return a / gcd(a, b) * b }
