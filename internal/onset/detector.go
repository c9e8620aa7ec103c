// SPDX-License-Identifier: MIT
//
// Package onset reports attack instants in a stream of magnitude spectra
// using spectral flux against an adaptive threshold.
package onset

import (
	"fmt"

	"beatloop/internal/feature"

	"gonum.org/v1/gonum/stat"
)

// Config tunes the detector. Debounce is in samples.
type Config struct {
	ThresholdMultiplier float64
	MinFlux             float64
	HistorySize         int
	Debounce            int64
}

// Event is one detected onset. Magnitudes and Previous are copies owned by
// the receiver.
type Event struct {
	At         int64 // stream position in samples
	Flux       float64
	Magnitudes []float64
	Previous   []float64
}

// Detector keeps the previous spectrum and a ring of recent flux values.
type Detector struct {
	cfg     Config
	history []float64
	next    int
	seen    int
	prev    []float64
	last    int64
	fired   bool
}

// NewDetector returns a detector for spectra of bins magnitudes.
func NewDetector(cfg Config, bins int) (*Detector, error) {
	if cfg.HistorySize <= 0 {
		return nil, fmt.Errorf("onset: history size must be positive, got %d", cfg.HistorySize)
	}
	if cfg.ThresholdMultiplier <= 0 {
		return nil, fmt.Errorf("onset: threshold multiplier must be positive, got %f", cfg.ThresholdMultiplier)
	}
	if cfg.Debounce < 0 {
		return nil, fmt.Errorf("onset: negative debounce %d", cfg.Debounce)
	}
	if bins <= 0 {
		return nil, fmt.Errorf("onset: need at least one bin, got %d", bins)
	}
	return &Detector{
		cfg:     cfg,
		history: make([]float64, cfg.HistorySize),
		prev:    make([]float64, bins),
	}, nil
}

// Threshold is the flux a frame must exceed right now.
func (d *Detector) Threshold() float64 {
	return max(d.cfg.ThresholdMultiplier*stat.Mean(d.history, nil), d.cfg.MinFlux)
}

// Warm reports whether the flux history has filled since the last Reset.
func (d *Detector) Warm() bool { return d.seen >= len(d.history) }

// Detect consumes the spectrum of the frame ending at sample at. It returns
// an event when the frame's flux exceeds the threshold built from earlier
// frames and the debounce interval has passed. Only a detection allocates.
func (d *Detector) Detect(mags []float64, at int64) (Event, bool) {
	flux := feature.SpectralFlux(d.prev, mags)
	threshold := d.Threshold()

	var ev Event
	ok := d.Warm() && flux > threshold && (!d.fired || at-d.last > d.cfg.Debounce)
	if ok {
		ev = Event{
			At:         at,
			Flux:       flux,
			Magnitudes: append([]float64(nil), mags...),
			Previous:   append([]float64(nil), d.prev...),
		}
		d.last = at
		d.fired = true
	}

	d.history[d.next] = flux
	d.next = (d.next + 1) % len(d.history)
	if d.seen < len(d.history) {
		d.seen++
	}
	copy(d.prev, mags)
	return ev, ok
}

// Reset returns the detector to its cold state.
func (d *Detector) Reset() {
	clear(d.history)
	clear(d.prev)
	d.next = 0
	d.seen = 0
	d.fired = false
	d.last = 0
}
