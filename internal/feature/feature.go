// SPDX-License-Identifier: MIT
//
// Package feature maps one analysis frame to a fixed-length descriptor. The
// same Extractor serves training and live classification, so energy is taken
// from the magnitude spectrum and never from a separate time-domain path.
package feature

import (
	"fmt"
	"math"
)

// Vector component indices.
const (
	Flux = iota
	Energy
	Centroid // spectral centroid normalised to the Nyquist frequency
	Sub
	Low
	LowMid
	MidHigh
	High
	Dims
)

// Vector is one frame's descriptor.
type Vector [Dims]float64

// Names are the CSV column names of the vector components, in index order.
var Names = [Dims]string{"flux", "energy", "centroid", "sub", "low", "lowmid", "midhigh", "high"}

// FrequencyBand is a half-open frequency range [LowHz, HighHz).
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// Bands partitions the audible spectrum, each drum class concentrates its
// energy in a different band.
func Bands(sampleRate float64) [5]FrequencyBand {
	return [5]FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 80},
		{Name: "low", LowHz: 80, HighHz: 250},
		{Name: "lowmid", LowHz: 250, HighHz: 1000},
		{Name: "midhigh", LowHz: 1000, HighHz: 4000},
		{Name: "high", LowHz: 4000, HighHz: sampleRate/2 + 1},
	}
}

// Extractor holds the bin-to-band map for one spectrum layout. It carries no
// state between calls.
type Extractor struct {
	bins    int
	band    []int8 // band index per bin, -1 below the lowest band
	binNorm []float64
}

// NewExtractor builds an extractor for spectra of bins magnitudes covering
// 0..sampleRate/2.
func NewExtractor(sampleRate float64, bins int) (*Extractor, error) {
	if bins < 2 {
		return nil, fmt.Errorf("feature: need at least 2 bins, got %d", bins)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("feature: sample rate must be positive, got %f", sampleRate)
	}
	bands := Bands(sampleRate)
	e := &Extractor{
		bins:    bins,
		band:    make([]int8, bins),
		binNorm: make([]float64, bins),
	}
	step := sampleRate / float64(2*(bins-1))
	for i := range bins {
		freq := float64(i) * step
		e.band[i] = -1
		for b, fb := range bands {
			if freq >= fb.LowHz && freq < fb.HighHz {
				e.band[i] = int8(b)
				break
			}
		}
		e.binNorm[i] = float64(i) / float64(bins-1)
	}
	return e, nil
}

// Bins is the spectrum length the extractor expects.
func (e *Extractor) Bins() int { return e.bins }

// Extract computes the descriptor of cur given the preceding frame's
// magnitudes. A nil prev is treated as silence.
func (e *Extractor) Extract(cur, prev []float64) Vector {
	var v Vector
	v[Flux] = SpectralFlux(prev, cur)

	var total, weighted, sum float64
	var bands [5]float64
	for i, m := range cur {
		if i >= e.bins {
			break
		}
		p := m * m
		total += p
		weighted += m * e.binNorm[i]
		sum += m
		if b := e.band[i]; b >= 0 {
			bands[b] += p
		}
	}
	v[Energy] = total
	if sum > 0 {
		v[Centroid] = weighted / sum
	}
	if total > 0 {
		for b := range bands {
			v[Sub+b] = bands[b] / total
		}
	}
	return v
}

// SpectralFlux sums the positive bin-wise increase from prev to cur.
func SpectralFlux(prev, cur []float64) float64 {
	var flux float64
	for i, m := range cur {
		d := m
		if i < len(prev) {
			d -= prev[i]
		}
		if d > 0 {
			flux += d
		}
	}
	return flux
}

// Intensity maps frame energy onto 0..1, a 60dB range below full scale.
func Intensity(energy float64) float64 {
	if energy <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, 1+10*math.Log10(energy)/60))
}
