// SPDX-License-Identifier: MIT
//
// Package dsp turns a mono sample stream into overlapping analysis frames and
// magnitude spectra. Nothing here allocates after construction, both types
// are safe to drive from the audio path.
package dsp

import (
	"fmt"
	"math/bits"
	"math/cmplx"

	"beatloop/internal/log"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

var logger = log.Component("dsp")

// Analyzer computes windowed magnitude spectra of fixed-size frames.
// It is not safe for concurrent use, each pipeline owns its own.
type Analyzer struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	window     []float64
	scale      float64 // 2/sum(window), a full-scale sine peaks near 1.0
	input      []float64
	coeffs     []complex128
}

// NewAnalyzer returns an analyzer for frames of size samples (a power of two).
func NewAnalyzer(size int, sampleRate float64, w WindowFunc) (*Analyzer, error) {
	if size < 2 || bits.OnesCount(uint(size)) != 1 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, size)
	applyWindow(coeffs, w)

	logger.Debugf("analyzer size=%d rate=%.1f window=%s", size, sampleRate, w)

	return &Analyzer{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		window:     coeffs,
		scale:      2 / floats.Sum(coeffs),
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
	}, nil
}

// Size is the frame length in samples.
func (a *Analyzer) Size() int { return a.size }

// Bins is the number of magnitude bins produced per frame (size/2 + 1).
func (a *Analyzer) Bins() int { return a.size/2 + 1 }

// SampleRate is the configured sample rate in Hz.
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// BinFrequency returns the centre frequency of bin in Hz, 0 when out of range.
func (a *Analyzer) BinFrequency(bin int) float64 {
	if bin < 0 || bin >= a.Bins() {
		return 0
	}
	return float64(bin) * a.sampleRate / float64(a.size)
}

// Magnitudes windows frame, transforms it and writes the scaled magnitude
// spectrum into dst. Frames shorter than the analyzer size are zero padded.
// It panics unless dst holds exactly Bins() values, like the fourier
// transforms it wraps.
func (a *Analyzer) Magnitudes(dst, frame []float64) {
	if len(dst) != a.Bins() {
		panic(fmt.Sprintf("dsp: destination length %d does not match required length %d", len(dst), a.Bins()))
	}
	for i := range a.size {
		if i < len(frame) {
			a.input[i] = frame[i] * a.window[i]
		} else {
			a.input[i] = 0
		}
	}
	a.fft.Coefficients(a.coeffs, a.input)
	for i, c := range a.coeffs {
		dst[i] = cmplx.Abs(c) * a.scale
	}
}
