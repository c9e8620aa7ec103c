// SPDX-License-Identifier: MIT
//
// Package signal generates deterministic test signals for the analysis and
// looper packages: silence, tones and drum-like transients at exact sample
// positions. Every generator is seeded so repeated runs produce identical
// buffers.
package signal

import (
	"math"
	"math/rand"
)

// Kind selects the spectral character of a generated transient.
type Kind int

const (
	// Thump is a decaying 60Hz sine, energy concentrated in the sub/low bands.
	Thump Kind = iota
	// Crack is a decaying broadband noise burst with a 200Hz body.
	Crack
	// Tick is a short first-difference (high-passed) noise burst.
	Tick
)

// Hit places a transient of the given kind at a time offset in seconds.
type Hit struct {
	At        float64
	Kind      Kind
	Amplitude float64
}

// Silence returns n zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// Seconds converts a duration in seconds to a sample count at sampleRate.
func Seconds(seconds, sampleRate float64) int {
	return int(math.Round(seconds * sampleRate))
}

// Tone returns n samples of a sine wave at frequency with the given peak amplitude.
func Tone(n int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, n)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// Render writes the hits into a buffer of the given duration. Transients are
// 40ms long with an exponential decay and are mixed additively.
func Render(duration, sampleRate float64, hits []Hit, seed int64) []float32 {
	buffer := make([]float32, Seconds(duration, sampleRate))
	rng := rand.New(rand.NewSource(seed))
	for _, h := range hits {
		AddTransient(buffer, Seconds(h.At, sampleRate), sampleRate, h.Kind, h.Amplitude, rng)
	}
	return buffer
}

// AddTransient mixes one transient starting at sample start into buffer.
func AddTransient(buffer []float32, start int, sampleRate float64, kind Kind, amplitude float64, rng *rand.Rand) {
	length := Seconds(0.04, sampleRate)
	decay := sampleRate * 0.008
	var last float64
	for i := 0; i < length; i++ {
		idx := start + i
		if idx < 0 {
			continue
		}
		if idx >= len(buffer) {
			return
		}
		env := amplitude * math.Exp(-float64(i)/decay)
		t := float64(i) / sampleRate
		var v float64
		switch kind {
		case Thump:
			v = math.Sin(2 * math.Pi * 60 * t)
		case Crack:
			v = 0.6*(rng.Float64()*2-1) + 0.4*math.Sin(2*math.Pi*200*t)
		case Tick:
			n := rng.Float64()*2 - 1
			v = (n - last) * 0.5
			last = n
		}
		buffer[idx] += float32(env * v)
	}
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
