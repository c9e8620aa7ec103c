// SPDX-License-Identifier: MIT
package dsp

import "fmt"

// Framer slices a continuous stream into frames of size samples that advance
// by hop samples. The first frame is emitted once size samples have arrived,
// later frames every hop samples after that.
type Framer struct {
	size  int
	hop   int
	buf   []float64
	fill  int
	total int64 // samples consumed since construction or Reset
}

// NewFramer validates 0 < hop <= size.
func NewFramer(size, hop int) (*Framer, error) {
	if size <= 0 || hop <= 0 || hop > size {
		return nil, fmt.Errorf("invalid framing size=%d hop=%d", size, hop)
	}
	return &Framer{size: size, hop: hop, buf: make([]float64, size)}, nil
}

// Hop is the frame advance in samples.
func (f *Framer) Hop() int { return f.hop }

// Size is the frame length in samples.
func (f *Framer) Size() int { return f.size }

// Consumed reports the number of samples pushed so far.
func (f *Framer) Consumed() int64 { return f.total }

// Push feeds samples and calls emit for every completed frame. end is the
// stream position one past the frame's last sample. The frame slice is only
// valid for the duration of the call.
func (f *Framer) Push(samples []float32, emit func(frame []float64, end int64)) {
	for _, s := range samples {
		f.buf[f.fill] = float64(s)
		f.fill++
		f.total++
		if f.fill < f.size {
			continue
		}
		emit(f.buf, f.total)
		copy(f.buf, f.buf[f.hop:])
		f.fill = f.size - f.hop
	}
}

// Reset drops buffered samples and restarts the stream position at zero.
func (f *Framer) Reset() {
	clear(f.buf)
	f.fill = 0
	f.total = 0
}
