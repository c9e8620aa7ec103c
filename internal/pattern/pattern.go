// SPDX-License-Identifier: MIT
//
// Package pattern holds delta-time encoded drum loops and their text file
// format, the artefact shared with the variation service.
package pattern

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"beatloop/internal/classify"
)

// Tolerance is the allowed disagreement, in seconds, between a file's
// declared duration and the span its rows describe.
const Tolerance = 1e-4

var (
	ErrEmpty            = errors.New("pattern has no hits")
	ErrNoDuration       = errors.New("pattern has no positive loop duration")
	ErrDurationMismatch = errors.New("pattern duration does not match its hits")
	ErrMalformedRow     = errors.New("malformed pattern row")
)

// Hit is one drum event. Delta is the time to the next hit, or to the loop
// end for the last hit.
type Hit struct {
	Class     classify.Label
	Timestamp float64
	Intensity float64
	Delta     float64
}

// Pattern is a closed loop: the last hit's Timestamp+Delta equals Duration.
// Patterns are replaced, never mutated, once handed to a track.
type Pattern struct {
	Hits     []Hit
	Duration float64
	Session  string // recording session id, empty for foreign files
}

// Close sorts hits into a loop of the given duration and rewrites every
// delta. Timestamps outside [0, duration) wrap around the loop.
func Close(hits []Hit, duration float64) (*Pattern, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return nil, ErrNoDuration
	}
	if len(hits) == 0 {
		return nil, ErrEmpty
	}
	out := make([]Hit, len(hits))
	for i, h := range hits {
		ts := math.Mod(h.Timestamp, duration)
		if ts < 0 {
			ts += duration
		}
		if ts >= duration {
			ts = 0
		}
		h.Timestamp = ts
		h.Intensity = math.Max(0, math.Min(1, h.Intensity))
		out[i] = h
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	p := &Pattern{Hits: out, Duration: duration}
	p.recomputeDeltas()
	return p, nil
}

func (p *Pattern) recomputeDeltas() {
	last := len(p.Hits) - 1
	for i := range last {
		p.Hits[i].Delta = p.Hits[i+1].Timestamp - p.Hits[i].Timestamp
	}
	p.Hits[last].Delta = p.Duration - p.Hits[last].Timestamp
}

// Span is the duration implied by the hits: the last timestamp plus its delta.
func (p *Pattern) Span() float64 {
	if len(p.Hits) == 0 {
		return 0
	}
	last := p.Hits[len(p.Hits)-1]
	return last.Timestamp + last.Delta
}

// Validate checks the closed-loop invariant and every row.
func (p *Pattern) Validate() error {
	if p == nil || len(p.Hits) == 0 {
		return ErrEmpty
	}
	if !(p.Duration > 0) || math.IsInf(p.Duration, 0) {
		return ErrNoDuration
	}
	for i, h := range p.Hits {
		if !h.Class.Valid() {
			return fmt.Errorf("%w: row %d: class %d out of range", ErrMalformedRow, i+1, h.Class)
		}
		if h.Intensity < 0 || h.Intensity > 1 || math.IsNaN(h.Intensity) {
			return fmt.Errorf("%w: row %d: intensity %f out of range", ErrMalformedRow, i+1, h.Intensity)
		}
		if h.Timestamp < 0 || h.Delta < 0 || math.IsNaN(h.Timestamp) || math.IsNaN(h.Delta) {
			return fmt.Errorf("%w: row %d: negative time", ErrMalformedRow, i+1)
		}
		if i == 0 {
			continue
		}
		prev := p.Hits[i-1]
		if h.Timestamp < prev.Timestamp {
			return fmt.Errorf("%w: row %d: timestamps not in order", ErrMalformedRow, i+1)
		}
		if math.Abs(prev.Timestamp+prev.Delta-h.Timestamp) > Tolerance {
			return fmt.Errorf("%w: row %d: delta %.6f does not reach the next hit", ErrMalformedRow, i, prev.Delta)
		}
	}
	if span := p.Span(); math.Abs(span-p.Duration) > Tolerance {
		return fmt.Errorf("%w: header %.6f, hits span %.6f", ErrDurationMismatch, p.Duration, span)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	c := *p
	c.Hits = append([]Hit(nil), p.Hits...)
	return &c
}

// Counts returns the number of hits per class.
func (p *Pattern) Counts() [classify.NumLabels]int {
	var n [classify.NumLabels]int
	for _, h := range p.Hits {
		if h.Class.Valid() {
			n[h.Class]++
		}
	}
	return n
}
