// SPDX-License-Identifier: MIT
//
// Package classify maps feature vectors to drum labels with a k-nearest
// neighbour vote over a small personal training set, falling back to fixed
// band-ratio rules when no set is loaded.
package classify

import (
	"errors"
	"math"
	"sort"
	"sync/atomic"

	"beatloop/internal/feature"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoExamples is returned when a training source holds no examples.
var ErrNoExamples = errors.New("classify: no training examples")

// Example is one labelled feature vector.
type Example struct {
	Vector feature.Vector
	Label  Label
}

// model is an immutable snapshot of a training set with its normalisation.
type model struct {
	examples []Example
	points   [][]float64 // z-scored vectors, same order as examples
	mean     [feature.Dims]float64
	std      [feature.Dims]float64
}

// Classifier is safe for concurrent use. Train swaps the whole model at once,
// Classify always sees either the old or the new set.
type Classifier struct {
	k     int
	model atomic.Pointer[model]
}

// New returns a classifier that votes among the k nearest examples.
func New(k int) *Classifier {
	if k < 1 {
		k = 1
	}
	return &Classifier{k: k}
}

// Train replaces the training set. An empty set reverts to the fallback rules.
func (c *Classifier) Train(examples []Example) {
	if len(examples) == 0 {
		c.model.Store(nil)
		return
	}
	m := &model{examples: append([]Example(nil), examples...)}

	col := make([]float64, len(examples))
	for d := range feature.Dims {
		for i, ex := range examples {
			col[i] = ex.Vector[d]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if len(examples) < 2 || std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.mean[d], m.std[d] = mean, std
	}
	m.points = make([][]float64, len(examples))
	for i, ex := range examples {
		m.points[i] = m.normalize(ex.Vector)
	}
	c.model.Store(m)
}

// Trained reports whether a training set is loaded.
func (c *Classifier) Trained() bool { return c.model.Load() != nil }

// Examples returns a copy of the current training set.
func (c *Classifier) Examples() []Example {
	m := c.model.Load()
	if m == nil {
		return nil
	}
	return append([]Example(nil), m.examples...)
}

// Counts returns the number of examples per label.
func (c *Classifier) Counts() [NumLabels]int {
	var n [NumLabels]int
	if m := c.model.Load(); m != nil {
		for _, ex := range m.examples {
			if ex.Label.Valid() {
				n[ex.Label]++
			}
		}
	}
	return n
}

// Classify returns the majority label of the k nearest examples, ties going
// to the tied label with the closest member.
func (c *Classifier) Classify(v feature.Vector) Label {
	m := c.model.Load()
	if m == nil {
		return Fallback(v)
	}

	q := m.normalize(v)
	type neighbour struct {
		dist  float64
		label Label
	}
	all := make([]neighbour, len(m.points))
	for i, p := range m.points {
		all[i] = neighbour{dist: floats.Distance(q, p, 2), label: m.examples[i].Label}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	k := min(c.k, len(all))

	var votes [NumLabels]int
	best := 0
	for _, n := range all[:k] {
		if n.label.Valid() {
			votes[n.label]++
			best = max(best, votes[n.label])
		}
	}
	for _, n := range all[:k] {
		if n.label.Valid() && votes[n.label] == best {
			return n.label
		}
	}
	return Fallback(v)
}

func (m *model) normalize(v feature.Vector) []float64 {
	out := make([]float64, feature.Dims)
	for d := range feature.Dims {
		out[d] = (v[d] - m.mean[d]) / m.std[d]
	}
	return out
}

// Fallback classifies by band-energy shares alone and never fails.
func Fallback(v feature.Vector) Label {
	switch {
	case v[feature.Sub]+v[feature.Low] > 0.5:
		return Kick
	case v[feature.High] > 0.6:
		return Hat
	default:
		return Snare
	}
}
