// SPDX-License-Identifier: MIT
//
// Package analysis chains the framer, analyzer, onset detector and feature
// extractor into the single path that both live input and offline files go
// through.
package analysis

import (
	"fmt"

	"beatloop/internal/config"
	"beatloop/internal/dsp"
	"beatloop/internal/feature"
	"beatloop/internal/onset"
)

// AudioProcessor consumes mono float samples. Implementations are driven
// from the looper goroutine, never concurrently.
type AudioProcessor interface {
	Process(samples []float32, emit func(Onset))
}

// Onset is a detected attack with its descriptor.
type Onset struct {
	At        int64 // stream position in samples
	Vector    feature.Vector
	Intensity float64
}

// Pipeline is the shared onset path. It is not safe for concurrent use.
type Pipeline struct {
	framer    *dsp.Framer
	analyzer  *dsp.Analyzer
	detector  *onset.Detector
	extractor *feature.Extractor
	mags      []float64
	emit      func(Onset)
	frameFn   func([]float64, int64)
}

var _ AudioProcessor = (*Pipeline)(nil)

// NewPipeline builds a pipeline from the analysis section of the config.
func NewPipeline(cfg config.AnalysisConfig, sampleRate float64) (*Pipeline, error) {
	win, err := dsp.ParseWindowFunc(cfg.Window)
	if err != nil {
		return nil, err
	}
	framer, err := dsp.NewFramer(cfg.FrameSize, cfg.HopSize)
	if err != nil {
		return nil, err
	}
	analyzer, err := dsp.NewAnalyzer(cfg.FrameSize, sampleRate, win)
	if err != nil {
		return nil, err
	}
	detector, err := onset.NewDetector(onset.Config{
		ThresholdMultiplier: cfg.ThresholdMultiplier,
		MinFlux:             cfg.MinFlux,
		HistorySize:         cfg.HistorySize,
		Debounce:            int64(cfg.Debounce.Seconds() * sampleRate),
	}, analyzer.Bins())
	if err != nil {
		return nil, err
	}
	extractor, err := feature.NewExtractor(sampleRate, analyzer.Bins())
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	p := &Pipeline{
		framer:    framer,
		analyzer:  analyzer,
		detector:  detector,
		extractor: extractor,
		mags:      make([]float64, analyzer.Bins()),
	}
	p.frameFn = p.frame
	return p, nil
}

// Process pushes samples through the chain and calls emit for each onset.
func (p *Pipeline) Process(samples []float32, emit func(Onset)) {
	p.emit = emit
	p.framer.Push(samples, p.frameFn)
	p.emit = nil
}

func (p *Pipeline) frame(frame []float64, end int64) {
	p.analyzer.Magnitudes(p.mags, frame)
	ev, ok := p.detector.Detect(p.mags, end)
	if !ok || p.emit == nil {
		return
	}
	v := p.extractor.Extract(ev.Magnitudes, ev.Previous)
	// The attack entered the frame through its newest hop.
	at := max(ev.At-int64(p.framer.Hop()), 0)
	p.emit(Onset{At: at, Vector: v, Intensity: feature.Intensity(v[feature.Energy])})
}

// Position is the number of samples consumed so far.
func (p *Pipeline) Position() int64 { return p.framer.Consumed() }

// Reset returns the pipeline to its cold startup state.
func (p *Pipeline) Reset() {
	p.framer.Reset()
	p.detector.Reset()
}
