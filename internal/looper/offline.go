// SPDX-License-Identifier: MIT
package looper

import (
	"fmt"
	"time"

	"beatloop/internal/analysis"
	"beatloop/internal/classify"
	"beatloop/internal/config"
	"beatloop/internal/pattern"
)

// Transcribe runs samples through the live path on the virtual clock as a
// single recording on track 1 and returns the resulting loop.
func Transcribe(cfg *config.Config, classifier *classify.Classifier, samples []float32) (*pattern.Pattern, error) {
	c := *cfg
	c.Looper.Tracks = 1
	c.Looper.SyncStart = false
	c.Looper.ExchangeDir = ""
	c.Looper.MaxRecordDuration = time.Duration(float64(len(samples))/c.Audio.SampleRate*float64(time.Second)) + time.Second

	l, err := New(&c, Options{Classifier: classifier})
	if err != nil {
		return nil, err
	}
	if err := l.Apply(Command{Kind: CmdRecord, Track: 1}); err != nil {
		return nil, err
	}
	block := max(c.Audio.FramesPerBuffer, 1)
	for start := 0; start < len(samples); start += block {
		l.Process(samples[start:min(start+block, len(samples))])
	}
	if err := l.Apply(Command{Kind: CmdStop, Track: 1}); err != nil {
		return nil, err
	}
	p := l.tracks[0].Pattern()
	if p == nil {
		return nil, fmt.Errorf("transcribe: %w", pattern.ErrEmpty)
	}
	return p, nil
}

// CollectExamples labels every onset in samples, the offline half of a
// training pass.
func CollectExamples(cfg *config.Config, label classify.Label, samples []float32) ([]classify.Example, error) {
	pipeline, err := analysis.NewPipeline(cfg.Analysis, cfg.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	var out []classify.Example
	pipeline.Process(samples, func(o analysis.Onset) {
		out = append(out, classify.Example{Vector: o.Vector, Label: label})
	})
	return out, nil
}
