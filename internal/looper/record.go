// SPDX-License-Identifier: MIT
package looper

import (
	"fmt"

	"beatloop/internal/classify"
	"beatloop/internal/pattern"
)

func (l *Looper) startRecording(t *Track) error {
	if t.State != Idle {
		return fmt.Errorf("%w: track %d is %s", ErrBusy, t.ID, t.State)
	}
	now := l.sched.Now()
	if l.syncStart {
		if _, ok := l.master.Reference(); ok {
			if at := l.master.NextBoundary(now); at > now {
				l.disarm(t)
				t.State = WaitingForBoundary
				t.waitGen++
				gen := t.waitGen
				l.sched.At(at, func(now int64) {
					if t.State == WaitingForBoundary && t.waitGen == gen {
						l.beginRecording(t, now)
					}
				})
				logger.Infof("track %d: waiting %.3fs for the master boundary", t.ID, l.seconds(at-now))
				l.publishState(t)
				return nil
			}
		}
	}
	l.beginRecording(t, now)
	return nil
}

func (l *Looper) beginRecording(t *Track, now int64) {
	l.disarm(t)
	t.State = Recording
	t.recStart = now
	t.recHits = t.recHits[:0]
	t.recGen++
	gen := t.recGen
	l.sched.At(now+l.maxRecord, func(at int64) {
		if t.State == Recording && t.recGen == gen {
			logger.Infof("track %d: recording reached %.1fs, stopping", t.ID, l.seconds(l.maxRecord))
			l.endRecording(t, at)
		}
	})
	logger.Infof("track %d: recording", t.ID)
	l.notifier.RecordingStarted(t.ID)
	l.publishState(t)
}

func (l *Looper) stopRecording(t *Track) error {
	switch t.State {
	case WaitingForBoundary:
		t.State = Idle
		t.waitGen++
		logger.Infof("track %d: sync start cancelled", t.ID)
		l.publishState(t)
		l.arm(t)
		return nil
	case Recording:
		l.endRecording(t, l.sched.Now())
		return nil
	default:
		return fmt.Errorf("%w: track %d", ErrNotRecording, t.ID)
	}
}

// endRecording quantizes the take, closes it into a loop and starts playing
// it from where the recording began.
func (l *Looper) endRecording(t *Track, end int64) {
	t.State = Idle
	t.recGen++
	hits := t.recHits
	t.recHits = nil
	raw := end - t.recStart

	if len(hits) == 0 || raw <= 0 {
		l.diagnostic(t.ID, "recording captured no onsets")
		l.notifier.RecordingEnded(t.ID, "")
		l.publishState(t)
		l.arm(t)
		return
	}

	fit := l.master.Fit(raw)
	if fit.First {
		if err := l.master.Establish(fit.Samples, t.recStart); err != nil {
			l.diagnostic(t.ID, err.Error())
			l.arm(t)
			return
		}
		logger.Infof("master reference %.3fs (raw %.3fs)", l.seconds(fit.Samples), l.seconds(raw))
	}
	p, err := pattern.Close(hits, l.seconds(fit.Samples))
	if err != nil {
		l.diagnostic(t.ID, fmt.Sprintf("recording dropped: %v", err))
		l.arm(t)
		return
	}
	p.Session = l.session

	t.original = p
	t.alternate = nil
	t.onAlternate = false
	l.install(t, p, t.recStart, fit.Samples)
	logger.Infof("track %d: %d hits, raw %.3fs, ratio %g, loop %.3fs",
		t.ID, len(p.Hits), l.seconds(raw), fit.Ratio, p.Duration)

	l.takes++
	if l.archive != nil {
		if err := l.archive.ArchivePattern(l.session, t.ID, l.takes, p); err != nil {
			logger.Warnf("track %d: archive failed: %v", t.ID, err)
		}
	}
	l.notifier.RecordingEnded(t.ID, l.exportPattern(t, p))
}

// exportPattern writes p to the track's exchange file and returns its path,
// "" when there is no exchange directory or the write failed.
func (l *Looper) exportPattern(t *Track, p *pattern.Pattern) string {
	if l.exchangeDir == "" {
		return ""
	}
	path := pattern.DrumsFile(l.exchangeDir, t.ID)
	if err := pattern.Save(path, p); err != nil {
		l.diagnostic(t.ID, fmt.Sprintf("failed to export pattern: %v", err))
		return ""
	}
	return path
}

func (l *Looper) startTraining(label classify.Label) error {
	if !label.Valid() {
		return fmt.Errorf("invalid label %d", label)
	}
	if l.training == nil {
		l.training = &trainingPass{}
	}
	l.training.label = label
	logger.Infof("training %s, %d examples collected so far", label, len(l.training.examples))
	return nil
}

// commitTraining replaces the classifier's set with every example of the
// pass and persists it.
func (l *Looper) commitTraining() error {
	if l.training == nil {
		return ErrNoTraining
	}
	examples := l.training.examples
	if len(examples) == 0 {
		return classify.ErrNoExamples
	}
	l.classifier.Train(examples)
	l.training = nil
	logger.Infof("classifier retrained with %d examples", len(examples))
	if l.examples != nil {
		if err := l.examples.SaveExamples(examples); err != nil {
			l.diagnostic(0, fmt.Sprintf("training set not saved: %v", err))
		}
	}
	return nil
}

func (l *Looper) cancelTraining() error {
	if l.training == nil {
		return ErrNoTraining
	}
	logger.Infof("training cancelled, %d examples discarded", len(l.training.examples))
	l.training = nil
	return nil
}
