// SPDX-License-Identifier: MIT
package looper

import (
	"fmt"
	"math"

	"beatloop/internal/pattern"
)

// install starts a new pattern instance on t. The loop keeps its phase: with
// origin in the past, playback resumes at the current position and only the
// hits still ahead in this pass are scheduled.
func (l *Looper) install(t *Track, p *pattern.Pattern, origin, length int64) {
	t.Session++
	t.armed = false
	l.play(t, p, origin, length)

	now := l.sched.Now()
	k := max(floorDiv(now-origin, length), 0)
	l.schedulePass(t, origin+k*length, now)
	l.publishState(t)
}

func (l *Looper) play(t *Track, p *pattern.Pattern, origin, length int64) {
	t.current = p
	t.playing = true
	t.origin = origin
	t.length = length
	t.offsets = hitOffsets(p, length, l.sampleRate)
}

// schedulePass arms one loop repetition starting at start: a trigger per hit
// at or after from, and the boundary that ends the pass. Every callback
// carries the session current at scheduling time.
func (l *Looper) schedulePass(t *Track, start, from int64) {
	session := t.Session
	for i, off := range t.offsets {
		at := start + off
		if at < from {
			continue
		}
		hit := t.current.Hits[i]
		l.sched.At(at, func(now int64) { l.fire(t, session, hit, now) })
	}
	l.sched.At(start+t.length, func(now int64) { l.onBoundary(t, session, now) })
}

func (l *Looper) fire(t *Track, session uint64, hit pattern.Hit, now int64) {
	if t.Session != session {
		return
	}
	l.sink.Publish(Event{
		Kind:      KindHit,
		Track:     t.ID,
		At:        now,
		Session:   session,
		Class:     hit.Class.String(),
		Intensity: hit.Intensity,
	})
}

// onBoundary runs at the end of every pass, and once for an idle track that
// has an action waiting. A pending action gets a new session before it
// executes, so nothing scheduled for the old instance can fire.
func (l *Looper) onBoundary(t *Track, session uint64, now int64) {
	if t.Session != session {
		return
	}
	t.armed = false
	if t.playing {
		l.sink.Publish(Event{Kind: KindBoundary, Track: t.ID, At: now, Session: session})
	}
	if act := t.pending; act != nil {
		t.pending = nil
		t.Session++
		l.execute(t, act, now)
		l.publishState(t)
	}
	if t.playing {
		l.schedulePass(t, now, now)
	}
}

func (l *Looper) execute(t *Track, act *Action, now int64) {
	switch act.Kind {
	case ActionClear:
		t.current, t.original, t.alternate = nil, nil, nil
		t.onAlternate = false
		t.playing = false
		t.offsets = nil
		t.length = 0
		l.notifier.TrackCleared(t.ID)
		logger.Infof("track %d: cleared", t.ID)

	case ActionLoad:
		t.original = act.Pattern
		t.alternate = nil
		t.onAlternate = false
		l.play(t, act.Pattern, now, l.lengthFor(act.Pattern, now))
		logger.Infof("track %d: loaded %s (%d hits)", t.ID, act.Source, len(act.Pattern.Hits))

	case ActionToggle:
		if t.original == nil || t.alternate == nil {
			l.diagnostic(t.ID, "toggle ignored, no variation available")
			return
		}
		t.onAlternate = !t.onAlternate
		next := t.original
		if t.onAlternate {
			next = t.alternate
		}
		length := t.length
		if !t.playing || length <= 0 {
			length = l.lengthFor(next, now)
		} else if fitted, err := l.fitLoop(next, length); err != nil {
			t.onAlternate = !t.onAlternate
			l.diagnostic(t.ID, fmt.Sprintf("toggle ignored: %v", err))
			return
		} else {
			next = fitted
		}
		l.play(t, next, now, length)
		which := "original"
		if t.onAlternate {
			which = "variation"
		}
		logger.Infof("track %d: playing %s", t.ID, which)

	case ActionRegenerate:
		if t.current == nil {
			l.diagnostic(t.ID, "regenerate ignored, track is empty")
			return
		}
		l.exportPattern(t, t.current)
		l.notifier.Regenerate(t.ID, l.intensity)
	}
}

// lengthFor quantizes a loaded pattern's duration like a recording. A pattern
// loaded before anything was recorded becomes the master reference.
func (l *Looper) lengthFor(p *pattern.Pattern, now int64) int64 {
	raw := int64(math.Round(p.Duration * l.sampleRate))
	fit := l.master.Fit(raw)
	if fit.First {
		if err := l.master.Establish(fit.Samples, now); err == nil {
			logger.Infof("master reference %.3fs from loaded pattern", l.seconds(fit.Samples))
		}
	}
	return fit.Samples
}

// fitLoop re-closes p to a loop of length samples. Hits at or past the end
// are dropped. A pattern already that long is returned as is.
func (l *Looper) fitLoop(p *pattern.Pattern, length int64) (*pattern.Pattern, error) {
	d := l.seconds(length)
	if math.Abs(p.Duration-d) < 0.5/l.sampleRate {
		return p, nil
	}
	hits := make([]pattern.Hit, 0, len(p.Hits))
	for _, h := range p.Hits {
		if h.Timestamp < d {
			hits = append(hits, h)
		}
	}
	closed, err := pattern.Close(hits, d)
	if err != nil {
		return nil, err
	}
	closed.Session = p.Session
	return closed, nil
}

// queue sets the pending slot, replacing whatever was there.
func (l *Looper) queue(t *Track, act Action) {
	if t.pending != nil {
		logger.Debugf("track %d: %s replaces pending %s", t.ID, act.Kind, t.pending.Kind)
	}
	t.pending = &act
	l.arm(t)
	l.publishState(t)
}

// arm gives a pending action on a non-playing track a boundary to run at:
// the next master boundary, or right away without a reference. Tracks that
// are recording keep the action until their first loop is installed.
func (l *Looper) arm(t *Track) {
	if t.pending == nil || t.playing || t.armed || t.State != Idle {
		return
	}
	t.armed = true
	session := t.Session
	if _, ok := l.master.Reference(); !ok {
		l.onBoundary(t, session, l.sched.Now())
		return
	}
	l.sched.At(l.master.NextBoundary(l.sched.Now()), func(now int64) { l.onBoundary(t, session, now) })
}

// disarm cancels the boundary scheduled by arm. The pending action stays
// queued.
func (l *Looper) disarm(t *Track) {
	if !t.armed {
		return
	}
	t.Session++
	t.armed = false
}
