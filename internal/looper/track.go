// SPDX-License-Identifier: MIT
package looper

import (
	"fmt"
	"math"

	"beatloop/internal/pattern"
)

// State is a track's recording state.
type State int

const (
	Idle State = iota
	WaitingForBoundary
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForBoundary:
		return "waiting"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ActionKind is a state change deferred to a loop boundary.
type ActionKind int

const (
	ActionClear ActionKind = iota
	ActionLoad
	ActionToggle
	ActionRegenerate
)

func (k ActionKind) String() string {
	switch k {
	case ActionClear:
		return "clear"
	case ActionLoad:
		return "load"
	case ActionToggle:
		return "toggle"
	case ActionRegenerate:
		return "regenerate"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is the single pending slot of a track. Pattern is set for ActionLoad.
type Action struct {
	Kind    ActionKind
	Pattern *pattern.Pattern
	Source  string
}

// Track is one independent loop. All fields are owned by the looper goroutine.
type Track struct {
	ID    int
	State State

	// Session identifies the playing pattern instance. Every scheduled
	// callback captures it and does nothing once it has moved on.
	Session uint64

	pending *Action
	armed   bool // an idle boundary is scheduled for the pending action

	current     *pattern.Pattern
	original    *pattern.Pattern
	alternate   *pattern.Pattern
	onAlternate bool

	playing bool
	origin  int64 // sample of a loop start
	length  int64 // loop length in samples
	offsets []int64

	recStart int64
	recHits  []pattern.Hit
	recGen   uint64 // invalidates the max-duration timer
	waitGen  uint64 // invalidates a pending sync start
}

// Pattern returns the pattern currently playing, nil when empty.
func (t *Track) Pattern() *pattern.Pattern { return t.current }

// Pending returns the queued action, nil when none.
func (t *Track) Pending() *Action { return t.pending }

// Playing reports whether the track is looping a pattern.
func (t *Track) Playing() bool { return t.playing }

// Length is the loop length in samples.
func (t *Track) Length() int64 { return t.length }

// position is the phase within the loop at now.
func (t *Track) position(now int64) int64 {
	if !t.playing || t.length <= 0 {
		return 0
	}
	return floorMod(now-t.origin, t.length)
}

// hitOffsets maps hit timestamps to sample offsets inside a loop of length
// samples. Offsets at or past the end wrap around.
func hitOffsets(p *pattern.Pattern, length int64, sampleRate float64) []int64 {
	out := make([]int64, len(p.Hits))
	for i, h := range p.Hits {
		out[i] = floorMod(int64(math.Round(h.Timestamp*sampleRate)), length)
	}
	return out
}

func floorMod(a, n int64) int64 {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func floorDiv(a, n int64) int64 {
	q := a / n
	if a%n != 0 && (a < 0) != (n < 0) {
		q--
	}
	return q
}
