// SPDX-License-Identifier: MIT
package looper

// TrackSnapshot is a copy of one track's observable state.
type TrackSnapshot struct {
	ID           int     `json:"id"`
	State        string  `json:"state"`
	Session      uint64  `json:"session"`
	Playing      bool    `json:"playing"`
	Length       float64 `json:"length"`   // seconds
	Position     float64 `json:"position"` // seconds into the loop
	Hits         int     `json:"hits"`
	Pending      string  `json:"pending,omitempty"`
	HasVariation bool    `json:"has_variation"`
	OnVariation  bool    `json:"on_variation"`
	Recorded     float64 `json:"recorded,omitempty"` // seconds recorded so far
}

// Snapshot is a copy of the looper's state, safe to hand to other goroutines.
type Snapshot struct {
	Time      int64           `json:"time"`
	Session   string          `json:"session"`
	Reference float64         `json:"reference"` // master loop seconds, 0 when unset
	Intensity float64         `json:"intensity"`
	Training  string          `json:"training,omitempty"`
	Trained   bool            `json:"trained"`
	Tracks    []TrackSnapshot `json:"tracks"`
}

// Snapshot copies the current state.
func (l *Looper) Snapshot() Snapshot {
	now := l.sched.Now()
	s := Snapshot{
		Time:      now,
		Session:   l.session,
		Intensity: l.intensity,
		Trained:   l.classifier.Trained(),
		Tracks:    make([]TrackSnapshot, len(l.tracks)),
	}
	if ref, ok := l.master.Reference(); ok {
		s.Reference = l.seconds(ref.Samples)
	}
	if l.training != nil {
		s.Training = l.training.label.String()
	}
	for i, t := range l.tracks {
		ts := TrackSnapshot{
			ID:           t.ID,
			State:        t.State.String(),
			Session:      t.Session,
			Playing:      t.playing,
			Length:       l.seconds(t.length),
			Position:     l.seconds(t.position(now)),
			HasVariation: t.alternate != nil,
			OnVariation:  t.onAlternate,
		}
		if t.current != nil {
			ts.Hits = len(t.current.Hits)
		}
		if t.pending != nil {
			ts.Pending = t.pending.Kind.String()
		}
		if t.State == Recording {
			ts.Recorded = l.seconds(now - t.recStart)
		}
		s.Tracks[i] = ts
	}
	return s
}
