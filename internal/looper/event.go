// SPDX-License-Identifier: MIT
package looper

import (
	"beatloop/internal/classify"
	"beatloop/internal/pattern"
)

// EventKind names an outbound event.
type EventKind string

const (
	KindHit        EventKind = "hit"      // playback trigger
	KindOnset      EventKind = "onset"    // live detection
	KindBoundary   EventKind = "boundary" // a track wrapped
	KindState      EventKind = "state"
	KindDiagnostic EventKind = "diagnostic"
)

// Event is published from the looper goroutine. At is virtual time in samples.
type Event struct {
	Kind      EventKind `json:"kind"`
	Track     int       `json:"track,omitempty"`
	At        int64     `json:"at"`
	Session   uint64    `json:"session,omitempty"`
	Class     string    `json:"class,omitempty"`
	Intensity float64   `json:"intensity,omitempty"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Sink receives events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// Notifier is the outbound half of the notification channel.
type Notifier interface {
	RecordingStarted(track int)
	RecordingEnded(track int, path string)
	TrackCleared(track int)
	ParameterChanged(name string, value float64)
	Regenerate(track int, intensity float64)
}

// Archive stores every recorded take.
type Archive interface {
	ArchivePattern(session string, track, take int, p *pattern.Pattern) error
}

// ExampleStore persists committed training sets.
type ExampleStore interface {
	SaveExamples(examples []classify.Example) error
}

// NotificationKind is an inbound notification type.
type NotificationKind int

const (
	VariationsReady NotificationKind = iota
	GenerationProgress
	GenerationError
)

// Notification arrives from the variation service. Track -1 means all tracks.
type Notification struct {
	Kind  NotificationKind
	Track int
	Text  string
}

// Sinks fans events out to several sinks.
type Sinks []Sink

func (s Sinks) Publish(ev Event) {
	for _, sink := range s {
		sink.Publish(ev)
	}
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

type nopNotifier struct{}

func (nopNotifier) RecordingStarted(int)             {}
func (nopNotifier) RecordingEnded(int, string)       {}
func (nopNotifier) TrackCleared(int)                 {}
func (nopNotifier) ParameterChanged(string, float64) {}
func (nopNotifier) Regenerate(int, float64)          {}
