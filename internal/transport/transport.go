// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"time"

	"beatloop/internal/log"
	"beatloop/internal/looper"

	"github.com/google/uuid"
)

var logger = log.Component("transport")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// CommandHandler executes a parsed control command. looper.Runner satisfies it.
type CommandHandler interface {
	Submit(ctx context.Context, cmd looper.Command) error
}

// SnapshotSource is polled by status consumers. looper.Runner satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (looper.Snapshot, error)
}

// Envelope wraps every outbound event with a unique id and wall-clock time.
type Envelope struct {
	ID    string       `json:"id"`
	Sent  time.Time    `json:"sent"`
	Event looper.Event `json:"event"`
}

func NewEnvelope(ev looper.Event) Envelope {
	return Envelope{ID: uuid.NewString(), Sent: time.Now().UTC(), Event: ev}
}

// EventSink adapts a Transport to a looper.Sink.
type EventSink struct {
	t Transport
}

func NewEventSink(t Transport) *EventSink {
	return &EventSink{t: t}
}

// Publish wraps ev in an Envelope and sends it. Send errors are logged.
func (s *EventSink) Publish(ev looper.Event) {
	if err := s.t.Send(NewEnvelope(ev)); err != nil {
		logger.Debugf("dropped %s event: %v", ev.Kind, err)
	}
}

var _ looper.Sink = (*EventSink)(nil)
