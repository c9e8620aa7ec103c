// SPDX-License-Identifier: MIT
/*
Package osc carries the notification channel to and from the variation
service as OSC 1.0 messages over UDP.

Outbound arguments are int32, float32 and string. Inbound messages may use
any numeric type for a track number.
*/
package osc

import (
	"fmt"
	"net"
	"strconv"

	"beatloop/internal/log"
	"beatloop/internal/looper"

	gosc "github.com/hypebeast/go-osc/osc"
)

var logger = log.Component("osc")

// Addresses of the notification channel.
const (
	AddrRecordingStarted   = "/beatloop/recording_started"
	AddrRecordingEnded     = "/beatloop/recording_ended"
	AddrTrackCleared       = "/beatloop/track_cleared"
	AddrParameterChanged   = "/beatloop/parameter_changed"
	AddrRegenerate         = "/beatloop/regenerate"
	AddrVariationsReady    = "/beatloop/variations_ready"
	AddrGenerationProgress = "/beatloop/generation_progress"
	AddrError              = "/beatloop/error"
)

// Client transmits one packet. *gosc.Client satisfies it.
type Client interface {
	Send(packet gosc.Packet) error
}

// Notifier sends the looper's outbound notifications. Delivery is
// at-most-once, failures are logged and forgotten.
type Notifier struct {
	client Client
}

func NewNotifier(client Client) *Notifier {
	return &Notifier{client: client}
}

// Dial returns a notifier for target ("host:port").
func Dial(target string) (*Notifier, error) {
	host, p, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("osc target %q: %w", target, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("osc target %q: invalid port", target)
	}
	logger.Infof("sending notifications to %s", target)
	return NewNotifier(gosc.NewClient(host, port)), nil
}

func (n *Notifier) send(addr string, args ...any) {
	m := gosc.NewMessage(addr, args...)
	if err := n.client.Send(m); err != nil {
		logger.Warnf("send %s: %v", m, err)
		return
	}
	logger.Debugf("sent %s", m)
}

func (n *Notifier) RecordingStarted(track int) {
	n.send(AddrRecordingStarted, int32(track))
}

func (n *Notifier) RecordingEnded(track int, path string) {
	n.send(AddrRecordingEnded, int32(track), path)
}

func (n *Notifier) TrackCleared(track int) {
	n.send(AddrTrackCleared, int32(track))
}

func (n *Notifier) ParameterChanged(name string, value float64) {
	n.send(AddrParameterChanged, name, float32(value))
}

func (n *Notifier) Regenerate(track int, intensity float64) {
	n.send(AddrRegenerate, int32(track), float32(intensity))
}

var _ looper.Notifier = (*Notifier)(nil)
