// SPDX-License-Identifier: MIT
package osc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"beatloop/internal/looper"

	gosc "github.com/hypebeast/go-osc/osc"
)

// Deliverer queues inbound notifications. *looper.Runner satisfies it.
type Deliverer interface {
	Deliver(n looper.Notification) bool
}

// Listener receives the variation service's notifications. Packets are
// dispatched in arrival order on the Run goroutine.
type Listener struct {
	conn   net.PacketConn
	server *gosc.Server
}

// Listen binds addr ("host:port").
func Listen(addr string, deliver Deliverer) (*Listener, error) {
	d := gosc.NewStandardDispatcher()
	handle := func(m *gosc.Message) {
		if note, ok := Translate(m); ok {
			deliver.Deliver(note)
		}
	}
	for _, a := range []string{AddrVariationsReady, AddrGenerationProgress, AddrError} {
		if err := d.AddMsgHandler(a, handle); err != nil {
			return nil, fmt.Errorf("osc handler %s: %w", a, err)
		}
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for notifications on %s: %w", addr, err)
	}
	logger.Infof("listening for notifications on %s", conn.LocalAddr())
	return &Listener{
		conn:   conn,
		server: &gosc.Server{Addr: addr, Dispatcher: d},
	}, nil
}

func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Run reads packets until ctx is done or the listener is closed. Packets
// that fail to parse are logged and skipped.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	for {
		p, err := l.server.ReceivePacket(l.conn)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) {
				return err
			}
			logger.Warnf("dropping packet: %v", err)
			continue
		}
		if p == nil {
			continue
		}
		if m, ok := p.(*gosc.Message); ok {
			logger.Debugf("received %s", m)
		}
		l.server.Dispatcher.Dispatch(p)
	}
}

func (l *Listener) Close() error {
	err := l.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Translate maps an inbound message to a looper notification.
// variations_ready without a track argument means all tracks.
func Translate(m *gosc.Message) (looper.Notification, bool) {
	switch m.Address {
	case AddrVariationsReady:
		track, ok := intArg(m, 0)
		if !ok {
			track = -1
		}
		return looper.Notification{Kind: looper.VariationsReady, Track: track}, true
	case AddrGenerationProgress:
		text, _ := textArg(m, 0)
		return looper.Notification{Kind: looper.GenerationProgress, Track: -1, Text: text}, true
	case AddrError:
		text, _ := textArg(m, 0)
		return looper.Notification{Kind: looper.GenerationError, Track: -1, Text: text}, true
	}
	return looper.Notification{}, false
}

func intArg(m *gosc.Message, i int) (int, bool) {
	if i >= len(m.Arguments) {
		return 0, false
	}
	switch v := m.Arguments[i].(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func textArg(m *gosc.Message, i int) (string, bool) {
	if i >= len(m.Arguments) {
		return "", false
	}
	s, ok := m.Arguments[i].(string)
	return s, ok
}
