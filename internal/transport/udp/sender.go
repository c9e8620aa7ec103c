// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"beatloop/internal/log"
)

var logger = log.Component("udp")

var ErrClosed = errors.New("udp: sender is closed")

// UDPSender writes datagrams to one fixed target. The OSC notifier and the
// status publisher each own one.
type UDPSender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex // Protects conn during Close
	closed     bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewUDPSender creates a new UDPSender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local bind is needed for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	logger.Infof("sender connected to %s", conn.RemoteAddr())

	return &UDPSender{
		conn:       conn,
		targetAddr: udpAddr,
	}, nil
}

// Target is the resolved destination.
func (s *UDPSender) Target() string { return s.targetAddr.String() }

// Send transmits the given byte slice as a UDP packet.
// It is safe for concurrent use.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	_, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		// nobody listening yields ECONNREFUSED on the next write, keep it quiet
		if s.failed.Add(1) == 1 {
			logger.Warnf("sending to %s failed: %v", s.targetAddr, err)
		}
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	s.sent.Add(1)
	return nil
}

// Stats reports packets sent and failed so far.
func (s *UDPSender) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.conn != nil {
		logger.Infof("closing connection to %s (%d sent, %d failed)",
			s.conn.RemoteAddr(), s.sent.Load(), s.failed.Load())
		err := s.conn.Close()
		s.conn = nil
		if err != nil {
			return fmt.Errorf("failed to close UDP connection: %w", err)
		}
	}
	return nil
}

var _ interface{ Close() error } = (*UDPSender)(nil)
