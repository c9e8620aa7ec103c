// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"beatloop/internal/looper"
)

// Sender transmits one datagram. *UDPSender satisfies it.
type Sender interface {
	Send(data []byte) error
}

// SnapshotSource supplies looper state. *looper.Runner satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (looper.Snapshot, error)
}

// StatusPublisher periodically snapshots the looper, packs the snapshot into
// the binary status format and sends it over UDP. It runs in a separate
// goroutine managed by Start and Stop.
type StatusPublisher struct {
	sender   Sender
	source   SnapshotSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	sequenceNum uint32

	packetBuffer *bytes.Buffer // Reused for every packet
}

// NewStatusPublisher creates a publisher. If the interval is invalid (<= 0),
// it defaults to 33ms (~30Hz).
func NewStatusPublisher(interval time.Duration, sender Sender, source SnapshotSource) (*StatusPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("status publisher: sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("status publisher: snapshot source cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		logger.Warnf("invalid status interval, defaulting to %s", interval)
	}

	logger.Infof("status publisher initialized (interval %s)", interval)
	return &StatusPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process.
// Subsequent calls are no-ops while running.
func (p *StatusPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("status publisher already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish(doneChan)
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *StatusPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	logger.Debugf("status publisher stopped after %d packets", p.sequenceNum)
	return nil
}

func (p *StatusPublisher) publish(done <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		logger.Debugf("snapshot unavailable: %v", err)
		return
	}

	p.sequenceNum++
	p.packetBuffer.Reset()
	if err := EncodeStatus(p.packetBuffer, p.sequenceNum, time.Now(), snap); err != nil {
		logger.Errorf("error packing status packet: %v", err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		logger.Debugf("sent status packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close stops the publisher goroutine.
func (p *StatusPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*StatusPublisher)(nil)

/*
Status Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Virtual Time      | int64          | 8            | Looper clock in samples |
| Reference         | float32        | 4            | Master loop seconds     |
| Track Count       | uint16         | 2            | Number of tracks (N)    |
| Tracks            | []trackRecord  | N * 20       | See below               |
+-----------------------------------------------------------------------------+

Track record:

|<- 1 ->|<- 1 ->|<- 1 ->|<- 1 ->|<--- 4 --->|<--- 4 --->|<--- 4 --->|<--- 4 --->|
+-------+-------+-------+-------+-----------+-----------+-----------+-----------+
|  ID   | State | Flags | Pend. |  Session  |  Length   | Position  |   Hits    |
| uint8 | uint8 | uint8 | uint8 |  uint32   |  float32  |  float32  |  uint32   |
+-------+-------+-------+-------+-----------+-----------+-----------+-----------+

State: 0 idle, 1 waiting, 2 recording. Flags: bit 0 playing, bit 1 has
variation, bit 2 on variation. Pend.: 0 none, 1 + pending action kind.
*/

const (
	headerSize = 4 + 8 + 8 + 4 + 2
	recordSize = 20
)

// Track flags.
const (
	FlagPlaying uint8 = 1 << iota
	FlagHasVariation
	FlagOnVariation
)

var ErrShortPacket = errors.New("udp: short status packet")

type header struct {
	Sequence  uint32
	Timestamp int64
	Time      int64
	Reference float32
	Tracks    uint16
}

// TrackStatus is one decoded track record.
type TrackStatus struct {
	ID       uint8
	State    uint8
	Flags    uint8
	Pending  uint8
	Session  uint32
	Length   float32
	Position float32
	Hits     uint32
}

// Status is a decoded packet.
type Status struct {
	Sequence  uint32
	Timestamp time.Time
	Time      int64
	Reference float32
	Tracks    []TrackStatus
}

var stateCodes = map[string]uint8{"idle": 0, "waiting": 1, "recording": 2}

var pendingCodes = map[string]uint8{"": 0, "clear": 1, "load": 2, "toggle": 3, "regenerate": 4}

// EncodeStatus writes one status packet for snap.
func EncodeStatus(w io.Writer, seq uint32, now time.Time, snap looper.Snapshot) error {
	h := header{
		Sequence:  seq,
		Timestamp: now.UnixNano(),
		Time:      snap.Time,
		Reference: float32(snap.Reference),
		Tracks:    uint16(len(snap.Tracks)),
	}
	if err := binary.Write(w, binary.BigEndian, h); err != nil {
		return err
	}
	for _, t := range snap.Tracks {
		var flags uint8
		if t.Playing {
			flags |= FlagPlaying
		}
		if t.HasVariation {
			flags |= FlagHasVariation
		}
		if t.OnVariation {
			flags |= FlagOnVariation
		}
		rec := TrackStatus{
			ID:       uint8(t.ID),
			State:    stateCodes[t.State],
			Flags:    flags,
			Pending:  pendingCodes[t.Pending],
			Session:  uint32(t.Session),
			Length:   float32(t.Length),
			Position: float32(t.Position),
			Hits:     uint32(t.Hits),
		}
		if err := binary.Write(w, binary.BigEndian, rec); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStatus parses a packet produced by EncodeStatus.
func DecodeStatus(packet []byte) (Status, error) {
	if len(packet) < headerSize {
		return Status{}, ErrShortPacket
	}
	r := bytes.NewReader(packet)
	var h header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Status{}, err
	}
	if len(packet) < headerSize+int(h.Tracks)*recordSize {
		return Status{}, ErrShortPacket
	}
	s := Status{
		Sequence:  h.Sequence,
		Timestamp: time.Unix(0, h.Timestamp),
		Time:      h.Time,
		Reference: h.Reference,
		Tracks:    make([]TrackStatus, h.Tracks),
	}
	if err := binary.Read(r, binary.BigEndian, s.Tracks); err != nil {
		return Status{}, err
	}
	return s, nil
}
