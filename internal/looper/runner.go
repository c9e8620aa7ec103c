// SPDX-License-Identifier: MIT
package looper

import (
	"context"
	"sync/atomic"
)

type request struct {
	cmd   Command
	reply chan error
}

// block is a pooled input buffer. gap counts the samples dropped right
// before it.
type block struct {
	samples []float32
	gap     int64
}

// Runner owns a Looper on a single goroutine. Audio, control commands and
// inbound notifications reach it over channels, so the audio callback never
// waits on the looper.
type Runner struct {
	looper    *Looper
	input     chan block
	free      chan []float32
	commands  chan request
	inbound   chan Notification
	snapshots chan chan Snapshot
	dropped   atomic.Uint64
	gap       int64 // owned by Feed
}

// NewRunner preallocates depth buffers of bufferFrames samples.
func NewRunner(l *Looper, bufferFrames, depth int) *Runner {
	depth = max(depth, 1)
	bufferFrames = max(bufferFrames, 1)
	r := &Runner{
		looper:    l,
		input:     make(chan block, depth),
		free:      make(chan []float32, depth),
		commands:  make(chan request, 16),
		inbound:   make(chan Notification, 16),
		snapshots: make(chan chan Snapshot),
	}
	for range depth {
		r.free <- make([]float32, 0, bufferFrames)
	}
	return r
}

// Feed copies samples into a pooled buffer and queues it. It never blocks
// or allocates; when the looper falls behind the rest of the block is
// dropped and counted, and the next queued buffer carries the gap so the
// clock still covers it. Safe to call from the audio callback, one caller
// at a time.
func (r *Runner) Feed(samples []float32) bool {
	for len(samples) > 0 {
		var buf []float32
		select {
		case buf = <-r.free:
		default:
			r.drop(len(samples))
			return false
		}
		n := min(len(samples), cap(buf))
		buf = append(buf[:0], samples[:n]...)
		select {
		case r.input <- block{samples: buf, gap: r.gap}:
			r.gap = 0
			samples = samples[n:]
		default:
			r.free <- buf
			r.drop(len(samples))
			return false
		}
	}
	return true
}

func (r *Runner) drop(samples int) {
	r.gap += int64(samples)
	r.dropped.Add(1)
}

// Dropped is the number of input blocks discarded so far.
func (r *Runner) Dropped() uint64 { return r.dropped.Load() }

// Submit hands cmd to the looper and waits for its result.
func (r *Runner) Submit(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case r.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver queues an inbound notification, dropping it when the queue is full.
func (r *Runner) Deliver(n Notification) bool {
	select {
	case r.inbound <- n:
		return true
	default:
		logger.Warnf("inbound notification dropped, queue full")
		return false
	}
}

// Snapshot asks the looper goroutine for a copy of its state.
func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case r.snapshots <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run drives the looper until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	logger.Infof("runner started")
	defer logger.Infof("runner stopped, %d input blocks dropped", r.Dropped())
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-r.input:
			if b.gap > 0 {
				r.looper.Skip(b.gap)
			}
			r.looper.Process(b.samples)
			r.free <- b.samples
		case req := <-r.commands:
			err := r.looper.Apply(req.cmd)
			if err != nil {
				r.looper.diagnostic(req.cmd.Track, "command "+req.cmd.String()+" failed: "+err.Error())
			}
			req.reply <- err
		case n := <-r.inbound:
			r.looper.HandleInbound(n)
		case reply := <-r.snapshots:
			reply <- r.looper.Snapshot()
		}
	}
}
