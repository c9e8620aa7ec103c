// SPDX-License-Identifier: MIT
//
// Package sched is a deterministic virtual-time event queue. Time is counted
// in samples and only moves when the owner calls AdvanceTo, so playback never
// depends on OS timers.
package sched

import "container/heap"

// Func runs at its scheduled time, now is that time.
type Func func(now int64)

type event struct {
	at  int64
	seq uint64
	fn  Func
}

type queue []event

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(event)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = event{}
	*q = old[:n-1]
	return ev
}

// Scheduler runs callbacks in (time, insertion) order. It is owned by a
// single goroutine.
type Scheduler struct {
	now int64
	seq uint64
	q   queue
}

// New returns a scheduler at time zero.
func New() *Scheduler { return &Scheduler{} }

// Now is the current virtual time.
func (s *Scheduler) Now() int64 { return s.now }

// At schedules fn at time t. Times in the past run at the next advance.
func (s *Scheduler) At(t int64, fn Func) {
	if t < s.now {
		t = s.now
	}
	s.seq++
	heap.Push(&s.q, event{at: t, seq: s.seq, fn: fn})
}

// After schedules fn d samples from now.
func (s *Scheduler) After(d int64, fn Func) { s.At(s.now+d, fn) }

// AdvanceTo runs every event due at or before t, including events scheduled
// by callbacks along the way, then sets the clock to t. It returns the number
// of callbacks run.
func (s *Scheduler) AdvanceTo(t int64) int {
	ran := 0
	for len(s.q) > 0 && s.q[0].at <= t {
		ev := heap.Pop(&s.q).(event)
		s.now = ev.at
		ev.fn(ev.at)
		ran++
	}
	if t > s.now {
		s.now = t
	}
	return ran
}

// Next reports the time of the earliest pending event.
func (s *Scheduler) Next() (int64, bool) {
	if len(s.q) == 0 {
		return 0, false
	}
	return s.q[0].at, true
}

// Pending is the number of queued events.
func (s *Scheduler) Pending() int { return len(s.q) }

// Reset drops every pending event and rewinds the clock to zero.
func (s *Scheduler) Reset() {
	clear(s.q)
	s.q = s.q[:0]
	s.now = 0
	s.seq = 0
}
