// SPDX-License-Identifier: MIT
package sched

import (
	"slices"
	"testing"
)

func TestOrderByTimeThenInsertion(t *testing.T) {
	s := New()
	var got []string
	add := func(at int64, name string) {
		s.At(at, func(int64) { got = append(got, name) })
	}
	add(30, "c")
	add(10, "a1")
	add(20, "b")
	add(10, "a2")
	add(10, "a3")

	if n := s.AdvanceTo(25); n != 4 {
		t.Fatalf("ran %d events, want 4", n)
	}
	if want := []string{"a1", "a2", "a3", "b"}; !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if s.Now() != 25 {
		t.Errorf("Now() = %d, want 25", s.Now())
	}
	if next, ok := s.Next(); !ok || next != 30 || s.Pending() != 1 {
		t.Errorf("Next() = %d, %v, pending %d", next, ok, s.Pending())
	}
}

func TestCallbacksCanReschedule(t *testing.T) {
	s := New()
	var fired []int64
	var tick Func
	tick = func(now int64) {
		fired = append(fired, now)
		s.At(now+100, tick)
	}
	s.At(0, tick)
	s.AdvanceTo(1000)
	if len(fired) != 11 {
		t.Fatalf("fired %d times, want 11: %v", len(fired), fired)
	}
	for i, at := range fired {
		if at != int64(i)*100 {
			t.Fatalf("tick %d at %d, want %d", i, at, i*100)
		}
	}
}

func TestPastEventsRunNow(t *testing.T) {
	s := New()
	s.AdvanceTo(500)
	var at int64 = -1
	s.At(100, func(now int64) { at = now })
	s.After(0, func(int64) {})
	s.AdvanceTo(500)
	if at != 500 {
		t.Errorf("past event ran at %d, want 500", at)
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d", s.Pending())
	}
}

func TestClockNeverRunsBackwards(t *testing.T) {
	s := New()
	s.AdvanceTo(100)
	s.AdvanceTo(50)
	if s.Now() != 100 {
		t.Errorf("Now() = %d, want 100", s.Now())
	}
	s.At(200, func(int64) {})
	s.Reset()
	if s.Now() != 0 || s.Pending() != 0 {
		t.Error("Reset must clear the queue and the clock")
	}
}
