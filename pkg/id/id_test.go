package id

import (
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock(ms *atomic.Int64) Option {
	return WithClock(func() int64 { return ms.Load() })
}

func TestOrderingMonotonic(t *testing.T) {
	var now atomic.Int64
	now.Store(1000)
	g := NewGenerator(fixedClock(&now))

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
	if a.Time().UnixMilli() != 1000 || b.Seq() != 1 {
		t.Fatalf("unexpected layout: %s %s", a, b)
	}
}

func TestClockRegressionGuard(t *testing.T) {
	var now atomic.Int64
	now.Store(1000)
	g := NewGenerator(fixedClock(&now))

	a := g.Next() // uses 1000
	now.Store(900)
	b := g.Next() // should still be > a
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
}

func TestSequenceOverflowWaitsNextMs(t *testing.T) {
	var now atomic.Int64
	now.Store(2000)
	g := NewGenerator(fixedClock(&now))
	g.lastMs = 2000
	g.sequence = ^uint64(0) - 1

	_ = g.Next() // seq becomes MaxUint64

	done := make(chan ID)
	go func() { done <- g.Next() }()
	time.AfterFunc(10*time.Millisecond, func() { now.Store(2001) })

	select {
	case i := <-done:
		if i.Time().UnixMilli() != 2001 || i.Seq() != 0 {
			t.Fatalf("expected reset at next ms, got %s", i)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for overflow handling")
	}
}

func TestAdvance(t *testing.T) {
	var now atomic.Int64
	now.Store(500)
	prev := NewGenerator(WithClock(func() int64 { return 5000 }))
	last := prev.Next()

	g := NewGenerator(fixedClock(&now))
	g.Advance(last)
	if next := g.Next(); next.Compare(last) <= 0 {
		t.Fatalf("expected %s > %s after Advance", next, last)
	}
	// an older ID never moves the generator back
	g.Advance(Zero)
	if next := g.Next(); next.Time().UnixMilli() != 5000 {
		t.Fatalf("Advance went backwards: %s", next)
	}
}

func TestParseRoundTrip(t *testing.T) {
	i := NewGenerator().Next()
	got, err := Parse(i.String())
	if err != nil || got != i {
		t.Fatalf("parse %s: %v %v", i, got, err)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected hex error")
	}
	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}
