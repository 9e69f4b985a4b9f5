package id

import (
	"testing"
	"time"
)

func TestOrderingMonotonic(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 1000 }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
}

func TestClockRegressionGuard(t *testing.T) {
	g := NewGenerator()
	seq := int64(1000)
	NowMs = func() int64 { return seq }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next() // uses 1000
	seq = 900     // clock went backwards
	b := g.Next() // should still be >= a
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
	if b.Time().UnixMilli() != 1000 {
		t.Fatalf("expected regressed id to reuse last ms, got %d", b.Time().UnixMilli())
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	b, err := Parse(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a != b {
		t.Fatalf("round trip mismatch: %s vs %s", a, b)
	}
	if _, err := Parse("not-an-id"); err == nil {
		t.Fatalf("expected parse error")
	}
	if !Zero.IsZero() || a.IsZero() {
		t.Fatalf("IsZero mismatch")
	}
}

func TestSameMillisecondStaysOrdered(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 5000 }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if prev.Compare(next) >= 0 {
			t.Fatalf("id %d not increasing: %s then %s", i, prev, next)
		}
		if next.Time().UnixMilli() != 5000 {
			t.Fatalf("id left the millisecond: %d", next.Time().UnixMilli())
		}
		prev = next
	}
}
