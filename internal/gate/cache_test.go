package gate

import (
	"testing"
	"time"
)

func TestVerdictCache_TTL(t *testing.T) {
	c := newVerdictCache(time.Minute)
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

	c.set("u1", CheckDevice, blocked(ReasonNoActiveDevice), now)

	if e, ok := c.get("u1", CheckDevice, now.Add(30*time.Second)); !ok {
		t.Fatal("want hit inside TTL")
	} else if e.verdict.Reason != ReasonNoActiveDevice {
		t.Fatalf("wrong verdict: %+v", e.verdict)
	}

	if _, ok := c.get("u1", CheckDevice, now.Add(2*time.Minute)); ok {
		t.Fatal("want miss after TTL")
	}
}

func TestVerdictCache_AnchorSurvivesReads(t *testing.T) {
	c := newVerdictCache(time.Hour)
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	anchor := now.Add(-23 * time.Hour)

	c.setAnchored("u1", CheckBackfill, anchor, now)

	e, ok := c.get("u1", CheckBackfill, now)
	if !ok || e.anchor == nil {
		t.Fatal("want anchored entry")
	}
	if !e.anchor.Equal(anchor) {
		t.Fatalf("anchor mutated: want %v got %v", anchor, *e.anchor)
	}
}

func TestVerdictCache_InvalidateClearsAllKinds(t *testing.T) {
	c := newVerdictCache(time.Hour)
	now := time.Now()

	c.set("u1", CheckDevice, eligible, now)
	c.set("u1", CheckBaseline, eligible, now)
	c.set("u2", CheckDevice, eligible, now)

	c.invalidate("u1")

	if _, ok := c.get("u1", CheckDevice, now); ok {
		t.Fatal("u1 device verdict should be gone")
	}
	if _, ok := c.get("u1", CheckBaseline, now); ok {
		t.Fatal("u1 baseline verdict should be gone")
	}
	if _, ok := c.get("u2", CheckDevice, now); ok == false {
		t.Fatal("u2 must be untouched")
	}
}
