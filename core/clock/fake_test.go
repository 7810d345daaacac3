package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewFake(start)
	var got []string
	c.AfterFunc(2*time.Hour, func() { got = append(got, "b") })
	c.AfterFunc(time.Hour, func() { got = append(got, "a") })
	late := c.AfterFunc(5*time.Hour, func() { got = append(got, "late") })

	c.Advance(3 * time.Hour)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected order %v", got)
	}
	if !c.Now().Equal(start.Add(3 * time.Hour)) {
		t.Fatalf("clock not advanced: %v", c.Now())
	}
	if !late.Stop() {
		t.Fatal("expected pending timer to stop")
	}
	c.Advance(10 * time.Hour)
	if len(got) != 2 {
		t.Fatalf("stopped timer fired: %v", got)
	}
}

func TestFakeNowInsideCallback(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)
	var seen time.Time
	c.AfterFunc(90*time.Minute, func() { seen = c.Now() })
	c.Advance(24 * time.Hour)
	if !seen.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("callback saw %v", seen)
	}
}

func TestFakeRearmFromCallback(t *testing.T) {
	c := NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	n := 0
	var tick func()
	tick = func() {
		n++
		c.AfterFunc(time.Hour, tick)
	}
	c.AfterFunc(time.Hour, tick)
	c.Advance(5 * time.Hour)
	if n != 5 {
		t.Fatalf("expected 5 ticks got %d", n)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected one armed timer, got %d", c.Pending())
	}
}
