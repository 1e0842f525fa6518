package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

func TestFake_AfterFunc(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	c.AfterFunc(time.Second, func() { fired++ })

	c.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}

	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}

	c.Advance(time.Hour)
	if fired != 1 {
		t.Errorf("one-shot timer fired %d times, want 1", fired)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFake_Every(t *testing.T) {
	c := NewFake(epoch)
	var at []time.Time
	timer := c.Every(100*time.Millisecond, func() { at = append(at, c.Now()) })

	c.Advance(350 * time.Millisecond)
	if len(at) != 3 {
		t.Fatalf("ticks = %d, want 3", len(at))
	}
	if want := epoch.Add(300 * time.Millisecond); !at[2].Equal(want) {
		t.Errorf("third tick at %v, want %v", at[2], want)
	}

	if !timer.Stop() {
		t.Error("Stop() = false on running ticker, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	c.Advance(time.Second)
	if len(at) != 3 {
		t.Errorf("ticks after Stop = %d, want 3", len(at))
	}
}

func TestFake_OrderAndStopFromCallback(t *testing.T) {
	c := NewFake(epoch)
	var order []string

	var tick Timer
	tick = c.Every(time.Second, func() {
		order = append(order, "tick")
	})
	c.AfterFunc(time.Second, func() {
		order = append(order, "deadline")
		tick.Stop()
	})

	c.Advance(5 * time.Second)

	if len(order) != 2 || order[0] != "tick" || order[1] != "deadline" {
		t.Errorf("order = %v, want [tick deadline]", order)
	}
}

func TestFake_NowAdvances(t *testing.T) {
	c := NewFake(epoch)
	c.Advance(90 * time.Second)
	if got := c.Now().Sub(epoch); got != 90*time.Second {
		t.Errorf("elapsed = %v, want 90s", got)
	}
}
