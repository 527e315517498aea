package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewManual(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}

	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s elapsed, got %v", got)
	}

	c.AdvanceSeconds(0.25)
	if got := c.Now().Sub(start); got != 1750*time.Millisecond {
		t.Errorf("expected 1.75s elapsed, got %v", got)
	}
}

func TestManualBackwards(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewManual(start)

	c.Advance(-time.Second)
	if !c.Now().Before(start) {
		t.Error("negative advance should move the clock backwards")
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("Set did not take effect: %v", c.Now())
	}
}

func TestSystemMonotonic(t *testing.T) {
	c := System()
	a := c.Now()
	b := c.Now()
	if b.Sub(a) < 0 {
		t.Errorf("system clock went backwards: %v", b.Sub(a))
	}
}
