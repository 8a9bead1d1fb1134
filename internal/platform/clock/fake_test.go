package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresInOrder(t *testing.T) {
	c := Fake(epoch)

	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })

	c.Advance(1500 * time.Millisecond)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("after 1.5s order = %v, want [a]", order)
	}

	c.Advance(time.Second)
	if len(order) != 2 || order[1] != "b" {
		t.Fatalf("after 2.5s order = %v, want [a b]", order)
	}

	if got := c.Now(); !got.Equal(epoch.Add(2500 * time.Millisecond)) {
		t.Fatalf("Now = %v", got)
	}
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatalf("Stop on pending timer returned false")
	}
	if timer.Stop() {
		t.Fatalf("second Stop returned true")
	}

	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
	if n := c.PendingTimers(); n != 0 {
		t.Fatalf("pending timers = %d, want 0", n)
	}
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	c.Advance(50 * time.Millisecond)

	select {
	case <-ticker.C:
	default:
		t.Fatalf("expected a tick")
	}

	select {
	case <-ticker.C:
		t.Fatalf("ticks should not queue")
	default:
	}
}

func TestFakeAfter(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Second)

	c.WaitForTimers(1)
	c.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatalf("fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatalf("did not fire at deadline")
	}
}
