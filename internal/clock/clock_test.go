package clock

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualAdvanceFiresPollersInOrder(t *testing.T) {
	m := NewManual()
	c, err := m.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var got []float64
	c.Every(25*time.Millisecond, func() { got = append(got, c.Now()) })

	m.Advance(100 * time.Millisecond)

	want := []float64{0.025, 0.05, 0.075, 0.1}
	if len(got) != len(want) {
		t.Fatalf("polls = %v, want %v", got, want)
	}
	for i := range want {
		if diff := got[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("poll %d at %v, want %v", i, got[i], want[i])
		}
	}
	if m.Elapsed() != 100*time.Millisecond {
		t.Fatalf("elapsed = %v", m.Elapsed())
	}
}

func TestManualInterleavesPollers(t *testing.T) {
	m := NewManual()
	c, _ := m.Open()
	var order []string
	c.Every(30*time.Millisecond, func() { order = append(order, "slow") })
	c.Every(20*time.Millisecond, func() { order = append(order, "fast") })

	m.Advance(60 * time.Millisecond)

	// 20 fast, 30 slow, 40 fast, 60 slow (registered first), 60 fast
	want := []string{"fast", "slow", "fast", "slow", "fast"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestManualStopAndClose(t *testing.T) {
	m := NewManual()
	c1, _ := m.Open()
	c2, _ := m.Open()
	var n1, n2 int
	stop := c1.Every(10*time.Millisecond, func() { n1++ })
	c2.Every(10*time.Millisecond, func() { n2++ })

	m.Advance(20 * time.Millisecond)
	stop()
	m.Advance(20 * time.Millisecond)
	if n1 != 2 {
		t.Fatalf("stopped poller fired %d times, want 2", n1)
	}

	_ = c2.Close()
	m.Advance(20 * time.Millisecond)
	if n2 != 4 {
		t.Fatalf("closed handle poller fired %d times, want 4", n2)
	}
	if m.Pollers() != 0 {
		t.Fatalf("pollers = %d, want 0", m.Pollers())
	}
	if m.Opens() != 2 {
		t.Fatalf("opens = %d, want 2", m.Opens())
	}
}

func TestManualPollerCanStopItself(t *testing.T) {
	m := NewManual()
	c, _ := m.Open()
	var n int
	var stop func()
	stop = c.Every(10*time.Millisecond, func() {
		n++
		stop()
	})
	m.Advance(100 * time.Millisecond)
	if n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
}

func TestManualFailOpen(t *testing.T) {
	m := NewManual()
	boom := errors.New("no audio device")
	m.FailOpen(boom)
	if _, err := m.Open(); !errors.Is(err, boom) {
		t.Fatalf("Open err = %v, want %v", err, boom)
	}
	m.FailOpen(nil)
	if _, err := m.Open(); err != nil {
		t.Fatalf("Open after clear: %v", err)
	}
}

func TestSystemClockMonotonicAndPolls(t *testing.T) {
	c, err := System{}.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	a := c.Now()
	var polls atomic.Int32
	c.Every(2*time.Millisecond, func() { polls.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for polls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls.Load())
	}
	if b := c.Now(); b <= a {
		t.Fatalf("clock did not advance: %v -> %v", a, b)
	}

	_ = c.Close()
	time.Sleep(10 * time.Millisecond)
	before := polls.Load()
	time.Sleep(20 * time.Millisecond)
	if after := polls.Load(); after != before {
		t.Fatalf("polls continued after Close: %d -> %d", before, after)
	}
}
