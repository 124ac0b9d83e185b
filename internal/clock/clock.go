// Package clock provides the time sources the metronome runs on.
//
// A Clock is acquired with Source.Open when the metronome starts and released with
// Close when it stops; nothing holds a Clock across a stop/start boundary. Time is
// reported as fractional seconds since the clock was opened (or since the Manual
// clock was created), and the same Clock drives the metronome's poll loop through
// Every, so tests can swap in Manual and step time deterministically.
package clock

import (
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned (possibly wrapped) when a Source cannot produce a Clock.
var ErrUnavailable = errors.New("clock unavailable")

type Clock interface {
	// Now returns the current time in seconds.
	Now() float64
	// Every calls fn every d until the returned stop func is called or the clock is closed.
	// On a closed clock it registers nothing and returns a no-op stop.
	// Calls for one registration never overlap.
	Every(d time.Duration, fn func()) (stop func())
	Close() error
}

type Source interface {
	Open() (Clock, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() (Clock, error)

func (f SourceFunc) Open() (Clock, error) { return f() }

// System is the monotonic wall clock.
type System struct{}

func (System) Open() (Clock, error) {
	return &systemClock{start: time.Now(), pollers: map[int]func(){}}, nil
}

type systemClock struct {
	start time.Time

	mu      sync.Mutex
	closed  bool
	nextID  int
	pollers map[int]func()
}

func (c *systemClock) Now() float64 {
	// time.Since uses the monotonic reading embedded in start.
	return time.Since(c.start).Seconds()
}

func (c *systemClock) Every(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || d <= 0 || fn == nil {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	id := c.nextID
	c.nextID++
	stop := func() {
		once.Do(func() {
			close(done)
			c.mu.Lock()
			delete(c.pollers, id)
			c.mu.Unlock()
		})
	}
	c.pollers[id] = func() { once.Do(func() { close(done) }) }

	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// A stop that raced the tick wins.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return stop
}

func (c *systemClock) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stops := make([]func(), 0, len(c.pollers))
	for _, s := range c.pollers {
		stops = append(stops, s)
	}
	c.pollers = map[int]func(){}
	c.mu.Unlock()

	for _, s := range stops {
		s()
	}
	return nil
}
