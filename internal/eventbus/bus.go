// Package eventbus is a small in-memory fanout used to decouple the metronome
// from whoever wants to observe it (display, playback, logging).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by tempolock components.
const (
	TypeTick         = "metronome.tick"
	TypeTaskFailed   = "metronome.task_failed"
	TypeStarted      = "metronome.started"
	TypeStopped      = "metronome.stopped"
	TypeTempoChanged = "tempo.changed"
	TypePlaybackRate = "playback.rate"
)

// Event is a lightweight in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Tick is the Data of a TypeTick event.
type Tick struct {
	At    float64 // virtual tick time, clock seconds
	Tempo float64
	Seq   uint64
}

// TempoChange is the Data of a TypeTempoChanged event.
type TempoChange struct {
	BPM    float64
	Source string // "tap", "nudge", "set"
}

// PlaybackRate is the Data of a TypePlaybackRate event.
type PlaybackRate struct {
	Clip string
	Rate float64
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop returns a bus that discards everything.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}
func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber is behind; drop
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// Holding the write lock means no Publish is mid-send on ch.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
