package metronome

import (
	"time"

	"tempolock/internal/clock"
	"tempolock/internal/eventbus"
	logx "tempolock/pkg/logx"
)

const (
	DefaultLookahead    = 100 * time.Millisecond
	DefaultPollInterval = 25 * time.Millisecond

	// MaxTempo keeps the tick interval at 10ms or more.
	MaxTempo = 6000.0

	// failure logs are capped per second; the rest are counted and summarized.
	failureLogsPerSec = 4
)

// Clicker is implemented by clocks that can sound a tick at an exact time.
type Clicker interface {
	Click(at float64)
}

type Option func(*Metronome)

// WithMuted sets the initial muted flag. Metronomes start muted by default.
func WithMuted(muted bool) Option { return func(m *Metronome) { m.muted = muted } }

// WithClock sets the clock source opened on every Start. Default: clock.System.
func WithClock(src clock.Source) Option {
	return func(m *Metronome) {
		if src != nil {
			m.source = src
		}
	}
}

func WithLookahead(d time.Duration) Option { return func(m *Metronome) { m.lookahead = d } }

func WithPollInterval(d time.Duration) Option { return func(m *Metronome) { m.pollEvery = d } }

func WithLogger(log logx.Logger) Option { return func(m *Metronome) { m.log = log } }

func WithBus(bus eventbus.Bus) Option {
	return func(m *Metronome) {
		if bus != nil {
			m.bus = bus
		}
	}
}

// WithTaskErrorHandler installs a hook called for every task that panics.
// It runs on the poll goroutine; keep it short.
func WithTaskErrorHandler(fn func(*TaskError)) Option {
	return func(m *Metronome) { m.onTaskErr = fn }
}

type task struct {
	seq    uint64
	fn     func()
	repeat bool
}

// running is the state of a started metronome. A nil *running means Stopped.
type running struct {
	clock    clock.Clock
	clicker  Clicker
	stopPoll func()
	nextTick float64
	epoch    uint64
}

// Snapshot is a point-in-time view for diagnostics and tests.
type Snapshot struct {
	Running      bool
	Tempo        float64
	Muted        bool
	NextTick     float64
	Pending      int
	Ticks        uint64
	TaskFailures uint64
	Lookahead    time.Duration
	PollInterval time.Duration
}
