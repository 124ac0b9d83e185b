package metronome

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tempolock/internal/clock"
	"tempolock/internal/eventbus"
	logx "tempolock/pkg/logx"
)

type Metronome struct {
	// lifeMu serializes Start/Stop. Never held while a task runs.
	lifeMu sync.Mutex

	mu sync.Mutex

	source    clock.Source
	lookahead time.Duration
	pollEvery time.Duration
	log       logx.Logger
	bus       eventbus.Bus
	onTaskErr func(*TaskError)

	tempo float64
	muted bool

	run   *running
	queue []task
	seq   uint64
	epoch uint64
	ticks uint64

	failures   uint64
	suppressed uint64
	failLimit  *rate.Limiter
}

// New returns a stopped metronome at the given tempo.
func New(bpm float64, opts ...Option) (*Metronome, error) {
	if err := ValidateTempo(bpm); err != nil {
		return nil, err
	}
	m := &Metronome{
		source:    clock.System{},
		lookahead: DefaultLookahead,
		pollEvery: DefaultPollInterval,
		bus:       eventbus.Nop(),
		tempo:     bpm,
		muted:     true,
		failLimit: rate.NewLimiter(rate.Limit(failureLogsPerSec), failureLogsPerSec),
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	if err := ValidateTiming(m.lookahead, m.pollEvery); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateTiming checks that polling is fine-grained enough for the lookahead
// window to absorb timer jitter.
func ValidateTiming(lookahead, poll time.Duration) error {
	if lookahead <= 0 || poll <= 0 || poll*3 > lookahead {
		return fmt.Errorf("%w (lookahead=%s poll=%s)", ErrInvalidTiming, lookahead, poll)
	}
	return nil
}

// ValidateTempo accepts tempos in (0, MaxTempo]. NaN and infinities are rejected.
func ValidateTempo(bpm float64) error {
	if !(bpm > 0 && bpm <= MaxTempo) {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
	}
	return nil
}

// Start opens a fresh clock, anchors the next tick to its current time and begins
// polling. A running metronome is stopped first, which discards its tasks.
//
// If the clock cannot be opened the metronome stays stopped and the error wraps
// ErrClockUnavailable.
func (m *Metronome) Start() error { return m.StartWith(nil) }

// StartWith is Start with a prepare hook that runs once the clock is open and
// before the first poll. Tasks it schedules fire from the first tick. prepare is
// not called when the clock fails to open.
func (m *Metronome) StartWith(prepare func()) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	wasRunning := m.run != nil
	m.mu.Unlock()
	if wasRunning {
		m.stopLocked("restart")
	}

	clk, err := m.source.Open()
	if err != nil {
		m.log.Warn("clock open failed", logx.Err(err))
		return fmt.Errorf("%w: %w", ErrClockUnavailable, err)
	}
	if clk == nil {
		return fmt.Errorf("%w: source returned no clock", ErrClockUnavailable)
	}
	if prepare != nil {
		prepare()
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	r := &running{clock: clk, nextTick: clk.Now(), epoch: epoch}
	if c, ok := clk.(Clicker); ok {
		r.clicker = c
	}
	r.stopPoll = clk.Every(m.pollEvery, func() { m.poll(epoch) })
	m.run = r
	anchor, tempo, pending := r.nextTick, m.tempo, len(m.queue)
	m.mu.Unlock()

	m.log.Info("metronome started",
		logx.Float64("anchor", anchor),
		logx.Float64("bpm", tempo),
		logx.Int("pending", pending),
		logx.Duration("poll", m.pollEvery),
		logx.Duration("lookahead", m.lookahead),
	)
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeStarted, Data: tempo})
	return nil
}

// Stop cancels polling, releases the clock and discards every pending task.
// Once it returns no task starts, even one that was already due.
func (m *Metronome) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	m.stopLocked("stop")
}

func (m *Metronome) stopLocked(reason string) {
	m.mu.Lock()
	r := m.run
	m.run = nil
	m.epoch++
	dropped := len(m.queue)
	m.queue = nil
	m.mu.Unlock()

	if r == nil {
		return
	}
	if r.stopPoll != nil {
		r.stopPoll()
	}
	if err := r.clock.Close(); err != nil {
		m.log.Warn("clock close failed", logx.Err(err))
	}
	m.log.Info("metronome stopped", logx.String("reason", reason), logx.Int("dropped", dropped))
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeStopped, Data: reason})
}

// SetTempo changes the interval used for ticks computed from now on. Ticks whose
// time is already fixed keep it. Invalid values are rejected and the previous
// tempo is kept.
func (m *Metronome) SetTempo(bpm float64) error {
	if err := ValidateTempo(bpm); err != nil {
		return err
	}
	m.mu.Lock()
	prev := m.tempo
	m.tempo = bpm
	m.mu.Unlock()
	if prev != bpm {
		m.log.Debug("tempo set", logx.Float64("bpm", bpm), logx.Float64("prev", prev))
	}
	return nil
}

// Tempo returns the current tempo in BPM.
func (m *Metronome) Tempo() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tempo
}

// Schedule queues fn for the next tick. A repeating task fires on every tick until
// Stop; a one-shot task fires once. Safe to call from inside a task.
func (m *Metronome) Schedule(fn func(), repeat bool) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.seq++
	m.queue = append(m.queue, task{seq: m.seq, fn: fn, repeat: repeat})
	m.mu.Unlock()
}

// SetMuted toggles the audible click. Tasks and tick events are unaffected.
func (m *Metronome) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports whether clicks are suppressed.
func (m *Metronome) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Running reports whether a clock is open and polling.
func (m *Metronome) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil
}

// Pending returns the number of queued tasks.
func (m *Metronome) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Snapshot returns a point-in-time copy of the metronome state for diagnostics.
func (m *Metronome) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Running:      m.run != nil,
		Tempo:        m.tempo,
		Muted:        m.muted,
		Pending:      len(m.queue),
		Ticks:        m.ticks,
		TaskFailures: m.failures,
		Lookahead:    m.lookahead,
		PollInterval: m.pollEvery,
	}
	if m.run != nil {
		s.NextTick = m.run.nextTick
	}
	return s
}
