// Package controller ties tap input and direct tempo edits to a metronome and
// owns its start/stop lifecycle.
package controller

import (
	"fmt"
	"sync"

	"tempolock/internal/eventbus"
	"tempolock/internal/metronome"
	"tempolock/internal/taptempo"
	logx "tempolock/pkg/logx"
)

// Tempo change sources reported in eventbus.TempoChange.
const (
	SourceTap   = "tap"
	SourceNudge = "nudge"
	SourceSet   = "set"
)

type Config struct {
	DefaultTempo float64
	// Taps defaults to taptempo.DefaultConfig when zero.
	Taps taptempo.Config
}

// Controller is the consumer-facing side of the metronome.
//
// Binders registered with Bind run on every Start, right before polling begins,
// so collaborators can re-register the tasks that a restart discards.
type Controller struct {
	met *metronome.Metronome
	log logx.Logger
	bus eventbus.Bus

	// lifeMu serializes Start/Stop so binders and metronome start happen together.
	lifeMu sync.Mutex

	mu      sync.Mutex
	taps    taptempo.History
	tapCfg  taptempo.Config
	binders []func()
}

// New builds a controller and the metronome it owns. opts are passed through
// to metronome.New after the logger and bus.
func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...metronome.Option) (*Controller, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if cfg.Taps == (taptempo.Config{}) {
		cfg.Taps = taptempo.DefaultConfig()
	}
	if err := cfg.Taps.Validate(); err != nil {
		return nil, err
	}
	base := []metronome.Option{
		metronome.WithLogger(log.With(logx.String("comp", "metronome"))),
		metronome.WithBus(bus),
	}
	met, err := metronome.New(cfg.DefaultTempo, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	return &Controller{
		met:    met,
		log:    log.With(logx.String("comp", "controller")),
		bus:    bus,
		tapCfg: cfg.Taps,
	}, nil
}

// Bind registers fn to run on every successful Start, after the clock opened and
// before the first tick. If the metronome is already running fn runs immediately
// as well. fn may Schedule but must not Start or Stop.
func (c *Controller) Bind(fn func()) {
	if fn == nil {
		return
	}
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	c.mu.Lock()
	c.binders = append(c.binders, fn)
	c.mu.Unlock()
	if c.met.Running() {
		fn()
	}
}

// Start (re)starts the metronome, re-anchoring the tick grid to a fresh clock.
func (c *Controller) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	c.mu.Lock()
	binders := append([]func(){}, c.binders...)
	c.mu.Unlock()
	// Binders run only after the clock opened, so a failed start leaves
	// nothing behind for the retry to duplicate.
	return c.met.StartWith(func() {
		for _, fn := range binders {
			fn()
		}
	})
}

// Restart is Start under the name the playback surface uses.
func (c *Controller) Restart() error { return c.Start() }

// Play starts the metronome unless it is already running.
func (c *Controller) Play() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.met.Running() {
		return nil
	}
	return c.startLocked()
}

func (c *Controller) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	c.met.Stop()
}

func (c *Controller) Running() bool { return c.met.Running() }

// Tap records a tap at tMs (milliseconds) and, once two taps are close enough
// together, sets the tempo to the estimate. ok reports whether an estimate was made.
func (c *Controller) Tap(tMs float64) (bpm float64, ok bool, err error) {
	c.mu.Lock()
	c.taps = taptempo.Record(c.taps, tMs, c.tapCfg)
	bpm, ok = taptempo.Estimate(c.taps)
	n := len(c.taps)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("tap recorded", logx.Int("taps", n))
		return 0, false, nil
	}
	if err := c.setTempo(bpm, SourceTap); err != nil {
		return 0, false, err
	}
	return bpm, true, nil
}

// Nudge moves the tempo by delta BPM and rounds to a whole number. Tap history
// is left alone.
func (c *Controller) Nudge(delta float64) (float64, error) {
	bpm := taptempo.Nudge(c.met.Tempo(), delta)
	if err := c.setTempo(bpm, SourceNudge); err != nil {
		return 0, err
	}
	return bpm, nil
}

func (c *Controller) SetTempo(bpm float64) error { return c.setTempo(bpm, SourceSet) }

func (c *Controller) setTempo(bpm float64, source string) error {
	if err := c.met.SetTempo(bpm); err != nil {
		c.log.Warn("tempo rejected", logx.Float64("bpm", bpm), logx.String("source", source), logx.Err(err))
		return err
	}
	c.log.Info("tempo changed", logx.Float64("bpm", bpm), logx.String("source", source))
	c.bus.Publish(eventbus.Event{
		Type: eventbus.TypeTempoChanged,
		Data: eventbus.TempoChange{BPM: bpm, Source: source},
	})
	return nil
}

func (c *Controller) Tempo() float64 { return c.met.Tempo() }

// History returns a copy of the current tap history.
func (c *Controller) History() taptempo.History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(taptempo.History(nil), c.taps...)
}

func (c *Controller) ResetTaps() {
	c.mu.Lock()
	c.taps = nil
	c.mu.Unlock()
}

// SetTapConfig swaps the estimator limits. The current history is trimmed on
// the next tap.
func (c *Controller) SetTapConfig(cfg taptempo.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.tapCfg = cfg
	c.mu.Unlock()
	return nil
}

func (c *Controller) TapConfig() taptempo.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tapCfg
}

func (c *Controller) SetMuted(muted bool) { c.met.SetMuted(muted) }

func (c *Controller) Muted() bool { return c.met.Muted() }

// Schedule passes fn through to the metronome.
func (c *Controller) Schedule(fn func(), repeat bool) { c.met.Schedule(fn, repeat) }

func (c *Controller) Snapshot() metronome.Snapshot { return c.met.Snapshot() }
