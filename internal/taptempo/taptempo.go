// Package taptempo turns a run of tap timestamps into a tempo.
//
// Everything here is a pure function over a History value owned by the caller;
// the package keeps no state of its own.
package taptempo

import (
	"errors"
	"math"
)

const (
	DefaultMaxTaps  = 6
	DefaultMaxGapMs = 2000.0
)

var ErrInvalidConfig = errors.New("taptempo: invalid config")

type Config struct {
	// MaxTaps bounds the history length (>= 2).
	MaxTaps int
	// MaxGapMs resets the history when the gap since the previous tap is larger.
	MaxGapMs float64
}

func DefaultConfig() Config {
	return Config{MaxTaps: DefaultMaxTaps, MaxGapMs: DefaultMaxGapMs}
}

func (c Config) Validate() error {
	if c.MaxTaps < 2 {
		return errors.Join(ErrInvalidConfig, errors.New("max_taps must be >= 2"))
	}
	if !(c.MaxGapMs > 0) || math.IsInf(c.MaxGapMs, 0) {
		return errors.Join(ErrInvalidConfig, errors.New("max_gap must be > 0"))
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxTaps < 2 {
		c.MaxTaps = DefaultMaxTaps
	}
	if !(c.MaxGapMs > 0) {
		c.MaxGapMs = DefaultMaxGapMs
	}
	return c
}

// History is an ordered run of tap timestamps in milliseconds, oldest first.
type History []float64

// Last returns the most recent tap.
func (h History) Last() (float64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[len(h)-1], true
}

// Record returns the history after a tap at t.
//
// An empty history, or a gap larger than cfg.MaxGapMs, starts a new run [t].
// Otherwise t is appended and only the newest cfg.MaxTaps entries are kept.
// The input slice is never modified.
func Record(h History, t float64, cfg Config) History {
	cfg = cfg.withDefaults()
	last, ok := h.Last()
	if !ok || t-last > cfg.MaxGapMs {
		return History{t}
	}

	keep := h
	if len(keep) >= cfg.MaxTaps {
		keep = keep[len(keep)-cfg.MaxTaps+1:]
	}
	out := make(History, 0, len(keep)+1)
	out = append(out, keep...)
	return append(out, t)
}

// Estimate returns 60000 / mean inter-tap interval. ok is false until there are
// at least two taps, or when the taps do not move forward in time.
func Estimate(h History) (bpm float64, ok bool) {
	if len(h) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(h); i++ {
		sum += h[i] - h[i-1]
	}
	mean := sum / float64(len(h)-1)
	if !(mean > 0) {
		return 0, false
	}
	return 60000 / mean, true
}

// Nudge moves bpm by delta and rounds to a whole BPM, the way the +/- buttons work.
// It never returns less than 1.
func Nudge(bpm, delta float64) float64 {
	return math.Max(1, math.Round(bpm+delta))
}
