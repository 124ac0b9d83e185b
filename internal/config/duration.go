package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault parses a Go duration string. Empty or zero values
// yield def; negative values are rejected. field names the key in errors.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Timing resolves lookahead and poll interval, falling back to the given defaults.
func (m MetronomeConfig) Timing(defLookahead, defPoll time.Duration) (lookahead, poll time.Duration, err error) {
	if lookahead, err = ParseDurationOrDefault("metronome.lookahead", m.Lookahead, defLookahead); err != nil {
		return 0, 0, err
	}
	if poll, err = ParseDurationOrDefault("metronome.poll_interval", m.PollInterval, defPoll); err != nil {
		return 0, 0, err
	}
	return lookahead, poll, nil
}

// GapMs returns max_gap in milliseconds, or def when unset.
func (t TapsConfig) GapMs(def float64) (float64, error) {
	d, err := ParseDurationOrDefault("taps.max_gap", t.MaxGap, 0)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return float64(d) / float64(time.Millisecond), nil
}

// MaxDurationOrDefault resolves audio.max_duration.
func (a AudioConfig) MaxDurationOrDefault(def time.Duration) (time.Duration, error) {
	return ParseDurationOrDefault("audio.max_duration", a.MaxDuration, def)
}
