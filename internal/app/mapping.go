package app

import (
	"fmt"
	"strings"
	"time"

	"tempolock/internal/audio"
	"tempolock/internal/config"
	"tempolock/internal/metronome"
	"tempolock/internal/playback"
	"tempolock/internal/taptempo"
	logx "tempolock/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// timing holds the metronome settings that need a restart to change.
type timing struct {
	tempo     float64
	muted     bool
	lookahead time.Duration
	poll      time.Duration
}

func mapTiming(cfg *config.Config) (timing, error) {
	look, poll, err := cfg.Metronome.Timing(metronome.DefaultLookahead, metronome.DefaultPollInterval)
	if err != nil {
		return timing{}, err
	}
	if err := metronome.ValidateTiming(look, poll); err != nil {
		return timing{}, fmt.Errorf("metronome: %w", err)
	}
	if err := metronome.ValidateTempo(cfg.Metronome.DefaultTempo); err != nil {
		return timing{}, fmt.Errorf("metronome.default_tempo: %w", err)
	}
	return timing{
		tempo:     cfg.Metronome.DefaultTempo,
		muted:     cfg.Metronome.IsMuted(),
		lookahead: look,
		poll:      poll,
	}, nil
}

func mapTaps(cfg *config.Config) (taptempo.Config, error) {
	gap, err := cfg.Taps.GapMs(taptempo.DefaultMaxGapMs)
	if err != nil {
		return taptempo.Config{}, err
	}
	tc := taptempo.Config{MaxTaps: cfg.Taps.MaxTaps, MaxGapMs: gap}
	if tc.MaxTaps == 0 {
		tc.MaxTaps = taptempo.DefaultMaxTaps
	}
	if err := tc.Validate(); err != nil {
		return taptempo.Config{}, fmt.Errorf("taps: %w", err)
	}
	return tc, nil
}

// mapAudio reports enabled=false when the click track is off.
func mapAudio(cfg *config.Config) (audio.Config, bool, error) {
	ac := cfg.Audio
	maxDur, err := ac.MaxDurationOrDefault(audio.DefaultMaxDuration)
	if err != nil {
		return audio.Config{}, false, err
	}
	out := audio.Config{
		SampleRate:  ac.SampleRate,
		Frequency:   ac.Frequency,
		Volume:      audio.Vol(ac.Volume),
		Path:        strings.TrimSpace(ac.Path),
		MaxDuration: maxDur,
	}
	if err := out.Validate(); err != nil {
		return audio.Config{}, false, err
	}
	return out, ac.Enabled, nil
}

func mapMedia(cfg *config.Config) ([]playback.Item, error) {
	items := make([]playback.Item, 0, len(cfg.Media))
	for _, m := range cfg.Media {
		items = append(items, playback.Item{
			Name: strings.TrimSpace(m.Name),
			URL:  strings.TrimSpace(m.URL),
			BPM:  m.BPM,
		})
	}
	if err := playback.ValidateItems(items); err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}
	return items, nil
}

// validateConfig runs every mapping so a bad hot reload is rejected as a whole.
func validateConfig(cfg *config.Config) error {
	if _, err := mapTiming(cfg); err != nil {
		return err
	}
	if _, err := mapTaps(cfg); err != nil {
		return err
	}
	if _, _, err := mapAudio(cfg); err != nil {
		return err
	}
	if _, err := mapMedia(cfg); err != nil {
		return err
	}
	return nil
}
