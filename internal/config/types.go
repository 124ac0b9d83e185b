package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "25ms", "2s").
// Omitted fields keep the values from Default().
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Metronome MetronomeConfig `json:"metronome"`
	Taps      TapsConfig      `json:"taps"`
	Display   DisplayConfig   `json:"display"`
	Audio     AudioConfig     `json:"audio"`
	Media     []MediaItem     `json:"media"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetronomeConfig controls the tick scheduler.
//
// Defaults:
//   - default_tempo: 120
//   - muted: true
//   - lookahead: "100ms"
//   - poll_interval: "25ms" (must be at most a third of lookahead)
type MetronomeConfig struct {
	DefaultTempo float64 `json:"default_tempo"`
	// Muted is a pointer so an omitted key keeps the default (muted) while an
	// explicit false turns the click on.
	Muted        *bool  `json:"muted,omitempty"`
	Lookahead    string `json:"lookahead,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
}

// TapsConfig controls tap-tempo estimation.
type TapsConfig struct {
	MaxTaps int    `json:"max_taps"`
	MaxGap  string `json:"max_gap"`
}

type DisplayConfig struct {
	ShowTempoIndicator bool `json:"show_tempo_indicator"`
}

// AudioConfig controls the click track.
//
// When enabled, every metronome start opens a fresh track; with a path set the
// track is written there as 16-bit mono WAV when the metronome stops.
type AudioConfig struct {
	Enabled     bool    `json:"enabled"`
	Path        string  `json:"path,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Frequency   float64 `json:"frequency,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	MaxDuration string  `json:"max_duration,omitempty"`
}

// MediaItem is a looping clip and the tempo it was recorded at.
type MediaItem struct {
	Name string  `json:"name"`
	URL  string  `json:"url"`
	BPM  float64 `json:"bpm"`
}

func boolPtr(v bool) *bool { return &v }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Metronome: MetronomeConfig{
			DefaultTempo: 120,
			Muted:        boolPtr(true),
			Lookahead:    "100ms",
			PollInterval: "25ms",
		},
		Taps: TapsConfig{MaxTaps: 6, MaxGap: "2s"},
		Audio: AudioConfig{
			SampleRate: 44100,
			Frequency:  1000,
			Volume:     1,
		},
		Media: DefaultMedia(),
	}
}

// DefaultMedia is the bundled clip list.
func DefaultMedia() []MediaItem {
	return []MediaItem{
		{Name: "rat", URL: "/rat.mp4", BPM: 117},
		{Name: "cowboys", URL: "/cowboys.mp4", BPM: 104.8},
		{Name: "crabs", URL: "/crabs.mp4", BPM: 125},
		{Name: "napoleon", URL: "/napoleon.mp4", BPM: 133.5},
		{Name: "monkeys", URL: "/monkeys.mp4", BPM: 112},
	}
}

// IsMuted resolves the muted flag (default true).
func (m MetronomeConfig) IsMuted() bool {
	if m.Muted == nil {
		return true
	}
	return *m.Muted
}
