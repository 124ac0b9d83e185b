package config

import (
	"sort"
	"strings"

	logx "tempolock/pkg/logx"
)

// SummarizeConfigChange returns (1) a sorted list of changed sections,
// (2) structured attrs describing the new values for logging,
// and (3) the names of media clips that were added, removed or edited.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	om, nm := oldCfg.Metronome, newCfg.Metronome
	if om.DefaultTempo != nm.DefaultTempo ||
		om.IsMuted() != nm.IsMuted() ||
		strings.TrimSpace(om.Lookahead) != strings.TrimSpace(nm.Lookahead) ||
		strings.TrimSpace(om.PollInterval) != strings.TrimSpace(nm.PollInterval) {
		changed = append(changed, "metronome")
		attrs = append(attrs,
			logx.Float64("metronome.default_tempo", nm.DefaultTempo),
			logx.Bool("metronome.muted", nm.IsMuted()),
			logx.String("metronome.lookahead", strings.TrimSpace(nm.Lookahead)),
			logx.String("metronome.poll_interval", strings.TrimSpace(nm.PollInterval)),
		)
	}

	if oldCfg.Taps.MaxTaps != newCfg.Taps.MaxTaps ||
		strings.TrimSpace(oldCfg.Taps.MaxGap) != strings.TrimSpace(newCfg.Taps.MaxGap) {
		changed = append(changed, "taps")
		attrs = append(attrs,
			logx.Int("taps.max_taps", newCfg.Taps.MaxTaps),
			logx.String("taps.max_gap", strings.TrimSpace(newCfg.Taps.MaxGap)),
		)
	}

	if oldCfg.Display != newCfg.Display {
		changed = append(changed, "display")
		attrs = append(attrs, logx.Bool("display.show_tempo_indicator", newCfg.Display.ShowTempoIndicator))
	}

	if oldCfg.Audio != newCfg.Audio {
		changed = append(changed, "audio")
		attrs = append(attrs,
			logx.Bool("audio.enabled", newCfg.Audio.Enabled),
			logx.Bool("audio.path_set", strings.TrimSpace(newCfg.Audio.Path) != ""),
			logx.Int("audio.sample_rate", newCfg.Audio.SampleRate),
		)
	}

	media := diffMedia(oldCfg.Media, newCfg.Media)
	if len(media) > 0 || len(oldCfg.Media) != len(newCfg.Media) {
		changed = append(changed, "media")
		attrs = append(attrs,
			logx.Int("media.changed_count", len(media)),
			logx.Int("media.count", len(newCfg.Media)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, media
}

// diffMedia compares clip lists by name. Order changes alone are not reported.
func diffMedia(oldL, newL []MediaItem) []string {
	index := func(l []MediaItem) map[string]MediaItem {
		m := make(map[string]MediaItem, len(l))
		for _, it := range l {
			m[it.Name] = it
		}
		return m
	}
	oldM, newM := index(oldL), index(newL)

	set := make(map[string]struct{}, len(oldM)+len(newM))
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, okOld := oldM[name]
		n, okNew := newM[name]
		if okOld != okNew || o != n {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
