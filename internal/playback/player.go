package playback

import (
	"sync"

	logx "tempolock/pkg/logx"
)

// Player is the video surface Sync drives.
type Player interface {
	Load(it Item)
	Play()
	Pause()
	// Restart rewinds to the start and plays.
	Restart()
	SetPlaybackRate(rate float64)
}

// State is what a LogPlayer currently shows.
type State struct {
	Clip     string
	Rate     float64
	Paused   bool
	Restarts int
}

// LogPlayer is a headless Player that logs every command and remembers the
// resulting state.
type LogPlayer struct {
	log logx.Logger

	mu sync.Mutex
	st State
}

func NewLogPlayer(log logx.Logger) *LogPlayer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPlayer{log: log, st: State{Rate: 1, Paused: true}}
}

func (p *LogPlayer) Load(it Item) {
	p.mu.Lock()
	p.st.Clip = it.Name
	p.st.Paused = false
	p.mu.Unlock()
	p.log.Info("clip loaded", logx.String("clip", it.Name), logx.String("url", it.URL), logx.Float64("clip_bpm", it.BPM))
}

func (p *LogPlayer) Play() {
	p.mu.Lock()
	p.st.Paused = false
	p.mu.Unlock()
	p.log.Debug("play")
}

func (p *LogPlayer) Pause() {
	p.mu.Lock()
	p.st.Paused = true
	p.mu.Unlock()
	p.log.Debug("pause")
}

func (p *LogPlayer) Restart() {
	p.mu.Lock()
	p.st.Paused = false
	p.st.Restarts++
	n := p.st.Restarts
	p.mu.Unlock()
	p.log.Debug("rewind", logx.Int("restarts", n))
}

func (p *LogPlayer) SetPlaybackRate(rate float64) {
	p.mu.Lock()
	p.st.Rate = rate
	p.mu.Unlock()
	p.log.Debug("playback rate", logx.Float64("rate", rate))
}

func (p *LogPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}
