package playback

import (
	"sync"

	"tempolock/internal/eventbus"
	logx "tempolock/pkg/logx"
)

// Scheduler is the slice of the metronome Sync needs.
type Scheduler interface {
	Schedule(fn func(), repeat bool)
	Tempo() float64
}

// Sync keeps the player's rate at tempo / clip BPM, updating on metronome ticks
// so speed changes land on the beat.
type Sync struct {
	sched  Scheduler
	lib    *Library
	player Player
	bus    eventbus.Bus
	log    logx.Logger

	mu         sync.Mutex
	pushedClip string
	pushedRate float64
}

func NewSync(sched Scheduler, lib *Library, player Player, bus eventbus.Bus, log logx.Logger) *Sync {
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sync{sched: sched, lib: lib, player: player, bus: bus, log: log}
}

// Bind registers the repeating rate task. It is meant to run on every
// metronome start, since a start discards previously scheduled tasks.
func (s *Sync) Bind() {
	s.mu.Lock()
	s.pushedClip, s.pushedRate = "", 0
	s.mu.Unlock()
	s.sched.Schedule(s.update, true)
}

func (s *Sync) update() {
	it, ok := s.lib.Current()
	if !ok {
		return
	}
	rate := s.sched.Tempo() / it.BPM

	s.mu.Lock()
	if it.Name == s.pushedClip && rate == s.pushedRate {
		s.mu.Unlock()
		return
	}
	s.pushedClip, s.pushedRate = it.Name, rate
	s.mu.Unlock()

	s.player.SetPlaybackRate(rate)
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypePlaybackRate,
		Data: eventbus.PlaybackRate{Clip: it.Name, Rate: rate},
	})
}

// Rate is the last rate pushed to the player, or 0 before the first tick.
func (s *Sync) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushedRate
}

// Ended reports that the clip played to its end. The rewind waits for the next
// tick so the loop restarts on the beat.
func (s *Sync) Ended() {
	s.sched.Schedule(func() {
		s.log.Debug("loop restart on beat")
		s.player.Restart()
	}, false)
}

// Next switches to the following clip. Its rate is applied on the next tick.
func (s *Sync) Next() (Item, bool) {
	it, ok := s.lib.Next()
	if !ok {
		return Item{}, false
	}
	s.player.Load(it)
	return it, true
}

// Current loads the library's current clip into the player.
func (s *Sync) Current() (Item, bool) {
	it, ok := s.lib.Current()
	if ok {
		s.player.Load(it)
	}
	return it, ok
}

func (s *Sync) Play() { s.player.Play() }

func (s *Sync) Pause() { s.player.Pause() }

func (s *Sync) Rewind() { s.player.Restart() }

func (s *Sync) Library() *Library { return s.lib }
