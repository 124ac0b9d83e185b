// Package display renders the beat indicator.
package display

import (
	"fmt"
	"io"
	"sync"
)

const beatsPerBar = 4

// Scheduler is the slice of the metronome the indicator needs.
type Scheduler interface {
	Schedule(fn func(), repeat bool)
	Tempo() float64
}

// Indicator writes one line per tick, with a heavier marker on the downbeat.
type Indicator struct {
	sched Scheduler
	w     io.Writer

	mu      sync.Mutex
	enabled bool
	beat    int
}

func NewIndicator(sched Scheduler, w io.Writer, enabled bool) *Indicator {
	return &Indicator{sched: sched, w: w, enabled: enabled}
}

// Bind registers the per-tick task and restarts the bar count. Disabled
// indicators still register so SetEnabled takes effect without a restart.
func (in *Indicator) Bind() {
	in.mu.Lock()
	in.beat = 0
	in.mu.Unlock()
	in.sched.Schedule(in.tick, true)
}

func (in *Indicator) SetEnabled(on bool) {
	in.mu.Lock()
	in.enabled = on
	in.mu.Unlock()
}

func (in *Indicator) Enabled() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.enabled
}

func (in *Indicator) tick() {
	in.mu.Lock()
	beat := in.beat%beatsPerBar + 1
	in.beat++
	on := in.enabled
	in.mu.Unlock()
	if !on {
		return
	}
	marker := "."
	if beat == 1 {
		marker = "*"
	}
	_, _ = fmt.Fprintf(in.w, "%s %d/%d %6.1f bpm\n", marker, beat, beatsPerBar, in.sched.Tempo())
}
