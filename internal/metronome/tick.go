package metronome

import (
	"runtime/debug"

	"tempolock/internal/eventbus"
	logx "tempolock/pkg/logx"
)

// poll runs one lookahead pass. epoch pins the pass to the run that registered it;
// a Stop or restart bumps the epoch and the pass bails out at its next check.
func (m *Metronome) poll(epoch uint64) {
	horizon := m.lookahead.Seconds()
	for {
		m.mu.Lock()
		r := m.run
		if r == nil || m.epoch != epoch || !(r.nextTick < r.clock.Now()+horizon) {
			m.mu.Unlock()
			return
		}
		at := r.nextTick
		snapshot := m.queue
		m.queue = nil
		m.mu.Unlock()

		survivors, ok := m.fire(epoch, at, snapshot)
		if !ok {
			return
		}

		m.mu.Lock()
		if m.run != r || m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		m.queue = mergeQueue(survivors, m.queue)
		if !m.muted && r.clicker != nil {
			r.clicker.Click(at)
		}
		m.ticks++
		tick := eventbus.Tick{At: at, Tempo: m.tempo, Seq: m.ticks}
		r.nextTick = at + 60/m.tempo
		m.mu.Unlock()

		m.bus.Publish(eventbus.Event{Type: eventbus.TypeTick, Data: tick})
	}
}

// fire invokes the snapshot in order and returns the repeating tasks to keep.
// ok is false when the run was stopped part way through.
func (m *Metronome) fire(epoch uint64, at float64, snapshot []task) (survivors []task, ok bool) {
	for _, t := range snapshot {
		if !m.current(epoch) {
			return nil, false
		}
		if terr := invoke(t, at); terr != nil {
			m.reportFailure(terr)
		}
		if t.repeat {
			survivors = append(survivors, t)
		}
	}
	return survivors, m.current(epoch)
}

func (m *Metronome) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil && m.epoch == epoch
}

// mergeQueue keeps registration order: survivors of the snapshot were all
// registered before anything added while the snapshot ran.
func mergeQueue(survivors, added []task) []task {
	if len(survivors) == 0 {
		return added
	}
	out := make([]task, 0, len(survivors)+len(added))
	out = append(out, survivors...)
	return append(out, added...)
}

func invoke(t task, at float64) (terr *TaskError) {
	defer func() {
		if r := recover(); r != nil {
			terr = &TaskError{Seq: t.seq, Repeat: t.repeat, TickTime: at, Panic: r, Stack: string(debug.Stack())}
		}
	}()
	t.fn()
	return nil
}

func (m *Metronome) reportFailure(terr *TaskError) {
	m.mu.Lock()
	m.failures++
	suppressed := uint64(0)
	allow := m.failLimit.Allow()
	if allow {
		suppressed = m.suppressed
		m.suppressed = 0
	} else {
		m.suppressed++
	}
	handler := m.onTaskErr
	m.mu.Unlock()

	if allow {
		fields := []logx.Field{
			logx.Uint64("task", terr.Seq),
			logx.Bool("repeat", terr.Repeat),
			logx.Float64("tick", terr.TickTime),
			logx.Any("panic", terr.Panic),
			logx.Stack(terr.Stack),
		}
		if suppressed > 0 {
			fields = append(fields, logx.Uint64("suppressed", suppressed))
		}
		m.log.Warn("task panicked", fields...)
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFailed, Data: terr})

	if handler != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("task error handler panicked", logx.Any("panic", r))
				}
			}()
			handler(terr)
		}()
	}
}
