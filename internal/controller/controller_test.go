package controller

import (
	"errors"
	"math"
	"testing"
	"time"

	"tempolock/internal/clock"
	"tempolock/internal/eventbus"
	"tempolock/internal/metronome"
	"tempolock/internal/taptempo"
	logx "tempolock/pkg/logx"
)

func newTestController(t *testing.T, bus eventbus.Bus) (*Controller, *clock.Manual) {
	t.Helper()
	mc := clock.NewManual()
	c, err := New(Config{DefaultTempo: 120}, logx.Nop(), bus, metronome.WithClock(mc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, mc
}

func tempoEvents(ch <-chan eventbus.Event) []eventbus.TempoChange {
	var out []eventbus.TempoChange
	for {
		select {
		case ev := <-ch:
			if tc, ok := ev.Data.(eventbus.TempoChange); ok && ev.Type == eventbus.TypeTempoChanged {
				out = append(out, tc)
			}
		default:
			return out
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{DefaultTempo: 0}, logx.Nop(), nil); !errors.Is(err, metronome.ErrInvalidTempo) {
		t.Fatalf("New(0) err = %v, want ErrInvalidTempo", err)
	}
	_, err := New(Config{DefaultTempo: 120, Taps: taptempo.Config{MaxTaps: 1, MaxGapMs: 10}}, logx.Nop(), nil)
	if !errors.Is(err, taptempo.ErrInvalidConfig) {
		t.Fatalf("New(bad taps) err = %v, want ErrInvalidConfig", err)
	}
}

func TestTapSetsTempoFromEstimate(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	c, _ := newTestController(t, bus)

	if _, ok, err := c.Tap(0); ok || err != nil {
		t.Fatalf("first tap = %v, %v; want no estimate", ok, err)
	}
	if c.Tempo() != 120 {
		t.Fatalf("tempo changed on a single tap: %v", c.Tempo())
	}
	for _, ts := range []float64{600, 1200} {
		if _, _, err := c.Tap(ts); err != nil {
			t.Fatalf("Tap(%v): %v", ts, err)
		}
	}
	if c.Tempo() != 100 {
		t.Fatalf("tempo = %v, want 100", c.Tempo())
	}
	if h := c.History(); len(h) != 3 {
		t.Fatalf("history = %v", h)
	}

	events := tempoEvents(ch)
	if len(events) != 2 {
		t.Fatalf("tempo events = %+v, want 2", events)
	}
	for _, ev := range events {
		if ev.Source != SourceTap || ev.BPM != 100 {
			t.Fatalf("event = %+v", ev)
		}
	}
}

func TestTapAfterLongGapStartsOver(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, nil)
	_, _, _ = c.Tap(0)
	_, _, _ = c.Tap(400)
	if c.Tempo() != 150 {
		t.Fatalf("tempo = %v, want 150", c.Tempo())
	}
	if _, ok, _ := c.Tap(3000); ok {
		t.Fatal("tap after a long gap produced an estimate")
	}
	if h := c.History(); len(h) != 1 || h[0] != 3000 {
		t.Fatalf("history = %v, want [3000]", h)
	}
	if c.Tempo() != 150 {
		t.Fatalf("tempo = %v, want previous 150 kept", c.Tempo())
	}
}

func TestHistoryIsACopy(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, nil)
	_, _, _ = c.Tap(0)
	h := c.History()
	h[0] = 99
	if c.History()[0] != 0 {
		t.Fatal("History exposed internal state")
	}
	c.ResetTaps()
	if len(c.History()) != 0 {
		t.Fatal("ResetTaps kept history")
	}
}

func TestNudgeRoundsAndKeepsHistory(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	c, _ := newTestController(t, bus)

	if err := c.SetTempo(120.4); err != nil {
		t.Fatalf("SetTempo: %v", err)
	}
	_, _, _ = c.Tap(10)

	got, err := c.Nudge(1)
	if err != nil || got != 121 {
		t.Fatalf("Nudge(+1) = %v, %v; want 121", got, err)
	}
	if got, _ := c.Nudge(-1); got != 120 {
		t.Fatalf("Nudge(-1) = %v, want 120", got)
	}
	if len(c.History()) != 1 {
		t.Fatalf("nudge touched history: %v", c.History())
	}

	_ = c.SetTempo(1.2)
	if got, _ := c.Nudge(-1); got != 1 {
		t.Fatalf("Nudge floor = %v, want 1", got)
	}

	events := tempoEvents(ch)
	sources := make([]string, 0, len(events))
	for _, ev := range events {
		sources = append(sources, ev.Source)
	}
	want := []string{SourceSet, SourceNudge, SourceNudge, SourceSet, SourceNudge}
	if len(sources) != len(want) {
		t.Fatalf("sources = %v, want %v", sources, want)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Fatalf("sources = %v, want %v", sources, want)
		}
	}
}

func TestSetTempoRejectsInvalid(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()
	c, _ := newTestController(t, bus)

	for _, bpm := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if err := c.SetTempo(bpm); !errors.Is(err, metronome.ErrInvalidTempo) {
			t.Fatalf("SetTempo(%v) err = %v", bpm, err)
		}
	}
	if c.Tempo() != 120 {
		t.Fatalf("tempo = %v, want 120 retained", c.Tempo())
	}
	if ev := tempoEvents(ch); len(ev) != 0 {
		t.Fatalf("rejected tempos published events: %+v", ev)
	}
}

func TestBindersRunOnEveryStart(t *testing.T) {
	t.Parallel()
	c, mc := newTestController(t, nil)

	fired := 0
	binds := 0
	c.Bind(func() {
		binds++
		c.Schedule(func() { fired++ }, true)
	})
	if binds != 0 {
		t.Fatal("binder ran before Start")
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mc.Advance(time.Second)
	if fired != 3 {
		t.Fatalf("fired = %d, want 3 (0, 0.5, 1.0)", fired)
	}

	if err := c.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if binds != 2 {
		t.Fatalf("binds = %d, want 2", binds)
	}
	if p := c.Snapshot().Pending; p != 1 {
		t.Fatalf("pending after restart = %d, want 1", p)
	}
	if mc.Pollers() != 1 {
		t.Fatalf("pollers = %d, want 1", mc.Pollers())
	}
}

func TestBindWhileRunningRunsImmediately(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ran := false
	c.Bind(func() { ran = true })
	if !ran {
		t.Fatal("binder did not run on a running controller")
	}
}

func TestPlayOnlyStartsWhenStopped(t *testing.T) {
	t.Parallel()
	c, mc := newTestController(t, nil)

	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !c.Running() || mc.Opens() != 1 {
		t.Fatalf("running=%v opens=%d after Play", c.Running(), mc.Opens())
	}
	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if mc.Opens() != 1 {
		t.Fatalf("second Play re-opened the clock (opens=%d)", mc.Opens())
	}
	if err := c.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if mc.Opens() != 2 {
		t.Fatalf("Restart opens = %d, want 2", mc.Opens())
	}
	c.Stop()
	if c.Running() {
		t.Fatal("still running after Stop")
	}
}

func TestStartSurfacesClockFailure(t *testing.T) {
	t.Parallel()
	c, mc := newTestController(t, nil)
	boom := errors.New("no device")
	mc.FailOpen(boom)
	err := c.Start()
	if !errors.Is(err, metronome.ErrClockUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("Start err = %v", err)
	}
	if c.Running() {
		t.Fatal("running after failed Start")
	}
}

func TestRetryAfterFailedStartBindsOnce(t *testing.T) {
	t.Parallel()
	c, mc := newTestController(t, nil)
	calls := 0
	c.Bind(func() { c.Schedule(func() { calls++ }, true) })

	mc.FailOpen(errors.New("no device"))
	if err := c.Play(); !errors.Is(err, metronome.ErrClockUnavailable) {
		t.Fatalf("Play err = %v, want ErrClockUnavailable", err)
	}
	if p := c.Snapshot().Pending; p != 0 {
		t.Fatalf("pending after failed Play = %d, want 0", p)
	}

	mc.FailOpen(nil)
	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	mc.Advance(metronome.DefaultPollInterval)
	if calls != 1 {
		t.Fatalf("bound task ran %d times on the first tick, want 1", calls)
	}
	mc.Advance(500 * time.Millisecond)
	if s := c.Snapshot(); calls != int(s.Ticks) {
		t.Fatalf("calls = %d over %d ticks, want one per tick", calls, s.Ticks)
	}
}

func TestMutedPassThrough(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, nil)
	if !c.Muted() {
		t.Fatal("controller should start muted")
	}
	c.SetMuted(false)
	if c.Muted() {
		t.Fatal("SetMuted(false) ignored")
	}
}

func TestSetTapConfig(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, nil)
	if err := c.SetTapConfig(taptempo.Config{MaxTaps: 0}); err == nil {
		t.Fatal("invalid tap config accepted")
	}
	cfg := taptempo.Config{MaxTaps: 2, MaxGapMs: 500}
	if err := c.SetTapConfig(cfg); err != nil {
		t.Fatalf("SetTapConfig: %v", err)
	}
	for _, ts := range []float64{0, 100, 200, 300} {
		_, _, _ = c.Tap(ts)
	}
	if h := c.History(); len(h) != 2 || h[0] != 200 {
		t.Fatalf("history = %v, want [200 300]", h)
	}
	if c.TapConfig() != cfg {
		t.Fatalf("TapConfig = %+v", c.TapConfig())
	}
}

func TestTasksScheduledBeforeStartSurvive(t *testing.T) {
	t.Parallel()
	c, mc := newTestController(t, nil)
	fired := false
	c.Schedule(func() { fired = true }, false)
	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	mc.Advance(30 * time.Millisecond)
	if !fired {
		t.Fatal("task scheduled before Play was dropped")
	}
}
