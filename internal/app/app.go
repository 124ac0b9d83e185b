package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tempolock/internal/audio"
	"tempolock/internal/clock"
	"tempolock/internal/config"
	"tempolock/internal/controller"
	"tempolock/internal/display"
	"tempolock/internal/eventbus"
	"tempolock/internal/metronome"
	"tempolock/internal/playback"
	"tempolock/internal/runtime/supervisor"
	logx "tempolock/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	ctrl      *controller.Controller
	player    *playback.LogPlayer
	sync      *playback.Sync
	indicator *display.Indicator
	device    *audio.Device // nil unless audio.enabled

	in      io.Reader
	out     io.Writer
	nowMs   func() float64
	clk     clock.Source
	rawLogs bool
}

type Option func(*App)

// WithInput makes Start run a command loop over r (one command per line).
func WithInput(r io.Reader) Option { return func(a *App) { a.in = r } }

// WithOutput sets where the beat indicator and status lines go (default stdout).
func WithOutput(w io.Writer) Option { return func(a *App) { a.out = w } }

// WithClock replaces the system clock under the metronome.
func WithClock(src clock.Source) Option { return func(a *App) { a.clk = src } }

// WithTapClock sets the millisecond time source for taps.
func WithTapClock(now func() float64) Option { return func(a *App) { a.nowMs = now } }

// WithLogger bypasses the configured log sinks.
func WithLogger(log logx.Logger) Option {
	return func(a *App) {
		a.log = log
		a.rawLogs = true
	}
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfgm: cfgm, out: os.Stdout, clk: clock.System{}}
	for _, o := range opts {
		o(a)
	}
	if !a.rawLogs {
		a.logs, a.log = logx.New(mapLogging(cfg))
	}
	if a.log.IsZero() {
		a.log = logx.Nop()
	}
	log := a.log
	a.log = log.With(logx.String("comp", "app"))
	if a.nowMs == nil {
		start := time.Now()
		a.nowMs = func() float64 { return float64(time.Since(start)) / float64(time.Millisecond) }
	}
	a.bus = eventbus.New()

	tm, _ := mapTiming(cfg)
	taps, _ := mapTaps(cfg)
	media, _ := mapMedia(cfg)

	src := a.clk
	if acfg, enabled, _ := mapAudio(cfg); enabled {
		a.device = audio.NewDevice(acfg, a.clk, log.With(logx.String("comp", "audio")))
		src = a.device
	}

	a.ctrl, err = controller.New(controller.Config{DefaultTempo: tm.tempo, Taps: taps}, log, a.bus,
		metronome.WithClock(src),
		metronome.WithMuted(tm.muted),
		metronome.WithLookahead(tm.lookahead),
		metronome.WithPollInterval(tm.poll),
	)
	if err != nil {
		return nil, err
	}

	lib, err := playback.NewLibrary(media)
	if err != nil {
		return nil, err
	}
	a.player = playback.NewLogPlayer(log.With(logx.String("comp", "player")))
	a.sync = playback.NewSync(a.ctrl, lib, a.player, a.bus, log.With(logx.String("comp", "playback")))
	a.indicator = display.NewIndicator(a.ctrl, a.out, cfg.Display.ShowTempoIndicator)

	a.ctrl.Bind(a.sync.Bind)
	a.ctrl.Bind(a.indicator.Bind)
	return a, nil
}

func (a *App) Controller() *controller.Controller { return a.ctrl }

func (a *App) Player() *playback.LogPlayer { return a.player }

func (a *App) Sync() *playback.Sync { return a.sync }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (quit, fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start loads the first clip and starts the background loops. The metronome
// itself starts on the first play, tap or restart.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if it, ok := a.sync.Current(); ok {
		a.log.Info("clip ready", logx.String("clip", it.Name), logx.Float64("clip_bpm", it.BPM))
	}
	a.player.Pause()

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// ticks are too frequent for debug
				if e.Type == eventbus.TypeTick {
					a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case next, ok := <-sub:
						if !ok {
							return
						}
						newCfg = next
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, 500*time.Millisecond, 10*time.Second)

	if a.in != nil {
		a.sup.Go("input", a.inputLoop)
	}

	a.log.Info("started",
		logx.String("config", a.cfgm.Path()),
		logx.Float64("bpm", a.ctrl.Tempo()),
		logx.Bool("muted", a.ctrl.Muted()),
		logx.Bool("audio", a.device != nil),
	)
	return nil
}

// applyConfig applies the sections that can change live and reports the rest.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, media := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	var restartNeeded []string
	for _, s := range sections {
		switch s {
		case "logging":
			if a.logs != nil {
				a.logs.Apply(mapLogging(newCfg))
			}
		case "taps":
			if tc, err := mapTaps(newCfg); err == nil {
				if err := a.ctrl.SetTapConfig(tc); err != nil {
					a.log.Warn("taps not applied", logx.Err(err))
				}
			}
		case "display":
			a.indicator.SetEnabled(newCfg.Display.ShowTempoIndicator)
		case "media":
			if items, err := mapMedia(newCfg); err == nil {
				if err := a.sync.Library().Replace(items); err != nil {
					a.log.Warn("media not applied", logx.Err(err))
				}
			}
		case "metronome":
			if oldCfg == nil || oldCfg.Metronome.IsMuted() != newCfg.Metronome.IsMuted() {
				a.ctrl.SetMuted(newCfg.Metronome.IsMuted())
			}
			// tempo, lookahead and poll interval are fixed at construction
			if oldCfg == nil || oldCfg.Metronome.DefaultTempo != newCfg.Metronome.DefaultTempo ||
				oldCfg.Metronome.Lookahead != newCfg.Metronome.Lookahead ||
				oldCfg.Metronome.PollInterval != newCfg.Metronome.PollInterval {
				restartNeeded = append(restartNeeded, s)
			}
		case "audio":
			restartNeeded = append(restartNeeded, s)
		}
	}

	fields := append([]logx.Field{logx.String("sections", strings.Join(sections, ","))}, attrs...)
	if len(media) > 0 {
		fields = append(fields, logx.String("media.changed", strings.Join(media, ",")))
	}
	a.log.Info("config reloaded", fields...)
	if len(restartNeeded) > 0 {
		a.log.Warn("some changes apply after a process restart", logx.String("sections", strings.Join(restartNeeded, ",")))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.ctrl.Stop()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component can't stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Stopping the metronome closes the clock, which flushes the click track.
	step("metronome", 2*time.Second, func(context.Context) error {
		a.ctrl.Stop()
		if a.device != nil {
			if tr := a.device.LastTrack(); tr != nil {
				a.log.Info("click track closed", logx.Int("clicks", tr.Clicks()))
			}
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	snap := a.ctrl.Snapshot()
	a.log.Info("stopped",
		logx.Uint64("ticks", snap.Ticks),
		logx.Uint64("task_failures", snap.TaskFailures),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
