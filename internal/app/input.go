package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	logx "tempolock/pkg/logx"
)

// ErrUnknownCommand is returned by Handle for input it does not understand.
var ErrUnknownCommand = errors.New("unknown command")

const helpText = `keys (one per line):
  <enter>, t   tap (starts playback if stopped)
  r            restart clip and metronome
  p            pause clip
  + / -        nudge tempo by 1 bpm
  <number>     set tempo
  n            next clip
  m            toggle click
  e            clip ended (loop on the next beat)
  s            status
  q            quit`

// Handle runs one input command. quit reports that the user asked to leave.
func (a *App) Handle(line string) (quit bool, err error) {
	cmd := strings.TrimSpace(line)
	switch cmd {
	case "", "t", "space":
		if err := a.play(); err != nil {
			return false, err
		}
		bpm, ok, err := a.ctrl.Tap(a.nowMs())
		if err != nil {
			return false, err
		}
		if ok {
			a.printf("tap: %.1f bpm\n", bpm)
		}
	case "r", "enter":
		if err := a.ctrl.Restart(); err != nil {
			return false, err
		}
		a.sync.Rewind()
	case "p":
		a.sync.Pause()
	case "+", "=":
		bpm, err := a.ctrl.Nudge(1)
		if err != nil {
			return false, err
		}
		a.printf("tempo: %.0f bpm\n", bpm)
	case "-":
		bpm, err := a.ctrl.Nudge(-1)
		if err != nil {
			return false, err
		}
		a.printf("tempo: %.0f bpm\n", bpm)
	case "n":
		if it, ok := a.sync.Next(); ok {
			a.printf("clip: %s (%.1f bpm)\n", it.Name, it.BPM)
		}
	case "m":
		muted := !a.ctrl.Muted()
		a.ctrl.SetMuted(muted)
		a.printf("muted: %v\n", muted)
	case "e":
		a.sync.Ended()
	case "s":
		a.printStatus()
	case "h", "?", "help":
		a.printf("%s\n", helpText)
	case "q", "quit":
		return true, nil
	default:
		bpm, perr := strconv.ParseFloat(cmd, 64)
		if perr != nil {
			return false, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		if err := a.ctrl.SetTempo(bpm); err != nil {
			return false, err
		}
		a.printf("tempo: %g bpm\n", bpm)
	}
	return false, nil
}

// play mirrors the play button: resume the clip, start the metronome if idle.
func (a *App) play() error {
	a.sync.Play()
	return a.ctrl.Play()
}

func (a *App) printStatus() {
	snap := a.ctrl.Snapshot()
	st := a.player.State()
	a.printf("tempo %.1f bpm | running %v | muted %v | clip %s x%.3f | taps %d | ticks %d\n",
		snap.Tempo, snap.Running, snap.Muted, st.Clip, st.Rate, len(a.ctrl.History()), snap.Ticks)
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *App) inputLoop(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	// The scanner blocks in Read, so it lives outside the supervisor and is
	// abandoned on shutdown.
	go func() {
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	a.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			// end of input ends the session
			a.sup.Cancel()
			return err
		case line := <-lines:
			quit, err := a.Handle(line)
			if err != nil {
				a.log.Warn("command failed", logx.String("input", line), logx.Err(err))
				a.printf("error: %v\n", err)
			}
			if quit {
				a.sup.Cancel()
				return nil
			}
		}
	}
}
