package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli"

	"tempolock/internal/audio"
	"tempolock/internal/clock"
	"tempolock/internal/metronome"
	logx "tempolock/pkg/logx"
)

var renderFlags = []cli.Flag{
	cli.Float64Flag{
		Name:  "bpm, b",
		Usage: "tempo of the click track",
		Value: 120,
	},
	cli.DurationFlag{
		Name:  "duration, d",
		Usage: "length of the click track",
		Value: 10 * time.Second,
	},
	cli.StringFlag{
		Name:  "out, o",
		Usage: "output WAV path",
		Value: "clicks.wav",
	},
	cli.IntFlag{
		Name:  "sample-rate",
		Value: audio.DefaultSampleRate,
	},
	cli.Float64Flag{
		Name:  "frequency",
		Usage: "click tone in Hz",
		Value: audio.DefaultFrequency,
	},
	cli.Float64Flag{
		Name:  "volume",
		Usage: "click level, 0..1",
		Value: audio.DefaultVolume,
	},
	cli.StringFlag{
		Name:  "log-level",
		Value: "error",
	},
}

// render drives the real metronome from a manual clock, so the track is
// produced as fast as the CPU allows with exact tick placement.
func render(c *cli.Context, out io.Writer) error {
	dur := c.Duration("duration")
	if dur <= 0 {
		return usageErr(c, errors.New("duration must be > 0"))
	}
	log := logx.NewConsole(c.String("log-level"))

	acfg := audio.Config{
		SampleRate: c.Int("sample-rate"),
		Frequency:  c.Float64("frequency"),
		Volume:     audio.Vol(c.Float64("volume")),
		Path:       c.String("out"),
		// room for a click that starts right at the end
		MaxDuration: dur + 100*time.Millisecond,
	}
	if err := acfg.Validate(); err != nil {
		return usageErr(c, err)
	}

	mc := clock.NewManual()
	dev := audio.NewDevice(acfg, mc, log.With(logx.String("comp", "audio")))
	met, err := metronome.New(c.Float64("bpm"),
		metronome.WithClock(dev),
		metronome.WithMuted(false),
		metronome.WithLogger(log.With(logx.String("comp", "metronome"))),
	)
	if err != nil {
		return usageErr(c, err)
	}
	if err := met.Start(); err != nil {
		return err
	}
	mc.Advance(dur)
	met.Stop()

	tr := dev.LastTrack()
	if tr == nil {
		return errors.New("no track was opened")
	}
	if err := tr.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "wrote %s: %d clicks, %s at %.2f bpm\n", acfg.Path, tr.Clicks(), dur, c.Float64("bpm"))
	return nil
}
