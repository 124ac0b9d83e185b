package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/urfave/cli"

	"tempolock/internal/taptempo"
)

var estimateFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "max-taps",
		Usage: "number of most recent taps averaged",
		Value: taptempo.DefaultMaxTaps,
	},
	cli.DurationFlag{
		Name:  "max-gap",
		Usage: "a longer pause starts a new run of taps",
		Value: 2 * time.Second,
	},
}

func estimate(c *cli.Context, out io.Writer) error {
	if c.NArg() == 0 {
		return usageErr(c, fmt.Errorf("no tap timestamps given"))
	}
	cfg := taptempo.Config{
		MaxTaps:  c.Int("max-taps"),
		MaxGapMs: float64(c.Duration("max-gap").Milliseconds()),
	}
	if err := cfg.Validate(); err != nil {
		return usageErr(c, err)
	}

	var h taptempo.History
	for _, raw := range c.Args() {
		ms, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return usageErr(c, fmt.Errorf("bad timestamp %q: %w", raw, err))
		}
		h = taptempo.Record(h, ms, cfg)
	}

	bpm, ok := taptempo.Estimate(h)
	if !ok {
		_, _ = fmt.Fprintf(out, "undefined (%d tap in window)\n", len(h))
		return nil
	}
	_, _ = fmt.Fprintf(out, "%.2f bpm (%d taps)\n", bpm, len(h))
	return nil
}
