package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"tempolock/internal/app"
)

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to a JSON or YAML config (built-in defaults when empty)",
		EnvVar: "TEMPOLOCK_CONFIG",
	},
}

func run(c *cli.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(c.String("config"), app.WithInput(in), app.WithOutput(out))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopUserQuit
	select {
	case <-ctx.Done():
		reason = app.StopSIGINT
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		} else if ctx.Err() != nil {
			reason = app.StopSIGINT
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}
