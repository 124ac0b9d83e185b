// Package cmd is the tempolock command-line surface.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version string
	Commit  string
}

const description = `Tap a tempo and keep a looping clip locked to it.

The metronome schedules ticks slightly ahead of time so the click lands on
the beat even when the poll timer jitters.`

// Execute runs the app with os-level args (args[0] is the program name).
func Execute(args []string, bArgs BuildArgs) error {
	return newApp(bArgs, os.Stdin, os.Stdout).Run(args)
}

func newApp(bArgs BuildArgs, in io.Reader, out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "tempolock"
	app.HelpName = "tempolock"
	app.Usage = "lock video playback speed to a tapped tempo"
	app.UsageText = "tempolock <command> [arguments...]"
	app.Description = description
	app.Version = bArgs.Version
	if bArgs.Commit != "" {
		app.Version = fmt.Sprintf("%s (%s)", bArgs.Version, bArgs.Commit)
	}
	app.Writer = out
	app.ErrWriter = out
	app.Commands = []cli.Command{
		{
			Name:    "run",
			Aliases: []string{"r"},
			Usage:   "interactive session: tap on stdin, watch the clip follow",
			Flags:   runFlags,
			Action:  func(c *cli.Context) error { return run(c, in, out) },
		},
		{
			Name:      "estimate",
			Aliases:   []string{"e"},
			Usage:     "estimate a tempo from tap timestamps in milliseconds",
			ArgsUsage: "<ms> <ms> [ms...]",
			Flags:     estimateFlags,
			Action:    func(c *cli.Context) error { return estimate(c, out) },
		},
		{
			Name:   "render",
			Usage:  "render a click track to a WAV file",
			Flags:  renderFlags,
			Action: func(c *cli.Context) error { return render(c, out) },
		},
	}
	return app
}

// usageErr prints the command help and returns err for main to report.
func usageErr(c *cli.Context, err error) error {
	_ = cli.ShowCommandHelp(c, c.Command.Name)
	return err
}
