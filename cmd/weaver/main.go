package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dotcommander/weaver/internal/core"
)

func main() {
	app := &cli.Command{
		Name:        "weaver",
		Usage:       "Resumable long-form novel generation",
		Description: "Generates a story bible, an outline and then every chapter in order, saving after each step so an interrupted run can be resumed.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config.yaml (default: $WEAVER_CONFIG or ~/.config/weaver/config.yaml)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging"},
		},
		Commands: []*cli.Command{
			newCmd(),
			resumeCmd(),
			statusCmd(),
			resetCmd(),
			exportCmd(),
			importCmd(),
			promptsCmd(),
			configCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, core.ErrIncompleteState) {
			fmt.Fprintln(os.Stderr, "The saved state cannot be resumed. Run 'weaver reset' and start a new novel.")
		}
		os.Exit(1)
	}
}
