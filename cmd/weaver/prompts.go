package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/weaver/internal/prompts"
)

func promptsCmd() *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Manage prompt overrides",
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Write the built-in prompts to a directory for editing",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite existing files"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					dir := cmd.Args().First()
					if dir == "" {
						return fmt.Errorf("usage: weaver prompts init <dir>")
					}
					files, err := prompts.WriteDefaults(dir, cmd.Bool("force"))
					if err != nil {
						return err
					}

					snippet, err := yaml.Marshal(map[string]prompts.Files{"prompts": files})
					if err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Wrote prompts to %s. Add this to your config:\n\n", dir)
					fmt.Print(string(snippet))
					return nil
				},
			},
		},
	}
}
