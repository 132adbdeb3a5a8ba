package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dotcommander/weaver/internal/config"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or create the configuration file",
		Commands: []*cli.Command{
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(configPath(cmd))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a config file with the default settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := configPath(cmd)
					if err := initConfig(path, cmd.Bool("force")); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Wrote %s. Set GEMINI_API_KEY or ai.api_key before generating.\n", path)
					return nil
				},
			},
		},
	}
}

func configPath(cmd *cli.Command) string {
	if p := cmd.String("config"); p != "" {
		return p
	}
	return config.Path()
}

func initConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	cfg := config.Default()
	return config.Save(&cfg, path)
}
