package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rrelayer/rrelayer/internal/config"
)

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "inspect or validate the project configuration file",
	Subcommands: []*cli.Command{
		{
			Name:  "validate",
			Usage: "load the configuration and its environment overlay, reporting any fatal-category error (§7)",
			Action: func(ctx *cli.Context) error {
				cfg, err := config.Load(ctx.String(configFlag.Name))
				if err != nil {
					return err
				}
				fmt.Printf("config OK: %q, %d network(s)\n", cfg.Name, len(cfg.Networks))
				return nil
			},
		},
	},
}
