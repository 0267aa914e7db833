package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/config"
	"github.com/rrelayer/rrelayer/internal/relayer"
)

var relayerCommand = &cli.Command{
	Name:  "relayer",
	Usage: "administer relayers outside the HTTP API",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "provision a new relayer and start its queue (§4.1 add_new_relayer)",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.Uint64Flag{Name: "chain-id", Required: true},
			},
			Action: func(ctx *cli.Context) error {
				cfg, err := config.Load(ctx.String(configFlag.Name))
				if err != nil {
					return err
				}
				a, err := buildApp(ctx.Context, cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				rel, err := a.orchestrator.AddNewRelayer(ctx.Context, relayer.NewSetup{
					Name:    ctx.String("name"),
					ChainID: chain.ID(ctx.Uint64("chain-id")),
				})
				if err != nil {
					return err
				}
				fmt.Printf("created relayer %s on chain %d: %s\n", rel.ID, rel.ChainID, rel.Address.Hex())
				return nil
			},
		},
	},
}
