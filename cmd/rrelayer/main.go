// Command rrelayer runs the relayer server: it loads the YAML/environment
// configuration of §6, wires storage, providers, signers, the gas-oracle
// cache, the queue orchestrator and the HTTP API, then serves until an
// interrupt signal drains every queue within its grace window (§5).
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the project's YAML configuration file",
		Value:   "rrelayer.yaml",
	}
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS from cgroup limits", "err", err)
	}

	app := &cli.App{
		Name:  "rrelayer",
		Usage: "multi-tenant EVM transaction relayer",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			startCommand,
			configCommand,
			relayerCommand,
		},
		Action: func(ctx *cli.Context) error {
			return cli.ShowAppHelp(ctx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("rrelayer exited with error", "err", err)
	}
}
