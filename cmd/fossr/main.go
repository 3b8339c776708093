package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "fossr",
		Usage: "FOSSR token sale operator CLI",
		Description: `Buy and sell against the bonding curve, inspect lock state and levels,
run admin instructions, or start a self-contained localnet with the airdrop scheduler.

Settings come from --config and FOSSR_* environment variables.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			stateCommand(),
			quoteCommand(),
			buyCommand(),
			sellCommand(),
			ordersCommand(),
			levelCommand(),
			adminCommands(),
			historyCommand(),
			localnetCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml/json config file",
				EnvVars: []string{"FOSSR_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Signer keypair file (solana-keygen JSON). Defaults to the configured authority",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
