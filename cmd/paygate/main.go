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
		Name:  "paygate",
		Usage: "Dataset payment service CLI",
		Description: `A command-line tool for exercising and debugging the payment service.

Use this CLI to build and send payment transactions, inspect the transaction
ledger, and check server health.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Payment commands (HTTP API)
			payCommands(),
			// Ledger inspection commands (direct database access)
			{
				Name:  "db",
				Usage: "Ledger inspection commands",
				Subcommands: []*cli.Command{
					getTransactionCommand(),
					listTransactionsCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
