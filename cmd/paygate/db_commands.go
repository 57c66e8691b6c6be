package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/fishnet-hq/paygate/service/db"
)

func databaseURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "database-url",
		Aliases: []string{"d"},
		Usage:   "PostgreSQL connection string",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func openStore(c *cli.Context) (*db.Store, *pgxpool.Pool, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database URL is required (set DATABASE_URL or --database-url)")
	}
	pool, err := pgxpool.New(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db.NewStore(pool, nil), pool, nil
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get a ledger row by transaction signature",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			databaseURLFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction signature is required")
			}

			store, pool, err := openStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			txn, err := store.GetTransaction(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(txn)
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List ledger rows for an address",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			databaseURLFlag(),
			&cli.BoolFlag{
				Name:  "seller",
				Usage: "List rows where the address was paid instead of rows where it paid",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)

			store, pool, err := openStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			list := store.ListTransactionsBySigner
			if c.Bool("seller") {
				list = store.ListTransactionsBySeller
			}
			txns, err := list(c.Context, address)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(txns)
		},
	}
}
