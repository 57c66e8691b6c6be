package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/fishnet-hq/paygate/client"
)

func payCommands() *cli.Command {
	return &cli.Command{
		Name:  "pay",
		Usage: "Payment commands (HTTP API)",
		Subcommands: []*cli.Command{
			createCommand(),
			sendCommand(),
			activityCommand(),
		},
	}
}

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:8080",
		Usage:   "HTTP server URL",
		EnvVars: []string{"PAYGATE_SERVER_URL"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Build an unsigned draft transaction for a dataset purchase",
		ArgsUsage: "DATASET_ID SIGNER_ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("dataset id and signer address are required")
			}
			datasetID := c.Args().Get(0)
			signer := c.Args().Get(1)

			cl := client.NewClient(c.String("server"), nil, quietLogger())
			draft, err := cl.CreateTransaction(c.Context, datasetID, signer)
			if err != nil {
				return err
			}

			// The raw draft goes to stdout so it can be piped to a signer.
			fmt.Println(draft)
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Broadcast a signed transaction and wait for settlement",
		ArgsUsage: "DATASET_ID [SIGNED_TX_BASE64]",
		Description: `Sends a signed, base64-serialized transaction to the server and blocks
until it is confirmed, validated, and recorded. If the transaction is not
given as an argument it is read from stdin.`,
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output result as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("dataset id is required")
			}
			datasetID := c.Args().Get(0)

			signedTx := c.Args().Get(1)
			if signedTx == "" {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read transaction from stdin: %w", err)
				}
				signedTx = string(raw)
			}

			cl := client.NewClient(c.String("server"), nil, quietLogger())
			sig, err := cl.SendTransaction(c.Context, datasetID, signedTx)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{
					"signature": sig,
				})
			}
			fmt.Printf("payment settled: %s\n", sig)
			return nil
		},
	}
}

func activityCommand() *cli.Command {
	return &cli.Command{
		Name:      "activity",
		Usage:     "Show ledger activity for an address",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:    "jq",
				Aliases: []string{"q"},
				Usage:   "jq expression applied to the activity report (e.g. '.totalProfit')",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)

			cl := client.NewClient(c.String("server"), nil, quietLogger())
			report, err := cl.GetTransactions(c.Context, address)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			filter := c.String("jq")
			if filter == "" {
				return enc.Encode(report)
			}

			query, err := gojq.Parse(filter)
			if err != nil {
				return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
			}
			code, err := gojq.Compile(query)
			if err != nil {
				return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
			}

			// Round-trip through JSON so gojq sees plain maps and slices.
			raw, err := json.Marshal(report)
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			var doc interface{}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("failed to unmarshal report: %w", err)
			}

			iter := code.Run(doc)
			for {
				v, ok := iter.Next()
				if !ok {
					break
				}
				if err, isErr := v.(error); isErr {
					return fmt.Errorf("jq filter failed: %w", err)
				}
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
