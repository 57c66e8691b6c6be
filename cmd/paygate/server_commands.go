package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fishnet-hq/paygate/client"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			serverFlag(),
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, quietLogger())
			if err := cl.Health(c.Context); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}
