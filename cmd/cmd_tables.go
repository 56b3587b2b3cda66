package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func TablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "List the tables the router evaluates",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c := &Components{}
			for _, table := range c.Router().Tables() {
				fmt.Fprintln(cmd.Root().Writer, table)
			}
			return nil
		},
	}
}
