package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/chihqiang/dbxnotify/config"
)

func CronCommand() *cli.Command {
	return &cli.Command{
		UseShortOptionHandling: true,
		Name:                   "cron",
		Usage:                  "Run one scheduled evaluation by name",
		ArgsUsage:              "NAME",
		Flags:                  []cli.Flag{dryRunFlag()},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered crons",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx)
					if err != nil {
						return err
					}
					c := &Components{}
					for _, name := range c.Crons(cfg).Names() {
						fmt.Fprintln(cmd.Root().Writer, name)
					}
					return nil
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			name := cmd.Args().First()
			if name == "" {
				return fmt.Errorf("cron name required, see `cron list`")
			}
			return RunCron(ctx, cfg, name, cmd.Bool(FlagDryRun), cmd.Root().Writer)
		},
	}
}

// RunCron executes one cron; a failure surfaces as a non-zero exit.
func RunCron(ctx context.Context, cfg *config.Config, name string, dryRun bool, w io.Writer) error {
	c, err := SetupComponents(cfg, dryRun)
	if err != nil {
		return err
	}
	defer c.Close()

	slog.Info("cron started", "name", name, "dry_run", dryRun)
	if err := c.Crons(cfg).Run(ctx, name, c.DB, c.Logger); err != nil {
		slog.Error("cron failed", "name", name, "error", err)
		return err
	}
	slog.Info("cron finished", "name", name)
	return c.PrintRecorded(ctx, w)
}
