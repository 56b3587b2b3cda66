package cmd

import "github.com/urfave/cli/v3"

const (
	FlagConfig       = "config"
	FlagSubscription = "subscription"
	FlagDryRun       = "dry-run"
	FlagFile         = "file"
)

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagConfig,
			Aliases: []string{"c"},
			Usage:   "Load configuration from `FILE`",
			Value:   "config.yml",
		},
	}
}

func subscriptionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    FlagSubscription,
		Aliases: []string{"s"},
		Usage:   "Subscription `NAME` (overrides source.subscription)",
	}
}

func dryRunFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  FlagDryRun,
		Usage: "Print intents instead of emitting them; datastore writes are rolled back",
	}
}
