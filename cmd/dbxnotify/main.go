package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"

	"github.com/chihqiang/dbxnotify/cmd"
)

var (
	version = "main"
)

func main() {
	app := &cli.Command{}
	app.Name = "dbxnotify"
	app.Usage = "turns database change events into idempotent notification intents"
	app.Version = version
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Printf("dbxnotify version %s %s/%s\n", cmd.Version, runtime.GOOS, runtime.GOARCH)
	}
	app.Flags = cmd.Flags()
	app.Before = cmd.Before
	app.Commands = []*cli.Command{
		cmd.ConsumeCommand(),
		cmd.DeadLetterCommand(),
		cmd.CronCommand(),
		cmd.ReplayCommand(),
		cmd.TablesCommand(),
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
