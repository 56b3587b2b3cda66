package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/chihqiang/dbxnotify/config"
	"github.com/chihqiang/dbxnotify/source"
	"github.com/chihqiang/dbxnotify/worker"
)

const maxReplayLine = 16 << 20

func ReplayCommand() *cli.Command {
	return &cli.Command{
		UseShortOptionHandling: true,
		Name:                   "replay",
		Usage:                  "Run a file of change envelopes, one JSON document per line, through the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     FlagFile,
				Aliases:  []string{"f"},
				Usage:    "Read envelopes from `FILE` (- for stdin)",
				Required: true,
			},
			dryRunFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			return Replay(ctx, cfg, cmd.String(FlagFile), cmd.Bool(FlagDryRun), cmd.Root().Writer)
		},
	}
}

// Replay feeds the file through an in-memory source and the normal runtime.
// Dry runs print the intents to w.
func Replay(ctx context.Context, cfg *config.Config, file string, dryRun bool, w io.Writer) error {
	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	src := source.NewMemorySource(cfg.Source.MaxDeliveries)
	n, err := feed(src, r)
	if err != nil {
		return err
	}

	c, err := SetupComponents(cfg, dryRun)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := worker.New(src, c.Pipeline(), cfg.Runtime, c.Logger).Run(ctx); err != nil {
		return err
	}
	dead := src.Dead()
	slog.Info("replay finished", "messages", n, "acked", len(src.Acked()), "dead", len(dead))
	if err := c.PrintRecorded(ctx, w); err != nil {
		return err
	}
	if len(dead) > 0 {
		return fmt.Errorf("%d of %d messages could not be processed", len(dead), n)
	}
	return nil
}

func feed(src *source.MemorySource, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	n := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		src.Push(append([]byte(nil), line...))
		n++
	}
	src.Seal()
	return n, scanner.Err()
}
