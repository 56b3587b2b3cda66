package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chihqiang/dbxnotify/config"
	"github.com/chihqiang/dbxnotify/pipeline"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/metrics"
	"github.com/chihqiang/dbxnotify/pkg/tracing"
	"github.com/chihqiang/dbxnotify/source"
	"github.com/chihqiang/dbxnotify/store"
	"github.com/chihqiang/dbxnotify/worker"
)

func ConsumeCommand() *cli.Command {
	return &cli.Command{
		UseShortOptionHandling: true,
		Name:                   "consume",
		Usage:                  "Consume CDC messages from a subscription and emit notification intents",
		Flags:                  []cli.Flag{subscriptionFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			if s := cmd.String(FlagSubscription); s != "" {
				cfg.Source.Subscription = s
			}
			return Consume(ctx, cfg)
		},
	}
}

func DeadLetterCommand() *cli.Command {
	return &cli.Command{
		UseShortOptionHandling: true,
		Name:                   "deadletter",
		Usage:                  "Drain the dead-letter destination of a subscription, logging each message",
		Flags:                  []cli.Flag{subscriptionFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			if s := cmd.String(FlagSubscription); s != "" {
				cfg.Source.Subscription = s
			}
			return DrainDeadLetters(ctx, cfg)
		},
	}
}

// Consume runs the delivery runtime until SIGINT/SIGTERM.
func Consume(ctx context.Context, cfg *config.Config) error {
	c, err := SetupComponents(cfg, false)
	if err != nil {
		return err
	}
	defer c.Close()
	return serve(ctx, cfg, c.Pipeline(), c.Ledger, c.Logger)
}

// DrainDeadLetters runs the runtime over the dead-letter destination.
func DrainDeadLetters(ctx context.Context, cfg *config.Config) error {
	cfg.Source.DeadLetter = true
	return serve(ctx, cfg, pipeline.NewDeadLetter(logx.Default()), nil, logx.Default())
}

func serve(ctx context.Context, cfg *config.Config, p pipeline.Processor, positions store.IStore, logger logx.ILogger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	opts := []source.Option{source.WithLogger(logger)}
	if positions != nil {
		opts = append(opts, source.WithStore(positions))
	}
	src, err := source.NewSource(cfg.Source, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Error("failed to close source", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			slog.Info("serving metrics", "addr", cfg.Metrics.Addr)
			return metrics.Serve(gctx, cfg.Metrics.Addr)
		})
	}
	g.Go(func() error {
		defer stop()
		slog.Info("consuming", "source", cfg.Source.Type, "subscription", cfg.Source.Subscription,
			"dead_letter", cfg.Source.DeadLetter, "concurrency", cfg.Runtime.Concurrency)
		return worker.New(src, p, cfg.Runtime, logger).Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("runtime stopped", "error", err)
		return err
	}
	slog.Info("runtime stopped")
	return nil
}
