package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/chihqiang/dbxnotify/config"
	"github.com/chihqiang/dbxnotify/cron"
	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/evaluator"
	"github.com/chihqiang/dbxnotify/output"
	"github.com/chihqiang/dbxnotify/pipeline"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/router"
	"github.com/chihqiang/dbxnotify/store"
)

// Components are the collaborators every command shares.
type Components struct {
	DB      *datastore.DB
	Ledger  store.IStore
	Output  output.IOutput
	Emitter emitter.Emitter
	// Recorder is set instead of Ledger and Output on dry runs.
	Recorder *emitter.Recorder
	Logger   logx.ILogger
	Clock    clock.Clock

	root    *datastore.DB
	discard func() error
}

// SetupComponents components: Datastore, Store, Output, Emitter.
// A dry run reads and writes through a transaction that Close rolls back.
func SetupComponents(cfg *config.Config, dryRun bool) (*Components, error) {
	c := &Components{Logger: logx.Default(), Clock: clock.WallClock}
	db, err := datastore.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	c.DB, c.root = db, db
	if dryRun {
		c.DB, c.discard, err = db.Sandbox(context.Background())
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Recorder = emitter.NewRecorder()
		c.Emitter = c.Recorder
		return c, nil
	}
	c.Ledger, err = store.NewStore(cfg.Store)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	c.Output, err = output.NewOutput(cfg.Output)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	c.Emitter = emitter.New(c.Ledger, c.Output,
		emitter.WithConfig(emitterConfig(cfg)),
		emitter.WithLogger(c.Logger.Named("emitter")))
	return c, nil
}

// emitterConfig caps the claim lease at the handler timeout, so a pending claim
// lapses before the broker redelivers a message whose handler died.
func emitterConfig(cfg *config.Config) emitter.Config {
	ec := cfg.Emitter
	timeout := time.Duration(cfg.Runtime.HandlerTimeout) * time.Second
	if timeout > 0 && (ec.Lease <= 0 || ec.Lease > timeout) {
		ec.Lease = timeout
	}
	return ec
}

// Router wires the change evaluators of every known table.
func (c *Components) Router() *router.Router {
	return router.New(evaluator.Routes(evaluator.Deps{Store: c.DB, Clock: c.Clock, Logger: c.logger().Named("evaluator")}))
}

func (c *Components) Pipeline() *pipeline.Pipeline {
	return pipeline.New(c.Router(), c.Emitter, c.logger())
}

func (c *Components) logger() logx.ILogger {
	if c.Logger == nil {
		return logx.Discard()
	}
	return c.Logger
}

func (c *Components) Crons(cfg *config.Config) *cron.Registry {
	return cron.Default(cron.Deps{Emitter: c.Emitter, Clock: c.Clock, Digest: cfg.Digest, Streak: cfg.Streak})
}

// PrintRecorded renders what a dry run would have emitted.
func (c *Components) PrintRecorded(ctx context.Context, w io.Writer) error {
	if c.Recorder == nil {
		return nil
	}
	out := output.NewWriterOutput(w)
	for _, intent := range c.Recorder.Intents() {
		msg, err := intent.Encode()
		if err != nil {
			return err
		}
		if err := out.Send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Close resources uniformly
func (c *Components) Close() {
	slog.Info("closing datastore, store and output")
	if c.Output != nil {
		if err := c.Output.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}
	if c.Ledger != nil {
		if err := c.Ledger.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}
	if c.discard != nil {
		if err := c.discard(); err != nil {
			slog.Error("failed to discard dry run writes", "error", err)
		}
	}
	if c.root != nil {
		if err := c.root.Close(); err != nil {
			slog.Error("failed to close datastore", "error", err)
		}
	}
}
