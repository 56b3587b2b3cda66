// Package worker is the delivery runtime: it pulls messages from a source,
// runs them through a processor with bounded concurrency and settles each one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chihqiang/dbxnotify/pipeline"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/metrics"
	"github.com/chihqiang/dbxnotify/source"
)

const (
	defaultConcurrency    = 8
	defaultHandlerTimeout = 30 * time.Second
	settleTimeout         = 10 * time.Second
	maxReceiveErrors      = 5
)

// Config is the runtime section.
type Config struct {
	Concurrency int `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency" env:"RUNTIME_CONCURRENCY" envDefault:"8"`
	// HandlerTimeout bounds one message, in seconds. Keep it below the broker
	// ack deadline.
	HandlerTimeout int `yaml:"handler_timeout" json:"handler_timeout" mapstructure:"handler_timeout" env:"RUNTIME_HANDLER_TIMEOUT" envDefault:"30"`
}

// Runner pumps one subscription.
type Runner struct {
	source    source.ISource
	processor pipeline.Processor
	cfg       Config
	logger    logx.ILogger
}

func New(src source.ISource, p pipeline.Processor, cfg Config, logger logx.ILogger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = int(defaultHandlerTimeout / time.Second)
	}
	if logger == nil {
		logger = logx.Discard()
	}
	return &Runner{source: src, processor: p, cfg: cfg, logger: logger.Named("worker")}
}

// Run blocks until ctx ends or the source closes. On return no handler is
// still running: shutdown stops pulling and waits for in-flight messages,
// which finish under their own timeout rather than ctx.
func (r *Runner) Run(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	var wg sync.WaitGroup
	defer wg.Wait()

	failures := 0
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		msg, err := r.source.Receive(ctx)
		if err != nil {
			sem.Release(1)
			switch {
			case errors.Is(err, source.ErrClosed):
				r.logger.Info("source closed, draining")
				return nil
			case ctx.Err() != nil:
				return nil
			}
			failures++
			if failures >= maxReceiveErrors {
				return fmt.Errorf("receive: %w", err)
			}
			r.logger.Warn("receive failed (%d/%d): %v", failures, maxReceiveErrors, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(failures) * time.Second):
			}
			continue
		}
		failures = 0

		wg.Add(1)
		metrics.InFlight.Inc()
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer metrics.InFlight.Dec()
			r.handle(ctx, msg)
		}()
	}
}

func (r *Runner) handle(ctx context.Context, msg *source.Message) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(r.cfg.HandlerTimeout)*time.Second)
	out := r.processor.Process(hctx, msg.Data)
	if out.Result == pipeline.Ack && hctx.Err() != nil {
		// the processor may have acked a partial result after the deadline
		out = pipeline.Outcome{Result: pipeline.Nack, Err: hctx.Err()}
	}
	cancel()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if out.Result == pipeline.Nack {
		r.logger.Warn("nack %s (attempt %d): %v", msg.ID, msg.Attempt, out.Err)
		if err := msg.Nack(sctx); err != nil {
			r.logger.Error("nack %s: %v", msg.ID, err)
		}
		return
	}
	if err := msg.Ack(sctx); err != nil {
		r.logger.Error("ack %s: %v", msg.ID, err)
	}
}
