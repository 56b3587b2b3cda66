// Package cron registers the named units an external scheduler invokes.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/metrics"
	"github.com/chihqiang/dbxnotify/pkg/tracing"
	"github.com/chihqiang/dbxnotify/schedule"
)

// Handler is one cron run.
type Handler func(ctx context.Context, ds datastore.Store, logger logx.ILogger) error

type Cron struct {
	Name    string
	Handler Handler
}

// Cron names.
const (
	StreakReset    = "streak-reset"
	DigestWorkdays = "digest-workdays"
	DigestDaily    = "digest-daily"
	DigestWeekly   = "digest-weekly"
)

type DigestConfig struct {
	// OffsetHours is the lead time between the run and the digest send.
	OffsetHours int `yaml:"offset_hours" json:"offset_hours" mapstructure:"offset_hours" env:"DIGEST_OFFSET_HOURS" envDefault:"3"`
	Concurrency int `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency" env:"DIGEST_CONCURRENCY" envDefault:"8"`
}

type StreakConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size" env:"STREAK_BATCH_SIZE" envDefault:"500"`
}

// Deps are shared by the built-in crons.
type Deps struct {
	Emitter emitter.Emitter
	Clock   clock.Clock
	Digest  DigestConfig
	Streak  StreakConfig
}

// Registry maps names to crons.
type Registry struct {
	mu    sync.RWMutex
	crons map[string]Cron
}

func NewRegistry() *Registry {
	return &Registry{crons: map[string]Cron{}}
}

// Register adds c, replacing a cron of the same name.
func (r *Registry) Register(c Cron) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crons[c.Name] = c
}

func (r *Registry) Lookup(name string) (Cron, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.crons[name]
	return c, ok
}

// Names lists registered crons in name order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.crons))
	for name := range r.crons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named cron once.
func (r *Registry) Run(ctx context.Context, name string, ds datastore.Store, logger logx.ILogger) error {
	c, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown cron %q", name)
	}
	ctx, span := tracing.Tracer().Start(ctx, "cron.run")
	span.SetAttributes(attribute.String("cron.name", name))
	defer span.End()

	err := c.Handler(ctx, ds, logger.Named(name))
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.CronRuns.WithLabelValues(name, status).Inc()
	return err
}

// Default registers the streak and digest crons.
func Default(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(Cron{Name: StreakReset, Handler: func(ctx context.Context, ds datastore.Store, logger logx.ILogger) error {
		ev := &schedule.StreakEvaluator{
			Emitter:   deps.Emitter,
			Clock:     deps.Clock,
			Logger:    logger,
			BatchSize: deps.Streak.BatchSize,
		}
		_, err := ev.Run(ctx, ds)
		return err
	}})
	for name, sendType := range map[string]string{
		DigestWorkdays: datastore.SendTypeWorkdays,
		DigestDaily:    datastore.SendTypeDaily,
		DigestWeekly:   datastore.SendTypeWeekly,
	} {
		r.Register(Cron{Name: name, Handler: digestHandler(deps, sendType)})
	}
	return r
}

func digestHandler(deps Deps, sendType string) Handler {
	return func(ctx context.Context, ds datastore.Store, logger logx.ILogger) error {
		sched := &schedule.DigestScheduler{
			Emitter:     deps.Emitter,
			Clock:       deps.Clock,
			Logger:      logger,
			SendType:    sendType,
			OffsetHours: deps.Digest.OffsetHours,
			Concurrency: deps.Digest.Concurrency,
		}
		_, err := sched.Run(ctx, ds)
		return err
	}
}
