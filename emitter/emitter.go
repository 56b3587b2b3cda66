// Package emitter hands intents to the notification collaborator at least
// once, suppressing keys already delivered.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chihqiang/dbxnotify/output"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/metrics"
	"github.com/chihqiang/dbxnotify/store"
	"github.com/chihqiang/dbxnotify/types"
)

// Emitter publishes intents. Emitting the same intent twice has the effect of
// emitting it once.
type Emitter interface {
	Emit(ctx context.Context, intents ...types.Intent) error
}

const ledgerPrefix = "intent:"

// Ledger states of an intent key.
const (
	claimPending = "pending"
	claimDone    = "done"
)

// ErrInFlight is returned when another handler holds the claim on an intent.
// The message is nacked so a redelivery finds the outcome.
var ErrInFlight = errors.New("intent send in flight")

type Config struct {
	// TTL bounds how long a delivered key suppresses duplicates.
	TTL time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl" env:"EMITTER_TTL" envDefault:"168h"`
	// Lease bounds a pending claim, so a handler that dies mid-send does not
	// block its redelivery.
	Lease   time.Duration `yaml:"lease" json:"lease" mapstructure:"lease" env:"EMITTER_LEASE" envDefault:"30s"`
	Retries int           `yaml:"retries" json:"retries" mapstructure:"retries" env:"EMITTER_RETRIES" envDefault:"2"`
	// Breaker opens after this many consecutive send failures.
	BreakerFailures uint32        `yaml:"breaker_failures" json:"breaker_failures" mapstructure:"breaker_failures" env:"EMITTER_BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" json:"breaker_timeout" mapstructure:"breaker_timeout" env:"EMITTER_BREAKER_TIMEOUT" envDefault:"30s"`
}

type Option func(*Idempotent)

func WithLogger(logger logx.ILogger) Option {
	return func(e *Idempotent) { e.logger = logger }
}

func WithConfig(cfg Config) Option {
	return func(e *Idempotent) { e.cfg = cfg }
}

// Idempotent leases every intent key in a ledger while sending it and marks it
// done once the output accepted it.
type Idempotent struct {
	ledger  store.IStore
	out     output.IOutput
	breaker *gobreaker.CircuitBreaker
	logger  logx.ILogger
	cfg     Config
}

var _ Emitter = (*Idempotent)(nil)

func New(ledger store.IStore, out output.IOutput, opts ...Option) *Idempotent {
	e := &Idempotent{
		ledger: ledger,
		out:    out,
		logger: logx.Discard(),
		cfg:    Config{TTL: 7 * 24 * time.Hour, Lease: 30 * time.Second, Retries: 2, BreakerFailures: 5, BreakerTimeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("emitter")
	failures := e.cfg.BreakerFailures
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "output",
		Timeout: e.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, output.ErrDuplicate)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit %s: %s -> %s", name, from, to)
		},
	})
	return e
}

// Emit sends intents in order and stops at the first failure. Intents sent
// before the failure are marked done, so a redelivery only sends the rest.
func (e *Idempotent) Emit(ctx context.Context, intents ...types.Intent) error {
	for _, intent := range intents {
		if err := e.emit(ctx, intent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Idempotent) emit(ctx context.Context, intent types.Intent) error {
	msg, err := intent.Encode()
	if err != nil {
		return err
	}
	claimKey := ledgerPrefix + msg.Key
	claimed, err := e.ledger.SetNX(claimKey, []byte(claimPending), e.cfg.Lease)
	if err != nil {
		return fmt.Errorf("claim intent %s: %w", msg.Key, err)
	}
	if !claimed {
		state, err := e.ledger.Get(claimKey)
		if err == nil && string(state) == claimDone {
			metrics.IntentsDuplicate.WithLabelValues(string(msg.Type)).Inc()
			e.logger.Debug("intent %s %s already emitted", msg.Type, msg.Key)
			return nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("read intent claim %s: %w", msg.Key, err)
		}
		e.logger.Debug("intent %s %s is being sent elsewhere", msg.Type, msg.Key)
		return fmt.Errorf("intent %s %s: %w", msg.Type, msg.Key, ErrInFlight)
	}
	_, err = e.breaker.Execute(func() (any, error) {
		return nil, output.SendWithRetry(ctx, e.out, msg, e.cfg.Retries)
	})
	if errors.Is(err, output.ErrDuplicate) {
		metrics.IntentsDuplicate.WithLabelValues(string(msg.Type)).Inc()
		e.logger.Debug("intent %s %s already in sink", msg.Type, msg.Key)
		e.markDone(claimKey, msg)
		return nil
	}
	if err != nil {
		// release the claim so the redelivery can retry the send
		if derr := e.ledger.Delete(claimKey); derr != nil {
			e.logger.Error("release intent %s: %v", msg.Key, derr)
			err = errors.Join(err, derr)
		}
		return fmt.Errorf("send intent %s %s: %w", msg.Type, msg.Key, err)
	}
	metrics.IntentsEmitted.WithLabelValues(string(msg.Type)).Inc()
	e.logger.Info("emitted %s %s", msg.Type, msg.Key)
	e.markDone(claimKey, msg)
	return nil
}

// markDone replaces the lease with the long lived marker. The intent is
// already delivered, so a failure here only risks a duplicate send once the
// lease lapses.
func (e *Idempotent) markDone(claimKey string, msg types.Message) {
	if err := e.ledger.SetEX(claimKey, []byte(claimDone), e.cfg.TTL); err != nil {
		e.logger.Error("mark intent %s done: %v", msg.Key, err)
	}
}
