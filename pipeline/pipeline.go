// Package pipeline runs one CDC message through decode, route, evaluate and
// emit, and tells the runtime whether to ack it.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/envelope"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/metrics"
	"github.com/chihqiang/dbxnotify/pkg/tracing"
	"github.com/chihqiang/dbxnotify/router"
	"github.com/chihqiang/dbxnotify/types"
)

// Result is the delivery decision for a message.
type Result int

const (
	Ack Result = iota
	Nack
)

func (r Result) String() string {
	if r == Nack {
		return "nack"
	}
	return "ack"
}

// Outcome is what processing decided, and why.
type Outcome struct {
	Result  Result
	Intents []types.Intent
	// Reason names why a message was acked without evaluation.
	Reason string
	Err    error
}

func ack(intents []types.Intent) Outcome { return Outcome{Result: Ack, Intents: intents} }

func nack(err error) Outcome { return Outcome{Result: Nack, Err: err} }

// Processor handles one raw message.
type Processor interface {
	Process(ctx context.Context, raw []byte) Outcome
}

// Pipeline is the CDC consumer processor.
type Pipeline struct {
	router  *router.Router
	emitter emitter.Emitter
	logger  logx.ILogger
}

var _ Processor = (*Pipeline)(nil)

func New(r *router.Router, e emitter.Emitter, logger logx.ILogger) *Pipeline {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Pipeline{router: r, emitter: e, logger: logger.Named("pipeline")}
}

func (p *Pipeline) Process(ctx context.Context, raw []byte) (out Outcome) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "pipeline.process")
	defer func() {
		span.SetAttributes(attribute.String("result", out.Result.String()), attribute.Int("intents", len(out.Intents)))
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		}
		span.End()
		label := out.Result.String()
		if out.Reason != "" {
			label = out.Reason
		}
		metrics.MessagesTotal.WithLabelValues(label).Inc()
		metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}()

	env, err := envelope.Decode(raw)
	if err != nil {
		p.logger.Error("decode: %v", err)
		return nack(err)
	}
	if skip, reason := envelope.Discard(env); skip {
		p.logger.Debug("discard %s message", reason)
		return Outcome{Result: Ack, Reason: reason}
	}
	span.SetAttributes(attribute.String("table", env.Source.Table), attribute.String("op", env.Op.String()))

	intents, err := p.router.Route(ctx, env)
	if err != nil {
		metrics.EvaluatorErrors.WithLabelValues(env.Source.Table).Inc()
		if errors.Is(err, envelope.ErrMalformedEnvelope) {
			p.logger.Error("malformed %s row: %v", env.Source.Table, err)
		} else {
			p.logger.Error("evaluate %s %s: %v", env.Source.Table, env.Op, err)
		}
		return nack(err)
	}
	if len(intents) == 0 {
		return ack(nil)
	}
	if err := p.emitter.Emit(ctx, intents...); err != nil {
		p.logger.Error("emit %d intents for %s: %v", len(intents), env.Source.Table, err)
		return nack(err)
	}
	return ack(intents)
}
