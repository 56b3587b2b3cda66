package pipeline

import (
	"context"

	"github.com/chihqiang/dbxnotify/envelope"
	"github.com/chihqiang/dbxnotify/pkg/logx"
)

const maxLoggedPayload = 2048

// DeadLetter consumes dead-letter subscriptions: it records each message and
// acks it, so poison messages leave the redelivery loop.
type DeadLetter struct {
	logger logx.ILogger
}

var _ Processor = (*DeadLetter)(nil)

func NewDeadLetter(logger logx.ILogger) *DeadLetter {
	if logger == nil {
		logger = logx.Discard()
	}
	return &DeadLetter{logger: logger.Named("deadletter")}
}

func (d *DeadLetter) Process(_ context.Context, raw []byte) Outcome {
	payload := raw
	if len(payload) > maxLoggedPayload {
		payload = payload[:maxLoggedPayload]
	}
	env, err := envelope.Decode(raw)
	switch {
	case err != nil:
		d.logger.Error("dead letter: undecodable payload=%s: %v", payload, err)
	case env.IsHeartbeat():
		d.logger.Warn("dead letter: connector heartbeat schema=%s, nothing to inspect", env.SchemaName)
		return Outcome{Result: Ack, Reason: "dead_letter_heartbeat"}
	default:
		d.logger.Error("dead letter: table=%s op=%s ts=%d payload=%s", env.Source.Table, env.Op, env.TsMs, payload)
	}
	return Outcome{Result: Ack, Reason: "dead_letter"}
}
