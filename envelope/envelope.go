// Package envelope decodes raw CDC messages into change envelopes and decides
// which of them carry no row data worth evaluating.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chihqiang/dbxnotify/types"
)

// ErrMalformedEnvelope is returned when a payload does not decode into a change
// envelope. It is fatal for the message: the runtime nacks it.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Discard reasons.
const (
	ReasonHeartbeat = "heartbeat"
	ReasonSnapshot  = "snapshot"
)

// Decode parses raw into a change envelope.
//
// Accepted shapes: the connector's `{"schema":…,"payload":…}` document, the bare
// payload (schemas disabled), and either of them JSON-string encoded once more.
func Decode(raw []byte) (*types.ChangeEnvelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedEnvelope)
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	var wire types.WireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	env := &types.ChangeEnvelope{}
	if wire.Schema != nil {
		env.SchemaName = wire.Schema.Name
	}
	if env.IsHeartbeat() {
		return env, nil
	}

	payload := wire.Payload
	if payload == nil {
		var bare types.WirePayload
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		payload = &bare
	}
	env.Op = payload.Op
	env.Before = nullable(payload.Before)
	env.After = nullable(payload.After)
	env.Source = payload.Source
	env.TsMs = payload.TsMs

	if err := validate(env); err != nil {
		return nil, err
	}
	return env, nil
}

// Discard reports whether env must be acknowledged without evaluation, and why.
func Discard(env *types.ChangeEnvelope) (bool, string) {
	if env.IsHeartbeat() {
		return true, ReasonHeartbeat
	}
	if env.Op == types.OpSnapshot {
		return true, ReasonSnapshot
	}
	return false, ""
}

func validate(env *types.ChangeEnvelope) error {
	if !env.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrMalformedEnvelope, string(env.Op))
	}
	if env.Source.Table == "" {
		return fmt.Errorf("%w: missing source.table", ErrMalformedEnvelope)
	}
	switch env.Op {
	case types.OpCreate:
		if env.Before != nil || env.After == nil {
			return fmt.Errorf("%w: create must have only after", ErrMalformedEnvelope)
		}
	case types.OpDelete:
		if env.After != nil || env.Before == nil {
			return fmt.Errorf("%w: delete must have only before", ErrMalformedEnvelope)
		}
	case types.OpUpdate, types.OpSnapshot:
		// before may be missing on updates when the table has no full replica identity
		if env.After == nil {
			return fmt.Errorf("%w: %s without after", ErrMalformedEnvelope, env.Op)
		}
	}
	return nil
}

func nullable(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}
