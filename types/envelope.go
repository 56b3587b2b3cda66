package types

import (
	"encoding/json"
	"fmt"
)

// HeartbeatSchemaName is the schema name CDC connectors stamp on liveness messages.
const HeartbeatSchemaName = "io.debezium.connector.common.Heartbeat"

// Operation is the kind of row mutation carried by a change envelope.
type Operation string

const (
	// OpCreate a row was inserted
	OpCreate Operation = "c"
	// OpUpdate a row was updated
	OpUpdate Operation = "u"
	// OpDelete a row was deleted
	OpDelete Operation = "d"
	// OpSnapshot a row was read during the initial snapshot
	OpSnapshot Operation = "r"
)

// Valid reports whether op is one of the four known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete, OpSnapshot:
		return true
	}
	return false
}

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpSnapshot:
		return "snapshot"
	}
	return fmt.Sprintf("unknown(%s)", string(op))
}

// SourceInfo describes where a change was captured.
type SourceInfo struct {
	// Table is the routing identity of the change
	Table  string `json:"table"`
	Schema string `json:"schema,omitempty"`
	DB     string `json:"db,omitempty"`
	TsMs   int64  `json:"ts_ms,omitempty"`
	LSN    *int64 `json:"lsn,omitempty"`
}

// ChangeEnvelope is one decoded CDC message. It is never persisted.
type ChangeEnvelope struct {
	SchemaName string
	Op         Operation
	// Before is nil for creates
	Before json.RawMessage
	// After is nil for deletes
	After  json.RawMessage
	Source SourceInfo
	TsMs   int64
}

// IsHeartbeat reports whether the envelope is a connector heartbeat.
func (e *ChangeEnvelope) IsHeartbeat() bool {
	return e.SchemaName == HeartbeatSchemaName
}

// WireSchema is the `schema` part of the JSON wire envelope. Only the name matters.
type WireSchema struct {
	Name string `json:"name"`
}

// WirePayload is the `payload` part of the JSON wire envelope.
type WirePayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Op     Operation       `json:"op"`
	Source SourceInfo      `json:"source"`
	TsMs   int64           `json:"ts_ms,omitempty"`
}

// WireEnvelope is the JSON message produced by the CDC connector (schemas enabled).
type WireEnvelope struct {
	Schema  *WireSchema  `json:"schema,omitempty"`
	Payload *WirePayload `json:"payload"`
}
