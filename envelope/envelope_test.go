package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihqiang/dbxnotify/types"
)

const updateMessage = `{
  "schema": {"type": "struct", "name": "app.public.post.Envelope"},
  "payload": {
    "before": {"id": "p1", "upvotes": 4},
    "after": {"id": "p1", "upvotes": 5},
    "op": "u",
    "ts_ms": 1709547072000,
    "source": {"table": "post", "schema": "public", "db": "api", "ts_ms": 1709547071999}
  }
}`

func TestDecode_Update(t *testing.T) {
	env, err := Decode([]byte(updateMessage))
	require.NoError(t, err)

	assert.Equal(t, "app.public.post.Envelope", env.SchemaName)
	assert.Equal(t, types.OpUpdate, env.Op)
	assert.Equal(t, "post", env.Source.Table)
	assert.Equal(t, int64(1709547072000), env.TsMs)
	assert.JSONEq(t, `{"id":"p1","upvotes":4}`, string(env.Before))
	assert.JSONEq(t, `{"id":"p1","upvotes":5}`, string(env.After))

	discard, _ := Discard(env)
	assert.False(t, discard)
}

func TestDecode_PayloadOnly(t *testing.T) {
	env, err := Decode([]byte(`{"before":null,"after":{"id":"c1"},"op":"c","source":{"table":"comment"}}`))
	require.NoError(t, err)
	assert.Equal(t, types.OpCreate, env.Op)
	assert.Nil(t, env.Before)
	assert.Equal(t, "comment", env.Source.Table)
}

func TestDecode_DoubleEncoded(t *testing.T) {
	inner := `{"payload":{"before":{"id":"c1"},"after":null,"op":"d","source":{"table":"comment"}}}`
	quoted, err := json.Marshal(inner)
	require.NoError(t, err)

	env, err := Decode(quoted)
	require.NoError(t, err)
	assert.Equal(t, types.OpDelete, env.Op)
	assert.Nil(t, env.After)
}

func TestDecode_Heartbeat(t *testing.T) {
	env, err := Decode([]byte(`{"schema":{"name":"io.debezium.connector.common.Heartbeat"},"payload":{"ts_ms":1}}`))
	require.NoError(t, err)

	discard, reason := Discard(env)
	assert.True(t, discard)
	assert.Equal(t, ReasonHeartbeat, reason)
}

func TestDecode_Snapshot(t *testing.T) {
	env, err := Decode([]byte(`{"payload":{"before":null,"after":{"id":"p1"},"op":"r","source":{"table":"post"}}}`))
	require.NoError(t, err)

	discard, reason := Discard(env)
	assert.True(t, discard)
	assert.Equal(t, ReasonSnapshot, reason)
}

func TestDecode_UpdateWithoutBefore(t *testing.T) {
	env, err := Decode([]byte(`{"payload":{"after":{"id":"p1"},"op":"u","source":{"table":"post"}}}`))
	require.NoError(t, err)
	assert.Nil(t, env.Before)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":             ``,
		"not json":          `not json`,
		"array":             `[1,2]`,
		"unknown op":        `{"payload":{"after":{},"op":"x","source":{"table":"post"}}}`,
		"missing table":     `{"payload":{"after":{},"op":"c","source":{}}}`,
		"create w/ before":  `{"payload":{"before":{},"after":{},"op":"c","source":{"table":"post"}}}`,
		"delete w/o before": `{"payload":{"before":null,"after":null,"op":"d","source":{"table":"post"}}}`,
		"update w/o after":  `{"payload":{"before":{},"op":"u","source":{"table":"post"}}}`,
		"bad payload type":  `{"payload":"oops"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}
