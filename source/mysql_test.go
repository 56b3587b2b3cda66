package source

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-mysql-org/go-mysql/canal"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/go-mysql-org/go-mysql/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihqiang/dbxnotify/envelope"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/store"
	"github.com/chihqiang/dbxnotify/types"
)

var postTable = &schema.Table{
	Schema: "app",
	Name:   "post",
	Columns: []schema.TableColumn{
		{Name: "id", Type: schema.TYPE_STRING},
		{Name: "private", Type: schema.TYPE_NUMBER, RawType: "tinyint(1)"},
		{Name: "upvotes", Type: schema.TYPE_NUMBER, RawType: "int(11)"},
		{Name: "createdAt", Type: schema.TYPE_DATETIME},
	},
}

func newTestMySQL(t *testing.T) *MySQLSource {
	t.Helper()
	s := newMySQLSource(MysqlConfig{ServerName: "app", Buffer: 8}, 2, logx.Discard())
	fs, err := store.NewFileStore(store.FileConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	s.WithStore(fs)
	return s
}

func next(t *testing.T, s *MySQLSource) *Message {
	t.Helper()
	select {
	case msg := <-s.events:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message published")
		return nil
	}
}

func TestMySQLSource_RendersChangeEnvelope(t *testing.T) {
	s := newTestMySQL(t)
	err := s.OnRow(&canal.RowsEvent{
		Table:  postTable,
		Action: canal.UpdateAction,
		Header: &replication.EventHeader{Timestamp: 1700000000},
		Rows: [][]interface{}{
			{"p1", int8(1), int32(9), "2024-03-04 10:00:00"},
			{"p1", int8(0), int32(10), "2024-03-04 10:00:00"},
		},
	})
	require.NoError(t, err)

	env, err := envelope.Decode(next(t, s).Data)
	require.NoError(t, err)
	assert.Equal(t, "app.app.post.Envelope", env.SchemaName)
	assert.Equal(t, types.OpUpdate, env.Op)
	assert.Equal(t, "post", env.Source.Table)
	assert.Equal(t, int64(1700000000000), env.Source.TsMs)

	var before, after types.Post
	require.NoError(t, json.Unmarshal(env.Before, &before))
	require.NoError(t, json.Unmarshal(env.After, &after))
	assert.True(t, before.Private)
	assert.False(t, after.Private)
	assert.Equal(t, 10, after.Upvotes)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), after.CreatedAt.UTC())
}

func TestMySQLSource_InsertAndDelete(t *testing.T) {
	s := newTestMySQL(t)
	require.NoError(t, s.OnRow(&canal.RowsEvent{Table: postTable, Action: canal.InsertAction, Rows: [][]interface{}{{"p1", int8(0), int32(0), nil}}}))
	require.NoError(t, s.OnRow(&canal.RowsEvent{Table: postTable, Action: canal.DeleteAction, Rows: [][]interface{}{{"p1", int8(0), int32(0), nil}}}))

	created, err := envelope.Decode(next(t, s).Data)
	require.NoError(t, err)
	assert.Equal(t, types.OpCreate, created.Op)
	assert.Nil(t, created.Before)

	deleted, err := envelope.Decode(next(t, s).Data)
	require.NoError(t, err)
	assert.Equal(t, types.OpDelete, deleted.Op)
	assert.Nil(t, deleted.After)
}

func TestMySQLSource_PositionWaitsForSettlement(t *testing.T) {
	s := newTestMySQL(t)
	ctx := context.Background()
	require.NoError(t, s.OnRow(&canal.RowsEvent{Table: postTable, Action: canal.InsertAction, Rows: [][]interface{}{{"p1", int8(0), int32(0), nil}}}))

	saved := make(chan error, 1)
	go func() {
		saved <- s.OnPosSynced(nil, mysql.Position{Name: "binlog.000001", Pos: 120}, nil, false)
	}()

	msg := next(t, s)
	require.NoError(t, msg.Nack(ctx))
	select {
	case <-saved:
		t.Fatal("position saved while a row was unsettled")
	case <-time.After(50 * time.Millisecond):
	}

	retry := next(t, s)
	assert.Equal(t, 2, retry.Attempt)
	require.NoError(t, retry.Ack(ctx))

	select {
	case err := <-saved:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("position never saved")
	}
	raw, err := s.store.Get(StoreKeyPosition)
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":"binlog.000001","pos":120}`, string(raw))
}

func TestMySQLSource_ExhaustedRowIsDropped(t *testing.T) {
	s := newTestMySQL(t)
	ctx := context.Background()
	require.NoError(t, s.OnRow(&canal.RowsEvent{Table: postTable, Action: canal.InsertAction, Rows: [][]interface{}{{"p1", int8(0), int32(0), nil}}}))

	require.NoError(t, next(t, s).Nack(ctx))
	require.NoError(t, next(t, s).Nack(ctx))

	assert.True(t, s.waitSettled())
	select {
	case <-s.events:
		t.Fatal("row redelivered past the limit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMySQLSource_CloseUnblocks(t *testing.T) {
	s := newTestMySQL(t)
	require.NoError(t, s.Close())
	_, err := s.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.publish([]byte("x")))
}
