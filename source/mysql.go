package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-mysql-org/go-mysql/canal"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/go-mysql-org/go-mysql/schema"

	"github.com/chihqiang/dbxnotify/pkg/cmdx"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/structx"
	"github.com/chihqiang/dbxnotify/store"
	"github.com/chihqiang/dbxnotify/types"
)

const StoreKeyPosition = "mysql_position"

var (
	// DefaultMysqlExcludeTableRegex Default regular expression to exclude system tables
	DefaultMysqlExcludeTableRegex = []string{
		"mysql.*",
		"information_schema.*",
		"performance_schema.*",
		"sys.*",
	}
)

// MysqlConfig describes the binlog connection and table filter.
// Exclusions apply first; a non-empty include list then narrows the rest.
type MysqlConfig struct {
	Addr              string   `yaml:"addr" json:"addr" mapstructure:"addr" env:"SOURCE_MYSQL_ADDR" envDefault:"127.0.0.1:3306"`
	User              string   `yaml:"user" json:"user" mapstructure:"user" env:"SOURCE_MYSQL_USER" envDefault:"root"`
	Password          string   `yaml:"password" json:"password" mapstructure:"password" env:"SOURCE_MYSQL_PASSWORD" envDefault:""`
	ServerName        string   `yaml:"server_name" json:"server_name" mapstructure:"server_name" env:"SOURCE_MYSQL_SERVER_NAME" envDefault:"dbxnotify"`
	ExcludeTableRegex []string `yaml:"exclude_table_regex" json:"exclude_table_regex" mapstructure:"exclude_table_regex" env:"SOURCE_MYSQL_EXCLUDE_TABLE_REGEX"`
	IncludeTableRegex []string `yaml:"include_table_regex" json:"include_table_regex" mapstructure:"include_table_regex" env:"SOURCE_MYSQL_INCLUDE_TABLE_REGEX"`
	Buffer            int      `yaml:"buffer" json:"buffer" mapstructure:"buffer" env:"SOURCE_MYSQL_BUFFER" envDefault:"1024"`
}

// MySQLSource reads the binlog directly and renders each row change as the
// same JSON change envelope a CDC connector would publish. The binlog cannot
// redeliver, so nacked rows are retried in process and the position is only
// persisted once every row before it is settled.
type MySQLSource struct {
	canal.DummyEventHandler

	mu       sync.Mutex
	store    store.IStore
	canal    *canal.Canal
	cfg      MysqlConfig
	logger   logx.ILogger
	events   chan *Message
	done     chan struct{}
	running  bool
	closed   bool
	pending  int
	settled  chan struct{}
	seq      uint64
	maxTries int
}

// MysqlPosition is the persisted binlog position.
type MysqlPosition struct {
	File string `json:"file"`
	Pos  uint32 `json:"pos"`
}

func NewMySQLSource(cfg MysqlConfig, maxDeliveries int, logger logx.ILogger) (*MySQLSource, error) {
	cfg, err := structx.MergeWithDefaults[MysqlConfig](cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.ExcludeTableRegex) == 0 {
		cfg.ExcludeTableRegex = DefaultMysqlExcludeTableRegex
	}
	if logger == nil {
		logger = logx.Discard()
	}
	cc := canal.NewDefaultConfig()
	cc.Addr = cfg.Addr
	cc.User = cfg.User
	cc.Password = cfg.Password
	if !cmdx.CommandExists("mysqldump") {
		cc.Dump.ExecutionPath = ""
	}
	cc.ExcludeTableRegex = cfg.ExcludeTableRegex
	if len(cfg.IncludeTableRegex) > 0 {
		cc.IncludeTableRegex = cfg.IncludeTableRegex
	}
	s := newMySQLSource(cfg, maxDeliveries, logger)
	c, err := canal.NewCanal(cc)
	if err != nil {
		return nil, err
	}
	s.canal = c
	s.canal.SetEventHandler(s)
	return s, nil
}

func newMySQLSource(cfg MysqlConfig, maxDeliveries int, logger logx.ILogger) *MySQLSource {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &MySQLSource{
		cfg:      cfg,
		logger:   logger.Named("mysql"),
		events:   make(chan *Message, cfg.Buffer),
		done:     make(chan struct{}),
		settled:  make(chan struct{}),
		maxTries: maxDeliveries,
	}
}

// WithStore sets where the binlog position is persisted.
func (s *MySQLSource) WithStore(store store.IStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

// Receive starts the binlog reader on first use.
func (s *MySQLSource) Receive(ctx context.Context) (*Message, error) {
	if err := s.start(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case msg := <-s.events:
		return msg, nil
	}
}

func (s *MySQLSource) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("store is not initialized, cannot run MySQLSource")
	}
	s.running = true
	startPos := s.loadPosition()
	go func() {
		if err := s.canal.RunFrom(startPos); err != nil {
			s.logger.Error("canal stopped: %v", err)
		}
		_ = s.Close()
	}()
	return nil
}

func (s *MySQLSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	// canal waits for the handler, which may be blocked on mu
	if s.canal != nil {
		s.canal.Close()
	}
	return nil
}

// OnRow renders each changed row as an envelope and blocks until the
// runtime takes it.
func (s *MySQLSource) OnRow(e *canal.RowsEvent) error {
	for _, change := range splitRows(e) {
		data, err := s.render(e, change)
		if err != nil {
			return err
		}
		if !s.publish(data) {
			return ErrClosed
		}
	}
	return nil
}

// OnPosSynced persists pos once every row published before it is settled.
func (s *MySQLSource) OnPosSynced(_ *replication.EventHeader, pos mysql.Position, _ mysql.GTIDSet, _ bool) error {
	if !s.waitSettled() {
		return nil
	}
	return s.savePosition(pos)
}

type rowChange struct {
	op            types.Operation
	before, after []interface{}
}

func splitRows(e *canal.RowsEvent) []rowChange {
	var out []rowChange
	switch e.Action {
	case canal.InsertAction:
		for _, row := range e.Rows {
			out = append(out, rowChange{op: types.OpCreate, after: row})
		}
	case canal.DeleteAction:
		for _, row := range e.Rows {
			out = append(out, rowChange{op: types.OpDelete, before: row})
		}
	case canal.UpdateAction:
		// update rows come in before/after pairs
		for i := 0; i+1 < len(e.Rows); i += 2 {
			out = append(out, rowChange{op: types.OpUpdate, before: e.Rows[i], after: e.Rows[i+1]})
		}
	}
	return out
}

func (s *MySQLSource) render(e *canal.RowsEvent, change rowChange) ([]byte, error) {
	var tsMs int64
	if e.Header != nil {
		tsMs = int64(e.Header.Timestamp) * 1000
	}
	payload := types.WirePayload{
		Op: change.op,
		Source: types.SourceInfo{
			Table: e.Table.Name,
			DB:    e.Table.Schema,
			TsMs:  tsMs,
		},
		TsMs: time.Now().UnixMilli(),
	}
	var err error
	if change.before != nil {
		if payload.Before, err = json.Marshal(rowToMap(change.before, e.Table)); err != nil {
			return nil, err
		}
	}
	if change.after != nil {
		if payload.After, err = json.Marshal(rowToMap(change.after, e.Table)); err != nil {
			return nil, err
		}
	}
	return json.Marshal(types.WireEnvelope{
		Schema:  &types.WireSchema{Name: fmt.Sprintf("%s.%s.%s.Envelope", s.cfg.ServerName, e.Table.Schema, e.Table.Name)},
		Payload: &payload,
	})
}

func (s *MySQLSource) publish(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	s.mu.Lock()
	s.pending++
	s.seq++
	id := strconv.FormatUint(s.seq, 10)
	s.mu.Unlock()

	select {
	case s.events <- s.message(id, data, 1):
		return true
	case <-s.done:
		return false
	}
}

// message builds one delivery of a row. A nacked row is requeued and keeps its
// slot in pending until it is acked or runs out of attempts.
func (s *MySQLSource) message(id string, data []byte, attempt int) *Message {
	return NewMessage(id, data, attempt,
		func(context.Context) error {
			s.settle()
			return nil
		},
		func(context.Context) error {
			if attempt >= s.maxTries {
				s.logger.Error("row %s dropped after %d deliveries: %s", id, attempt, data)
				s.settle()
				return nil
			}
			next := s.message(id, data, attempt+1)
			go func() {
				select {
				case s.events <- next:
				case <-s.done:
				}
			}()
			return nil
		})
}

func (s *MySQLSource) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		close(s.settled)
		s.settled = make(chan struct{})
	}
}

func (s *MySQLSource) waitSettled() bool {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.mu.Unlock()
			return true
		}
		settled := s.settled
		s.mu.Unlock()
		select {
		case <-settled:
		case <-s.done:
			return false
		}
	}
}

// rowToMap converts binlog row values to JSON-friendly column values.
func rowToMap(row []interface{}, table *schema.Table) map[string]interface{} {
	m := make(map[string]interface{}, len(table.Columns))
	for j, col := range table.Columns {
		if j >= len(row) {
			break
		}
		raw := row[j]
		if raw == nil {
			m[col.Name] = nil
			continue
		}

		switch col.Type {
		case schema.TYPE_NUMBER, schema.TYPE_MEDIUM_INT:
			var n int64
			switch v := raw.(type) {
			case []byte:
				val, err := strconv.ParseInt(string(v), 10, 64)
				if err != nil {
					m[col.Name] = string(v)
					continue
				}
				n = val
			case int8:
				n = int64(v)
			case int16:
				n = int64(v)
			case int32:
				n = int64(v)
			case int64:
				n = v
			case int:
				n = int64(v)
			default:
				m[col.Name] = raw
				continue
			}
			// tinyint(1) is how MySQL spells boolean
			if strings.HasPrefix(col.RawType, "tinyint(1)") {
				m[col.Name] = n != 0
			} else {
				m[col.Name] = n
			}

		case schema.TYPE_FLOAT, schema.TYPE_DECIMAL:
			switch v := raw.(type) {
			case []byte:
				val, err := strconv.ParseFloat(string(v), 64)
				if err != nil {
					m[col.Name] = string(v)
				} else {
					m[col.Name] = val
				}
			case string:
				val, err := strconv.ParseFloat(v, 64)
				if err != nil {
					m[col.Name] = v
				} else {
					m[col.Name] = val
				}
			default:
				m[col.Name] = raw
			}

		case schema.TYPE_BIT:
			switch v := raw.(type) {
			case []byte:
				m[col.Name] = len(v) > 0 && v[0] != 0
			case int64:
				m[col.Name] = v != 0
			default:
				m[col.Name] = raw
			}

		case schema.TYPE_DATETIME, schema.TYPE_TIMESTAMP, schema.TYPE_DATE:
			switch v := raw.(type) {
			case []byte:
				m[col.Name] = parseMysqlTime(string(v))
			case string:
				m[col.Name] = parseMysqlTime(v)
			default:
				m[col.Name] = raw
			}

		case schema.TYPE_JSON:
			switch v := raw.(type) {
			case []byte:
				m[col.Name] = json.RawMessage(v)
			case string:
				m[col.Name] = json.RawMessage(v)
			default:
				m[col.Name] = raw
			}

		default:
			if v, ok := raw.([]byte); ok {
				m[col.Name] = string(v)
			} else {
				m[col.Name] = raw
			}
		}
	}
	return m
}

func parseMysqlTime(v string) interface{} {
	for _, layout := range []string{"2006-01-02 15:04:05.999999", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t
		}
	}
	return v
}

func (s *MySQLSource) loadPosition() mysql.Position {
	positionBytes, err := s.store.Get(StoreKeyPosition)
	if err == nil && len(positionBytes) > 0 {
		var storePos MysqlPosition
		_ = json.Unmarshal(positionBytes, &storePos)
		if storePos.File != "" && storePos.Pos != 0 {
			return mysql.Position{Name: storePos.File, Pos: storePos.Pos}
		}
	}
	pos, err := s.canal.GetMasterPos()
	if err == nil {
		return pos
	}
	return mysql.Position{}
}

func (s *MySQLSource) savePosition(pos mysql.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	positionBytes, err := json.Marshal(MysqlPosition{File: pos.Name, Pos: pos.Pos})
	if err != nil {
		return fmt.Errorf("marshal position error: %w", err)
	}
	return s.store.Set(StoreKeyPosition, positionBytes)
}
