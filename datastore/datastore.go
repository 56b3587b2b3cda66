// Package datastore is the typed relational store evaluators and crons read.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("datastore: not found")
	// ErrDuplicateKey is returned when an insert hits a unique key.
	ErrDuplicateKey = errors.New("datastore: duplicate key")
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

type Config struct {
	Driver       string        `yaml:"driver" json:"driver" mapstructure:"driver" env:"DRIVER" envDefault:"sqlite"`
	DSN          string        `yaml:"dsn" json:"dsn" mapstructure:"dsn" env:"DSN" envDefault:"dbxnotify.db"`
	MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleTime  time.Duration `yaml:"max_idle_time" json:"max_idle_time" mapstructure:"max_idle_time" env:"MAX_IDLE_TIME" envDefault:"5m"`
	AutoMigrate  bool          `yaml:"auto_migrate" json:"auto_migrate" mapstructure:"auto_migrate" env:"AUTO_MIGRATE"`
}

// Store is the query surface evaluators and crons depend on.
type Store interface {
	PostByID(ctx context.Context, id string) (*Post, error)
	CommentByID(ctx context.Context, id string) (*Comment, error)
	SourceByID(ctx context.Context, id string) (*Source, error)
	UserByID(ctx context.Context, id string) (*User, error)

	// StampPostMetadataChangedAt moves metadataChangedAt forward to at.
	// It never moves it backwards; it reports whether the row changed.
	StampPostMetadataChangedAt(ctx context.Context, postID string, at time.Time) (bool, error)
	DeleteCommentMentions(ctx context.Context, commentID string) (int64, error)

	// StreamStreaks calls fn for every non-zero streak last viewed before cutoff.
	// fn must not query the store: the cursor holds the connection.
	StreamStreaks(ctx context.Context, cutoff time.Time, fn func(StreakRow) error) error
	LatestRecovery(ctx context.Context, userID string) (*time.Time, error)
	ResetStreaks(ctx context.Context, userIDs []string, at time.Time) (int64, error)

	StreamDigestSubscriptions(ctx context.Context, sendType string, fn func(DigestSubscription) error) error
	AllocateBatch(ctx context.Context, name string) (string, error)

	SaveIntent(ctx context.Context, rec *NotificationIntent) error

	// Transaction runs fn against a store bound to one transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// DB is the gorm implementation of Store.
type DB struct {
	db *gorm.DB
}

var _ Store = (*DB)(nil)

// Open connects to the configured database.
func Open(cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSqlite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	if cfg.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}
	d := &DB{db: db}
	if cfg.AutoMigrate {
		if err := d.Migrate(context.Background()); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

// Gorm exposes the underlying handle.
func (d *DB) Gorm() *gorm.DB {
	return d.db
}

// Migrate creates or updates every table.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Sandbox begins a transaction that is never committed. Writes made through
// the returned store are visible to it and thrown away by discard.
func (d *DB) Sandbox(ctx context.Context) (*DB, func() error, error) {
	tx := d.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, nil, fmt.Errorf("failed to begin sandbox: %w", tx.Error)
	}
	return &DB{db: tx}, func() error { return tx.Rollback().Error }, nil
}

func (d *DB) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DB{db: tx})
	})
}

func (d *DB) PostByID(ctx context.Context, id string) (*Post, error) {
	var p Post
	if err := d.db.WithContext(ctx).Take(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (d *DB) CommentByID(ctx context.Context, id string) (*Comment, error) {
	var c Comment
	if err := d.db.WithContext(ctx).Take(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (d *DB) SourceByID(ctx context.Context, id string) (*Source, error) {
	var s Source
	if err := d.db.WithContext(ctx).Take(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (d *DB) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := d.db.WithContext(ctx).Take(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (d *DB) StampPostMetadataChangedAt(ctx context.Context, postID string, at time.Time) (bool, error) {
	res := d.db.WithContext(ctx).Model(&Post{}).
		Where("id = ? AND (metadata_changed_at IS NULL OR metadata_changed_at < ?)", postID, at).
		Update("metadata_changed_at", at)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *DB) DeleteCommentMentions(ctx context.Context, commentID string) (int64, error) {
	res := d.db.WithContext(ctx).Where("comment_id = ?", commentID).Delete(&CommentMention{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

func (d *DB) StreamStreaks(ctx context.Context, cutoff time.Time, fn func(StreakRow) error) error {
	rows, err := d.db.WithContext(ctx).
		Table("user_streak AS s").
		Select("s.user_id, s.current_streak, s.last_view_at, COALESCE(u.timezone, '') AS timezone").
		Joins(`LEFT JOIN "user" u ON u.id = s.user_id`).
		Where("s.current_streak <> 0 AND s.last_view_at IS NOT NULL AND s.last_view_at < ?", cutoff).
		Order("s.user_id").
		Rows()
	if err != nil {
		return fmt.Errorf("query streaks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var row StreakRow
		if err := d.db.ScanRows(rows, &row); err != nil {
			return fmt.Errorf("scan streak: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *DB) LatestRecovery(ctx context.Context, userID string) (*time.Time, error) {
	var action UserStreakAction
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, StreakActionRecover).
		Order("created_at DESC").
		Take(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &action.CreatedAt, nil
}

func (d *DB) ResetStreaks(ctx context.Context, userIDs []string, at time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res := d.db.WithContext(ctx).Model(&UserStreak{}).
		Where("user_id IN ?", userIDs).
		Updates(map[string]any{"current_streak": 0, "updated_at": at})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

func (d *DB) StreamDigestSubscriptions(ctx context.Context, sendType string, fn func(DigestSubscription) error) error {
	rows, err := d.db.WithContext(ctx).Model(&DigestSubscription{}).
		Where("send_type = ?", sendType).
		Order("user_id").
		Rows()
	if err != nil {
		return fmt.Errorf("query digest subscriptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sub DigestSubscription
		if err := d.db.ScanRows(rows, &sub); err != nil {
			return fmt.Errorf("scan digest subscription: %w", err)
		}
		if err := fn(sub); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *DB) AllocateBatch(ctx context.Context, name string) (string, error) {
	batch := DigestBatch{ID: uuid.NewString(), Name: name}
	if err := d.db.WithContext(ctx).Create(&batch).Error; err != nil {
		return "", translate(err)
	}
	return batch.ID, nil
}

func (d *DB) SaveIntent(ctx context.Context, rec *NotificationIntent) error {
	return translate(d.db.WithContext(ctx).Create(rec).Error)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	default:
		return err
	}
}
