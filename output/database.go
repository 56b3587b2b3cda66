package output

import (
	"context"
	"errors"

	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/pkg/structx"
	"github.com/chihqiang/dbxnotify/types"
)

// DatabaseConfig persists intents into the notification_intent table.
type DatabaseConfig struct {
	datastore.Config `yaml:",inline" mapstructure:",squash" envPrefix:"OUTPUT_DATABASE_"`
}

// DatabaseOutput is the sink whose unique key makes duplicate sends visible.
type DatabaseOutput struct {
	db    *datastore.DB
	store datastore.Store
}

func NewDatabaseOutput(cfg DatabaseConfig) (*DatabaseOutput, error) {
	cfg, err := structx.MergeWithDefaults[DatabaseConfig](cfg)
	if err != nil {
		return nil, err
	}
	db, err := datastore.Open(cfg.Config)
	if err != nil {
		return nil, err
	}
	if err := db.Gorm().AutoMigrate(&datastore.NotificationIntent{}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DatabaseOutput{db: db, store: db}, nil
}

// NewStoreOutput writes through an already opened store.
func NewStoreOutput(store datastore.Store) *DatabaseOutput {
	return &DatabaseOutput{store: store}
}

func (d *DatabaseOutput) Send(ctx context.Context, msg types.Message) error {
	err := d.store.SaveIntent(ctx, &datastore.NotificationIntent{
		Key:     msg.Key,
		Type:    string(msg.Type),
		Context: string(msg.Context),
	})
	if errors.Is(err, datastore.ErrDuplicateKey) {
		return ErrDuplicate
	}
	return err
}

func (d *DatabaseOutput) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
