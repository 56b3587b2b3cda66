package store

import (
	"errors"
	"fmt"
	"time"
)

type StoreType string

const keyPrefix = "dbxnotify:"

const (
	// FileStoreType Type for File Store
	FileStoreType StoreType = "file"
	// RedisStoreType Type for Redis Store
	RedisStoreType StoreType = "redis"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("store: key not found")

var (
	// stores holds the registered store creators for different types
	stores = map[StoreType]func(cfg Config) (IStore, error){}
)

func init() {
	Register(FileStoreType, func(cfg Config) (IStore, error) {
		return NewFileStore(cfg.File)
	})
	Register(RedisStoreType, func(cfg Config) (IStore, error) {
		return NewRedisStore(cfg.Redis)
	})
}

// Register registers a custom store creator function for a given store type
func Register(storeType StoreType, fn func(Config) (IStore, error)) {
	stores[storeType] = fn
}

// Config selects the key-value store backing the intent ledger and source
// positions.
type Config struct {
	Type  StoreType   `yaml:"type" json:"type" mapstructure:"type" env:"STORE_TYPE" envDefault:"file"`
	File  FileConfig  `yaml:"file" json:"file" mapstructure:"file"`
	Redis RedisConfig `yaml:"redis" json:"redis" mapstructure:"redis"`
}

// IStore defines the interface for a key-value storage system.
type IStore interface {
	// Set stores the value associated with the key, without expiry.
	Set(key string, value []byte) error

	// SetEX stores the value, replacing any entry. ttl <= 0 means no expiry.
	SetEX(key string, value []byte, ttl time.Duration) error

	// SetNX stores the value only when the key is absent (or expired).
	// It reports whether this call claimed the key. ttl <= 0 means no expiry.
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)

	// Get retrieves the value associated with the key.
	// Returns ErrNotFound when the key does not exist.
	Get(key string) ([]byte, error)

	// Has checks if the key exists in the store.
	Has(key string) bool

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases any resources held by the store.
	Close() error
}

// NewStore Creates a new store instance based on the provided configuration
func NewStore(cfg Config) (IStore, error) {
	creator, exists := stores[cfg.Type]
	if !exists {
		return nil, fmt.Errorf("store type %s is not registered", cfg.Type)
	}
	return creator(cfg)
}

func expiryOf(ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
