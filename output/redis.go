package output

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chihqiang/dbxnotify/pkg/redisx"
	"github.com/chihqiang/dbxnotify/pkg/structx"
	"github.com/chihqiang/dbxnotify/types"
)

// RedisConfig pushes intents onto a list.
type RedisConfig struct {
	redisx.Config `yaml:",inline" mapstructure:",squash" envPrefix:"OUTPUT_REDIS_"`
	// Key is the list name
	Key string `yaml:"key" json:"key" mapstructure:"key" env:"OUTPUT_REDIS_KEY" envDefault:"dbxnotify:intents"`
}

type RedisOutput struct {
	rdb *redis.Client
	key string
}

func NewRedisOutput(cfg RedisConfig) (*RedisOutput, error) {
	cfg, err := structx.MergeWithDefaults[RedisConfig](cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := redisx.Open(context.Background(), cfg.Config)
	if err != nil {
		return nil, err
	}
	return &RedisOutput{rdb: rdb, key: cfg.Key}, nil
}

// Send LPUSHes the message; consumers BRPOP in arrival order.
func (r *RedisOutput) Send(ctx context.Context, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.rdb.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push intent to Redis: %w", err)
	}
	return nil
}

func (r *RedisOutput) Close() error {
	return r.rdb.Close()
}
