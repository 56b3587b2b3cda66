package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/redisx"
	"github.com/chihqiang/dbxnotify/pkg/structx"
)

const redisFieldData = "data"

type RedisConfig struct {
	redisx.Config `yaml:",inline" mapstructure:",squash" envPrefix:"SOURCE_REDIS_"`
	Stream        string `yaml:"stream" json:"stream" mapstructure:"stream" env:"SOURCE_REDIS_STREAM" envDefault:"dbxnotify:cdc"`
	// DeadLetterStream is Stream + ":dlq" when empty.
	DeadLetterStream string `yaml:"dead_letter_stream" json:"dead_letter_stream" mapstructure:"dead_letter_stream" env:"SOURCE_REDIS_DEAD_LETTER_STREAM"`
	// ClaimIdle is how long, in seconds, an entry may sit unacked with another
	// consumer before this one takes it over.
	ClaimIdle int `yaml:"claim_idle" json:"claim_idle" mapstructure:"claim_idle" env:"SOURCE_REDIS_CLAIM_IDLE" envDefault:"300"`
}

func (c RedisConfig) deadLetterStream() string {
	if c.DeadLetterStream != "" {
		return c.DeadLetterStream
	}
	return c.Stream + ":dlq"
}

// RedisSource reads a stream through a consumer group. Nacked entries are
// re-added with a bumped attempt count (or moved to the dead-letter stream)
// and acked in the same transaction. Entries left pending by a dead consumer
// are claimed after ClaimIdle.
type RedisSource struct {
	rdb      *redis.Client
	cfg      RedisConfig
	sub      subscription
	stream   string
	consumer string
	logger   logx.ILogger

	mu        sync.Mutex
	lastClaim time.Time
}

func NewRedisSource(cfg RedisConfig, sub subscription, logger logx.ILogger) (*RedisSource, error) {
	cfg, err := structx.MergeWithDefaults[RedisConfig](cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := redisx.Open(context.Background(), cfg.Config)
	if err != nil {
		return nil, err
	}
	s, err := newRedisSource(context.Background(), rdb, cfg, sub, logger)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

func newRedisSource(ctx context.Context, rdb *redis.Client, cfg RedisConfig, sub subscription, logger logx.ILogger) (*RedisSource, error) {
	if sub.name == "" {
		return nil, fmt.Errorf("redis source needs a subscription (consumer group)")
	}
	if logger == nil {
		logger = logx.Discard()
	}
	stream := cfg.Stream
	if sub.deadLetter {
		stream = cfg.deadLetterStream()
	}
	err := rdb.XGroupCreateMkStream(ctx, stream, sub.group(), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s on %s: %w", sub.group(), stream, err)
	}
	return &RedisSource{
		rdb:      rdb,
		cfg:      cfg,
		sub:      sub,
		stream:   stream,
		consumer: sub.group() + "-" + uuid.NewString(),
		logger:   logger.Named("redis"),
	}, nil
}

func (r *RedisSource) Receive(ctx context.Context) (*Message, error) {
	for {
		if msg, err := r.claim(ctx); err != nil || msg != nil {
			return msg, err
		}
		res, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.sub.group(),
			Consumer: r.consumer,
			Streams:  []string{r.stream, ">"},
			Count:    1,
			Block:    time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}
		for _, stream := range res {
			if len(stream.Messages) > 0 {
				return r.message(stream.Messages[0]), nil
			}
		}
	}
}

// claim takes over one entry idle in another consumer's pending list, at most
// once per ClaimIdle window.
func (r *RedisSource) claim(ctx context.Context) (*Message, error) {
	idle := time.Duration(r.cfg.ClaimIdle) * time.Second
	if idle <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	if time.Since(r.lastClaim) < idle {
		r.mu.Unlock()
		return nil, nil
	}
	r.mu.Unlock()

	entries, _, err := r.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.stream,
		Group:    r.sub.group(),
		Consumer: r.consumer,
		MinIdle:  idle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("xautoclaim %s: %v", r.stream, err)
		entries = nil
	}
	if len(entries) == 0 {
		r.mu.Lock()
		r.lastClaim = time.Now()
		r.mu.Unlock()
		return nil, nil
	}
	return r.message(entries[0]), nil
}

func (r *RedisSource) message(entry redis.XMessage) *Message {
	data, _ := entry.Values[redisFieldData].(string)
	attempt := 1
	if v, ok := entry.Values[HeaderDeliveryAttempt].(string); ok {
		attempt = parseAttempt(v)
	}
	return NewMessage(entry.ID, []byte(data), attempt,
		func(ctx context.Context) error {
			return r.rdb.XAck(ctx, r.stream, r.sub.group(), entry.ID).Err()
		},
		func(ctx context.Context) error {
			return r.requeue(ctx, entry.ID, data, attempt)
		})
}

func (r *RedisSource) requeue(ctx context.Context, id, data string, attempt int) error {
	target := r.stream
	if attempt >= r.sub.maxDeliveries {
		target = r.cfg.deadLetterStream()
		r.logger.Warn("%s %s exhausted %d deliveries, moving to %s", r.stream, id, attempt, target)
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: target,
			Values: map[string]interface{}{
				redisFieldData:        data,
				HeaderDeliveryAttempt: strconv.Itoa(attempt + 1),
			},
		})
		pipe.XAck(ctx, r.stream, r.sub.group(), id)
		return nil
	})
	return err
}

func (r *RedisSource) Close() error {
	return r.rdb.Close()
}
