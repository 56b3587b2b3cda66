// Package source adapts subscription brokers to a pull-style message stream
// with explicit per-message settlement.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/store"
)

// HeaderDeliveryAttempt carries the delivery count on sources that redeliver
// by republishing.
const HeaderDeliveryAttempt = "x-delivery-attempt"

// ErrClosed is returned by Receive once the source has nothing more to give.
var ErrClosed = errors.New("source: closed")

type SourceType string

var (
	SourceTypeKafka    SourceType = "kafka"
	SourceTypeRedis    SourceType = "redis"
	SourceTypeRabbitMQ SourceType = "rabbitmq"
	SourceTypePulsar   SourceType = "pulsar"
	SourceTypeRocketMQ SourceType = "rocketmq"
	SourceTypeMysql    SourceType = "mysql"
	SourceTypeMemory   SourceType = "memory"
	sources                       = map[SourceType]func(Config, *Options) (ISource, error){}
)

func init() {
	Register(SourceTypeKafka, func(cfg Config, o *Options) (ISource, error) {
		return NewKafkaSource(cfg.Kafka, cfg.subscription(), o.Logger)
	})
	Register(SourceTypeRedis, func(cfg Config, o *Options) (ISource, error) {
		return NewRedisSource(cfg.Redis, cfg.subscription(), o.Logger)
	})
	Register(SourceTypeRabbitMQ, func(cfg Config, o *Options) (ISource, error) {
		return NewRabbitMQSource(cfg.RabbitMQ, cfg.subscription())
	})
	Register(SourceTypePulsar, func(cfg Config, o *Options) (ISource, error) {
		return NewPulsarSource(cfg.Pulsar, cfg.subscription())
	})
	Register(SourceTypeRocketMQ, func(cfg Config, o *Options) (ISource, error) {
		return NewRocketMQSource(cfg.RocketMQ, cfg.subscription())
	})
	Register(SourceTypeMysql, func(cfg Config, o *Options) (ISource, error) {
		s, err := NewMySQLSource(cfg.Mysql, cfg.subscription().maxDeliveries, o.Logger)
		if err != nil {
			return nil, err
		}
		if o.Store == nil {
			return nil, fmt.Errorf("mysql source needs a position store")
		}
		s.WithStore(o.Store)
		return s, nil
	})
	Register(SourceTypeMemory, func(cfg Config, o *Options) (ISource, error) {
		return NewMemorySource(cfg.MaxDeliveries), nil
	})
}

// Register adds or replaces the constructor for a source type.
func Register(sourceType SourceType, fn func(Config, *Options) (ISource, error)) {
	sources[sourceType] = fn
}

// Config selects and configures the subscription the runtime consumes.
type Config struct {
	Type SourceType `yaml:"type" json:"type" mapstructure:"type" env:"SOURCE_TYPE" envDefault:"kafka"`
	// Subscription names the consumer identity: kafka group, redis consumer group,
	// rabbitmq queue, pulsar subscription or rocketmq consumer group.
	Subscription string `yaml:"subscription" json:"subscription" mapstructure:"subscription" env:"SOURCE_SUBSCRIPTION" envDefault:"dbxnotify"`
	// MaxDeliveries bounds redelivery on sources that republish nacked messages.
	MaxDeliveries int `yaml:"max_deliveries" json:"max_deliveries" mapstructure:"max_deliveries" env:"SOURCE_MAX_DELIVERIES" envDefault:"5"`
	// DeadLetter switches the source to the dead-letter destination of
	// Subscription, consumed under the group <subscription>-deadletter.
	DeadLetter bool `yaml:"-" json:"-" mapstructure:"-"`

	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka" mapstructure:"kafka"`
	Redis    RedisConfig    `yaml:"redis" json:"redis" mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" json:"rabbitmq" mapstructure:"rabbitmq"`
	Pulsar   PulsarConfig   `yaml:"pulsar" json:"pulsar" mapstructure:"pulsar"`
	RocketMQ RocketMQConfig `yaml:"rocketmq" json:"rocketmq" mapstructure:"rocketmq"`
	Mysql    MysqlConfig    `yaml:"mysql" json:"mysql" mapstructure:"mysql"`
}

type subscription struct {
	name          string
	maxDeliveries int
	deadLetter    bool
}

// group is the consumer identity used on the broker.
func (s subscription) group() string {
	if s.deadLetter {
		return s.name + "-deadletter"
	}
	return s.name
}

func (c Config) subscription() subscription {
	limit := c.MaxDeliveries
	if limit <= 0 {
		limit = 5
	}
	return subscription{name: c.Subscription, maxDeliveries: limit, deadLetter: c.DeadLetter}
}

// ISource is one subscription. Receive blocks until a message is available,
// the context ends, or the source is closed (ErrClosed). Every received
// message must be settled with Ack or Nack.
type ISource interface {
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Options carries the collaborators some sources need.
type Options struct {
	Store  store.IStore
	Logger logx.ILogger
}

type Option func(*Options)

// WithStore gives position-tracking sources somewhere to persist their position.
func WithStore(s store.IStore) Option {
	return func(o *Options) { o.Store = s }
}

func WithLogger(logger logx.ILogger) Option {
	return func(o *Options) { o.Logger = logger }
}

// NewSource builds the source named by cfg.Type.
func NewSource(cfg Config, opts ...Option) (ISource, error) {
	o := &Options{Logger: logx.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	creator, ok := sources[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
	return creator(cfg, o)
}

// Message is one delivery. Ack and Nack settle it; only the first call has
// an effect.
type Message struct {
	ID      string
	Data    []byte
	Attempt int

	once sync.Once
	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

func NewMessage(id string, data []byte, attempt int, ack, nack func(ctx context.Context) error) *Message {
	if attempt < 1 {
		attempt = 1
	}
	return &Message{ID: id, Data: data, Attempt: attempt, ack: ack, nack: nack}
}

func (m *Message) Ack(ctx context.Context) error {
	return m.settle(ctx, m.ack)
}

// Nack hands the message back for redelivery.
func (m *Message) Nack(ctx context.Context) error {
	return m.settle(ctx, m.nack)
}

func (m *Message) settle(ctx context.Context, fn func(context.Context) error) (err error) {
	m.once.Do(func() {
		if fn != nil {
			err = fn(ctx)
		}
	})
	return err
}

func parseAttempt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
