package output

import (
	"context"
	"errors"
	"time"

	"github.com/chihqiang/dbxnotify/types"
)

type OutputType string

var (
	OutputTypeStdout   OutputType = "stdout"
	OutputTypeRedis    OutputType = "redis"
	OutputTypeKafka    OutputType = "kafka"
	OutputTypeRabbitMQ OutputType = "rabbitmq"
	OutputTypeRocketMQ OutputType = "rocketmq"
	OutputTypePulsar   OutputType = "pulsar"
	OutputTypeDatabase OutputType = "database"
	outputs                       = map[OutputType]func(Config) (IOutput, error){}
)

// ErrDuplicate is returned when the sink already holds a message with the same
// key. Callers treat it as delivered.
var ErrDuplicate = errors.New("output: duplicate intent")

func init() {
	Register(OutputTypeStdout, func(config Config) (IOutput, error) {
		return NewStdoutOutput()
	})
	Register(OutputTypeRedis, func(cfg Config) (IOutput, error) {
		return NewRedisOutput(cfg.Redis)
	})
	Register(OutputTypeKafka, func(cfg Config) (IOutput, error) {
		return NewKafkaOutput(cfg.Kafka)
	})
	Register(OutputTypeRabbitMQ, func(cfg Config) (IOutput, error) {
		return NewRabbitMQOutput(cfg.RabbitMQ)
	})
	Register(OutputTypeRocketMQ, func(cfg Config) (IOutput, error) {
		return NewRocketMQOutput(cfg.RocketMQ)
	})
	Register(OutputTypePulsar, func(cfg Config) (IOutput, error) {
		return NewPulsarOutput(cfg.Pulsar)
	})
	Register(OutputTypeDatabase, func(cfg Config) (IOutput, error) {
		return NewDatabaseOutput(cfg.Database)
	})
}

func Register(outputType OutputType, fn func(Config) (IOutput, error)) {
	outputs[outputType] = fn
}

type Config struct {
	Type     OutputType     `yaml:"type" json:"type" mapstructure:"type" env:"OUTPUT_TYPE" envDefault:"stdout"`
	Redis    RedisConfig    `yaml:"redis" json:"redis" mapstructure:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka" mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" json:"rabbitmq" mapstructure:"rabbitmq"`
	RocketMQ RocketMQConfig `yaml:"rocketmq" json:"rocketmq" mapstructure:"rocketmq"`
	Pulsar   PulsarConfig   `yaml:"pulsar" json:"pulsar" mapstructure:"pulsar"`
	Database DatabaseConfig `yaml:"database" json:"database" mapstructure:"database"`
}

// IOutput hands encoded intents to the notification collaborator.
type IOutput interface {
	// Send publishes one message. Implementations return ErrDuplicate when the
	// sink rejected the key as already present.
	Send(ctx context.Context, msg types.Message) error
	// Close Closes the resource
	Close() error
}

func NewOutput(cfg Config) (IOutput, error) {
	creator, exists := outputs[cfg.Type]
	if !exists {
		// Default to Stdout output
		return NewStdoutOutput()
	}
	return creator(cfg)
}

// SendWithRetry retries transient send failures with a linear backoff.
// ErrDuplicate and context cancellation are not retried.
func SendWithRetry(ctx context.Context, output IOutput, msg types.Message, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := output.Send(ctx, msg)
		if err == nil || errors.Is(err, ErrDuplicate) {
			return err
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return lastErr
}
