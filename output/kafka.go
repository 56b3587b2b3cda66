package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/chihqiang/dbxnotify/pkg/structx"
	"github.com/chihqiang/dbxnotify/types"
)

// HeaderIntentType carries the intent type on broker messages.
const HeaderIntentType = "x-intent-type"

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers" mapstructure:"brokers" env:"OUTPUT_KAFKA_BROKERS" envDefault:"127.0.0.1:9092"`
	Topic   string   `yaml:"topic" json:"topic" mapstructure:"topic" env:"OUTPUT_KAFKA_TOPIC" envDefault:"dbxnotify-intents"`
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOutput publishes intents keyed by intent key, so a redelivered intent
// lands on the same partition as its first copy.
type KafkaOutput struct {
	writer kafkaWriter
	config KafkaConfig
}

func NewKafkaOutput(cfg KafkaConfig) (*KafkaOutput, error) {
	cfg, err := structx.MergeWithDefaults[KafkaConfig](cfg)
	if err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	// fail fast when the first broker is unreachable
	conn, err := kafka.DialLeader(context.Background(), "tcp", cfg.Brokers[0], cfg.Topic, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka broker %s: %w", cfg.Brokers[0], err)
	}
	_ = conn.Close()
	return &KafkaOutput{writer: writer, config: cfg}, nil
}

func (k *KafkaOutput) Send(ctx context.Context, msg types.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderIntentType, Value: []byte(msg.Type)}},
		Time:    time.Now(),
	})
}

func (k *KafkaOutput) Close() error {
	return k.writer.Close()
}
