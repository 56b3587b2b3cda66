package source

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/pkg/structx"
)

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers" mapstructure:"brokers" env:"SOURCE_KAFKA_BROKERS" envDefault:"127.0.0.1:9092"`
	Topic   string   `yaml:"topic" json:"topic" mapstructure:"topic" env:"SOURCE_KAFKA_TOPIC" envDefault:"dbxnotify.cdc"`
	// DeadLetterTopic receives messages that exhausted their deliveries.
	// Empty means Topic + ".dlq".
	DeadLetterTopic string `yaml:"dead_letter_topic" json:"dead_letter_topic" mapstructure:"dead_letter_topic" env:"SOURCE_KAFKA_DEAD_LETTER_TOPIC"`
	MaxWait         int    `yaml:"max_wait" json:"max_wait" mapstructure:"max_wait" env:"SOURCE_KAFKA_MAX_WAIT" envDefault:"1"`
}

func (c KafkaConfig) deadLetterTopic() string {
	if c.DeadLetterTopic != "" {
		return c.DeadLetterTopic
	}
	return c.Topic + ".dlq"
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes a topic in a consumer group. Kafka has no per-message
// nack: a nacked message is republished with its attempt count, or moved to
// the dead-letter topic once it reaches the limit, and then committed like an
// ack. Offsets are committed only up to the contiguous settled prefix of each
// partition.
type KafkaSource struct {
	reader  kafkaReader
	writer  kafkaWriter
	cfg     KafkaConfig
	sub     subscription
	logger  logx.ILogger
	tracker *offsetTracker
}

func NewKafkaSource(cfg KafkaConfig, sub subscription, logger logx.ILogger) (*KafkaSource, error) {
	cfg, err := structx.MergeWithDefaults[KafkaConfig](cfg)
	if err != nil {
		return nil, err
	}
	if sub.name == "" {
		return nil, fmt.Errorf("kafka source needs a subscription (consumer group)")
	}
	topic := cfg.Topic
	if sub.deadLetter {
		topic = cfg.deadLetterTopic()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     sub.group(),
		Topic:       topic,
		MaxWait:     time.Duration(cfg.MaxWait) * time.Second,
		StartOffset: kafka.FirstOffset,
	})
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return newKafkaSource(reader, writer, cfg, sub, logger), nil
}

func newKafkaSource(reader kafkaReader, writer kafkaWriter, cfg KafkaConfig, sub subscription, logger logx.ILogger) *KafkaSource {
	if logger == nil {
		logger = logx.Discard()
	}
	return &KafkaSource{
		reader:  reader,
		writer:  writer,
		cfg:     cfg,
		sub:     sub,
		logger:  logger.Named("kafka"),
		tracker: newOffsetTracker(),
	}
}

func (k *KafkaSource) Receive(ctx context.Context) (*Message, error) {
	m, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	k.tracker.track(m.Partition, m.Offset)
	attempt := 1
	for _, h := range m.Headers {
		if h.Key == HeaderDeliveryAttempt {
			attempt = parseAttempt(string(h.Value))
		}
	}
	id := fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	return NewMessage(id, m.Value, attempt,
		func(ctx context.Context) error { return k.commit(ctx, m) },
		func(ctx context.Context) error {
			if err := k.republish(ctx, m, attempt); err != nil {
				// leave the offset uncommitted so the group redelivers it after a restart
				return err
			}
			return k.commit(ctx, m)
		}), nil
}

func (k *KafkaSource) republish(ctx context.Context, m kafka.Message, attempt int) error {
	topic := m.Topic
	if attempt >= k.sub.maxDeliveries {
		topic = k.cfg.deadLetterTopic()
		k.logger.Warn("%s/%d/%d exhausted %d deliveries, moving to %s", m.Topic, m.Partition, m.Offset, attempt, topic)
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	for _, h := range m.Headers {
		if h.Key != HeaderDeliveryAttempt {
			headers = append(headers, h)
		}
	}
	headers = append(headers, kafka.Header{Key: HeaderDeliveryAttempt, Value: []byte(strconv.Itoa(attempt + 1))})
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	})
}

func (k *KafkaSource) commit(ctx context.Context, m kafka.Message) error {
	offset, ok := k.tracker.complete(m.Partition, m.Offset)
	if !ok {
		return nil
	}
	return k.reader.CommitMessages(ctx, kafka.Message{Topic: m.Topic, Partition: m.Partition, Offset: offset})
}

func (k *KafkaSource) Close() error {
	werr := k.writer.Close()
	if err := k.reader.Close(); err != nil {
		return err
	}
	return werr
}

// offsetTracker finds, per partition, the highest offset below which every
// fetched message is settled.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	// pending holds fetched offsets in fetch order, which is ascending
	pending []int64
	done    map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: map[int]*partitionOffsets{}}
}

func (t *offsetTracker) track(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partitions[partition]
	if !ok {
		p = &partitionOffsets{done: map[int64]bool{}}
		t.partitions[partition] = p
	}
	p.pending = append(p.pending, offset)
}

// complete marks offset settled and returns the last offset of the settled
// prefix when that prefix grew.
func (t *offsetTracker) complete(partition int, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.partitions[partition]
	if !ok {
		return 0, false
	}
	p.done[offset] = true
	var (
		last     int64
		advanced bool
	)
	for len(p.pending) > 0 && p.done[p.pending[0]] {
		last = p.pending[0]
		delete(p.done, last)
		p.pending = p.pending[1:]
		advanced = true
	}
	return last, advanced
}
