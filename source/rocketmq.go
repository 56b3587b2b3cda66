package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"

	"github.com/chihqiang/dbxnotify/pkg/structx"
)

type RocketMQConfig struct {
	Servers []string `yaml:"servers" json:"servers" mapstructure:"servers" env:"SOURCE_ROCKETMQ_SERVERS" envDefault:"127.0.0.1:9876"`
	Topic   string   `yaml:"topic" json:"topic" mapstructure:"topic" env:"SOURCE_ROCKETMQ_TOPIC" envDefault:"dbxnotify-cdc"`
	// DeadLetterTopic is read in dead-letter mode; %DLQ%<subscription> when empty.
	DeadLetterTopic string `yaml:"dead_letter_topic" json:"dead_letter_topic" mapstructure:"dead_letter_topic" env:"SOURCE_ROCKETMQ_DEAD_LETTER_TOPIC"`
}

type rocketPushConsumer interface {
	Subscribe(topic string, selector consumer.MessageSelector, f func(context.Context, ...*primitive.MessageExt) (consumer.ConsumeResult, error)) error
	Start() error
	Shutdown() error
}

// RocketMQSource bridges the push consumer to Receive: the consume callback
// blocks until the runtime settles the message. The broker reconsumes
// nacked messages with backoff and moves them to %DLQ%<group> after
// max_deliveries.
type RocketMQSource struct {
	consumer rocketPushConsumer
	messages chan *Message
	done     chan struct{}
	once     sync.Once
}

func NewRocketMQSource(cfg RocketMQConfig, sub subscription) (*RocketMQSource, error) {
	cfg, err := structx.MergeWithDefaults[RocketMQConfig](cfg)
	if err != nil {
		return nil, err
	}
	if sub.name == "" {
		return nil, fmt.Errorf("rocketmq source needs a subscription (consumer group)")
	}
	c, err := rocketmq.NewPushConsumer(
		consumer.WithGroupName(sub.group()),
		consumer.WithNsResolver(primitive.NewPassthroughResolver(cfg.Servers)),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeMessageBatchMaxSize(1),
		// reconsume count excludes the first delivery
		consumer.WithMaxReconsumeTimes(int32(sub.maxDeliveries-1)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create RocketMQ consumer: %w", err)
	}
	topic := cfg.Topic
	if sub.deadLetter {
		topic = cfg.DeadLetterTopic
		if topic == "" {
			topic = "%DLQ%" + sub.name
		}
	}
	return newRocketMQSource(c, topic)
}

func newRocketMQSource(c rocketPushConsumer, topic string) (*RocketMQSource, error) {
	s := &RocketMQSource{
		consumer: c,
		messages: make(chan *Message),
		done:     make(chan struct{}),
	}
	if err := c.Subscribe(topic, consumer.MessageSelector{}, s.consume); err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", topic, err)
	}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start RocketMQ consumer: %w", err)
	}
	return s, nil
}

func (s *RocketMQSource) consume(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, m := range msgs {
		settled := make(chan bool, 1)
		msg := NewMessage(m.MsgId, m.Body, int(m.ReconsumeTimes)+1,
			func(context.Context) error {
				settled <- true
				return nil
			},
			func(context.Context) error {
				settled <- false
				return nil
			})
		select {
		case s.messages <- msg:
		case <-s.done:
			return consumer.ConsumeRetryLater, nil
		case <-ctx.Done():
			return consumer.ConsumeRetryLater, nil
		}
		select {
		case ok := <-settled:
			if !ok {
				return consumer.ConsumeRetryLater, nil
			}
		case <-s.done:
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

func (s *RocketMQSource) Receive(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case msg := <-s.messages:
		return msg, nil
	}
}

func (s *RocketMQSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.consumer.Shutdown()
	})
	return err
}
