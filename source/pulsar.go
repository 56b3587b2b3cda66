package source

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/chihqiang/dbxnotify/pkg/structx"
)

type PulsarConfig struct {
	URL   string `yaml:"url" json:"url" mapstructure:"url" env:"SOURCE_PULSAR_URL" envDefault:"pulsar://localhost:6650"`
	Topic string `yaml:"topic" json:"topic" mapstructure:"topic" env:"SOURCE_PULSAR_TOPIC" envDefault:"dbxnotify-cdc"`
	Token string `yaml:"token" json:"token" mapstructure:"token" env:"SOURCE_PULSAR_TOKEN"`
	// DeadLetterTopic is <topic>-<subscription>-DLQ when empty, the client default.
	DeadLetterTopic string `yaml:"dead_letter_topic" json:"dead_letter_topic" mapstructure:"dead_letter_topic" env:"SOURCE_PULSAR_DEAD_LETTER_TOPIC"`
	// NackRedeliveryDelay in seconds.
	NackRedeliveryDelay int `yaml:"nack_redelivery_delay" json:"nack_redelivery_delay" mapstructure:"nack_redelivery_delay" env:"SOURCE_PULSAR_NACK_REDELIVERY_DELAY" envDefault:"10"`
	OperationTimeout    int `yaml:"operation_timeout" json:"operation_timeout" mapstructure:"operation_timeout" env:"SOURCE_PULSAR_OPERATION_TIMEOUT" envDefault:"30"`
	ConnectionTimeout   int `yaml:"connection_timeout" json:"connection_timeout" mapstructure:"connection_timeout" env:"SOURCE_PULSAR_CONNECTION_TIMEOUT" envDefault:"30"`
}

func (c PulsarConfig) deadLetterTopic(subscription string) string {
	if c.DeadLetterTopic != "" {
		return c.DeadLetterTopic
	}
	return fmt.Sprintf("%s-%s-DLQ", c.Topic, subscription)
}

type pulsarConsumer interface {
	Receive(ctx context.Context) (pulsar.Message, error)
	Ack(msg pulsar.Message) error
	Nack(msg pulsar.Message)
	Close()
}

// PulsarSource is a shared subscription. Pulsar itself delays nacked
// redeliveries and routes messages to the dead-letter topic after
// max_deliveries.
type PulsarSource struct {
	client   pulsar.Client
	consumer pulsarConsumer
}

func NewPulsarSource(cfg PulsarConfig, sub subscription) (*PulsarSource, error) {
	cfg, err := structx.MergeWithDefaults[PulsarConfig](cfg)
	if err != nil {
		return nil, err
	}
	if sub.name == "" {
		return nil, fmt.Errorf("pulsar source needs a subscription")
	}
	clientOptions := pulsar.ClientOptions{
		URL:               cfg.URL,
		OperationTimeout:  time.Duration(cfg.OperationTimeout) * time.Second,
		ConnectionTimeout: time.Duration(cfg.ConnectionTimeout) * time.Second,
	}
	if cfg.Token != "" {
		clientOptions.Authentication = pulsar.NewAuthenticationToken(cfg.Token)
	}
	client, err := pulsar.NewClient(clientOptions)
	if err != nil {
		return nil, err
	}
	consumer, err := client.Subscribe(pulsarConsumerOptions(cfg, sub))
	if err != nil {
		client.Close()
		return nil, err
	}
	return &PulsarSource{client: client, consumer: consumer}, nil
}

func pulsarConsumerOptions(cfg PulsarConfig, sub subscription) pulsar.ConsumerOptions {
	dlq := cfg.deadLetterTopic(sub.name)
	if sub.deadLetter {
		return pulsar.ConsumerOptions{
			Topic:            dlq,
			SubscriptionName: sub.group(),
			Type:             pulsar.Shared,
		}
	}
	return pulsar.ConsumerOptions{
		Topic:               cfg.Topic,
		SubscriptionName:    sub.name,
		Type:                pulsar.Shared,
		NackRedeliveryDelay: time.Duration(cfg.NackRedeliveryDelay) * time.Second,
		DLQ: &pulsar.DLQPolicy{
			MaxDeliveries:   uint32(sub.maxDeliveries),
			DeadLetterTopic: dlq,
		},
	}
}

func (p *PulsarSource) Receive(ctx context.Context) (*Message, error) {
	m, err := p.consumer.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return NewMessage(m.ID().String(), m.Payload(), int(m.RedeliveryCount())+1,
		func(context.Context) error { return p.consumer.Ack(m) },
		func(context.Context) error {
			p.consumer.Nack(m)
			return nil
		}), nil
}

func (p *PulsarSource) Close() error {
	if p.consumer != nil {
		p.consumer.Close()
	}
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
