package output

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"

	"github.com/chihqiang/dbxnotify/pkg/structx"
	"github.com/chihqiang/dbxnotify/types"
)

type RocketMQConfig struct {
	Servers []string `yaml:"servers" json:"servers" mapstructure:"servers" env:"OUTPUT_ROCKETMQ_SERVERS" envDefault:"127.0.0.1:9876"`
	Topic   string   `yaml:"topic" json:"topic" mapstructure:"topic" env:"OUTPUT_ROCKETMQ_TOPIC" envDefault:"dbxnotify-intents"`
	Group   string   `yaml:"group" json:"group" mapstructure:"group" env:"OUTPUT_ROCKETMQ_GROUP" envDefault:"dbxnotify"`
	Retry   int      `yaml:"retry" json:"retry" mapstructure:"retry" env:"OUTPUT_ROCKETMQ_RETRY" envDefault:"2"`
}

type RocketMQOutput struct {
	cfg      RocketMQConfig
	producer rocketmq.Producer
}

func NewRocketMQOutput(cfg RocketMQConfig) (*RocketMQOutput, error) {
	cfg, err := structx.MergeWithDefaults[RocketMQConfig](cfg)
	if err != nil {
		return nil, err
	}
	p, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.Servers),
		producer.WithGroupName(cfg.Group),
		producer.WithRetry(cfg.Retry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create RocketMQ producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("failed to start RocketMQ producer: %w", err)
	}
	return &RocketMQOutput{cfg: cfg, producer: p}, nil
}

// Send tags the message with the intent type so consumers can filter by tag.
func (r *RocketMQOutput) Send(ctx context.Context, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m := primitive.NewMessage(r.cfg.Topic, data)
	m.WithTag(string(msg.Type))
	m.WithKeys([]string{msg.Key})
	res, err := r.producer.SendSync(ctx, m)
	if err != nil {
		return err
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("rocketmq send status %d for intent %s", res.Status, msg.Key)
	}
	return nil
}

func (r *RocketMQOutput) Close() error {
	return r.producer.Shutdown()
}
