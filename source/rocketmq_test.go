package source

import (
	"context"
	"testing"
	"time"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePushConsumer struct {
	topic    string
	handler  func(context.Context, ...*primitive.MessageExt) (consumer.ConsumeResult, error)
	started  bool
	shutdown bool
}

func (f *fakePushConsumer) Subscribe(topic string, _ consumer.MessageSelector, h func(context.Context, ...*primitive.MessageExt) (consumer.ConsumeResult, error)) error {
	f.topic = topic
	f.handler = h
	return nil
}

func (f *fakePushConsumer) Start() error {
	f.started = true
	return nil
}

func (f *fakePushConsumer) Shutdown() error {
	f.shutdown = true
	return nil
}

func deliver(f *fakePushConsumer, body string, reconsumed int32) <-chan consumer.ConsumeResult {
	out := make(chan consumer.ConsumeResult, 1)
	go func() {
		msg := &primitive.MessageExt{MsgId: "m1", ReconsumeTimes: reconsumed}
		msg.Body = []byte(body)
		res, _ := f.handler(context.Background(), msg)
		out <- res
	}()
	return out
}

func TestRocketMQSource_AckAndNack(t *testing.T) {
	f := &fakePushConsumer{}
	s, err := newRocketMQSource(f, "cdc")
	require.NoError(t, err)
	assert.True(t, f.started)
	assert.Equal(t, "cdc", f.topic)
	ctx := context.Background()

	result := deliver(f, "a", 0)
	msg, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(msg.Data))
	assert.Equal(t, 1, msg.Attempt)
	require.NoError(t, msg.Ack(ctx))
	assert.Equal(t, consumer.ConsumeSuccess, <-result)

	result = deliver(f, "b", 2)
	msg, err = s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, msg.Attempt)
	require.NoError(t, msg.Nack(ctx))
	assert.Equal(t, consumer.ConsumeRetryLater, <-result)
}

func TestRocketMQSource_CloseReleasesCallback(t *testing.T) {
	f := &fakePushConsumer{}
	s, err := newRocketMQSource(f, "cdc")
	require.NoError(t, err)

	result := deliver(f, "a", 0)
	_, err = s.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	select {
	case res := <-result:
		assert.Equal(t, consumer.ConsumeRetryLater, res)
	case <-time.After(time.Second):
		t.Fatal("callback still blocked after Close")
	}
	assert.True(t, f.shutdown)
	_, err = s.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
