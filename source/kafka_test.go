package source

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetTracker_CommitsContiguousPrefix(t *testing.T) {
	tr := newOffsetTracker()
	for _, off := range []int64{10, 11, 12} {
		tr.track(0, off)
	}
	tr.track(1, 5)

	_, ok := tr.complete(0, 11)
	assert.False(t, ok, "11 settled before 10 must not commit")

	off, ok := tr.complete(0, 10)
	require.True(t, ok)
	assert.Equal(t, int64(11), off)

	off, ok = tr.complete(1, 5)
	require.True(t, ok)
	assert.Equal(t, int64(5), off)

	off, ok = tr.complete(0, 12)
	require.True(t, ok)
	assert.Equal(t, int64(12), off)

	_, ok = tr.complete(7, 1)
	assert.False(t, ok)
}

type fakeKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (f *fakeKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return kafka.Message{}, errors.New("empty")
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

func (f *fakeKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeKafkaReader) Close() error { return nil }

type fakeKafkaWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error { return nil }

func newTestKafka(msgs ...kafka.Message) (*KafkaSource, *fakeKafkaReader, *fakeKafkaWriter) {
	r := &fakeKafkaReader{queue: msgs}
	w := &fakeKafkaWriter{}
	cfg := KafkaConfig{Topic: "cdc"}
	return newKafkaSource(r, w, cfg, subscription{name: "g", maxDeliveries: 3}, nil), r, w
}

func TestKafkaSource_AckCommits(t *testing.T) {
	k, r, _ := newTestKafka(
		kafka.Message{Topic: "cdc", Partition: 0, Offset: 1, Value: []byte("a")},
		kafka.Message{Topic: "cdc", Partition: 0, Offset: 2, Value: []byte("b")},
	)
	ctx := context.Background()
	a, err := k.Receive(ctx)
	require.NoError(t, err)
	b, err := k.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cdc/0/1", a.ID)

	require.NoError(t, b.Ack(ctx))
	assert.Empty(t, r.committed)
	require.NoError(t, a.Ack(ctx))
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(2), r.committed[0].Offset)
}

func TestKafkaSource_NackRepublishesWithAttempt(t *testing.T) {
	k, r, w := newTestKafka(kafka.Message{
		Topic: "cdc", Offset: 4, Key: []byte("k"), Value: []byte("v"),
		Headers: []kafka.Header{{Key: HeaderDeliveryAttempt, Value: []byte("2")}},
	})
	ctx := context.Background()
	msg, err := k.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, msg.Attempt)

	require.NoError(t, msg.Nack(ctx))
	require.Len(t, w.written, 1)
	assert.Equal(t, "cdc", w.written[0].Topic)
	assert.Equal(t, []kafka.Header{{Key: HeaderDeliveryAttempt, Value: []byte("3")}}, w.written[0].Headers)
	require.Len(t, r.committed, 1)
}

func TestKafkaSource_NackAtLimitGoesToDeadLetter(t *testing.T) {
	k, _, w := newTestKafka(kafka.Message{
		Topic: "cdc", Value: []byte("v"),
		Headers: []kafka.Header{{Key: HeaderDeliveryAttempt, Value: []byte("3")}},
	})
	ctx := context.Background()
	msg, err := k.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Nack(ctx))
	require.Len(t, w.written, 1)
	assert.Equal(t, "cdc.dlq", w.written[0].Topic)
}

func TestKafkaSource_FailedRepublishLeavesOffset(t *testing.T) {
	k, r, w := newTestKafka(kafka.Message{Topic: "cdc", Value: []byte("v")})
	w.err = errors.New("broker down")
	ctx := context.Background()
	msg, err := k.Receive(ctx)
	require.NoError(t, err)
	assert.Error(t, msg.Nack(ctx))
	assert.Empty(t, r.committed)
}
