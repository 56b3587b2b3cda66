package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource_AckAndSeal(t *testing.T) {
	m := NewMemorySource(3)
	m.Push([]byte("a"))
	m.Push([]byte("b"))
	m.Seal()

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		msg, err := m.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Data))
		assert.Equal(t, 1, msg.Attempt)
		require.NoError(t, msg.Ack(ctx))
	}
	_, err := m.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, m.Acked(), 2)
}

func TestMemorySource_NackRedeliversUntilDead(t *testing.T) {
	m := NewMemorySource(2)
	m.Push([]byte("poison"))
	m.Seal()
	ctx := context.Background()

	first, err := m.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Nack(ctx))

	second, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, second.Nack(ctx))

	_, err = m.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, [][]byte{[]byte("poison")}, m.Dead())
	assert.Empty(t, m.Acked())
}

func TestMemorySource_SealWaitsForInflight(t *testing.T) {
	m := NewMemorySource(3)
	m.Push([]byte("x"))
	m.Seal()
	ctx := context.Background()

	msg, err := m.Receive(ctx)
	require.NoError(t, err)

	got := make(chan *Message, 1)
	go func() {
		next, _ := m.Receive(ctx)
		got <- next
	}()
	select {
	case <-got:
		t.Fatal("Receive returned while a message was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, msg.Nack(ctx))

	select {
	case next := <-got:
		require.NotNil(t, next)
		assert.Equal(t, "x", string(next.Data))
		require.NoError(t, next.Ack(ctx))
	case <-time.After(time.Second):
		t.Fatal("redelivery never arrived")
	}
}

func TestMemorySource_ReceiveHonoursContext(t *testing.T) {
	m := NewMemorySource(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessage_SettlesOnce(t *testing.T) {
	var acks, nacks int
	msg := NewMessage("1", nil, 0,
		func(context.Context) error { acks++; return nil },
		func(context.Context) error { nacks++; return nil })

	ctx := context.Background()
	require.NoError(t, msg.Ack(ctx))
	require.NoError(t, msg.Nack(ctx))
	require.NoError(t, msg.Ack(ctx))
	assert.Equal(t, 1, acks)
	assert.Zero(t, nacks)
	assert.Equal(t, 1, msg.Attempt)
}

func TestNewSource(t *testing.T) {
	s, err := NewSource(Config{Type: SourceTypeMemory, MaxDeliveries: 2})
	require.NoError(t, err)
	assert.IsType(t, &MemorySource{}, s)

	_, err = NewSource(Config{Type: "carrier-pigeon"})
	assert.Error(t, err)
}
