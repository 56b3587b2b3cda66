package source

import (
	"context"
	"strconv"
	"sync"
)

// MemorySource is an in-process queue. Replays feed it from a file and tests
// drive it directly. Nacked messages go back to the tail of the queue until
// they reach the delivery limit, then land in Dead.
type MemorySource struct {
	mu            sync.Mutex
	queue         []*memoryEntry
	inflight      int
	sealed        bool
	closed        bool
	wake          chan struct{}
	seq           int
	maxDeliveries int

	acked [][]byte
	dead  [][]byte
}

type memoryEntry struct {
	id      string
	data    []byte
	attempt int
}

func NewMemorySource(maxDeliveries int) *MemorySource {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &MemorySource{wake: make(chan struct{}), maxDeliveries: maxDeliveries}
}

// Push enqueues one message.
func (m *MemorySource) Push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.queue = append(m.queue, &memoryEntry{id: strconv.Itoa(m.seq), data: data, attempt: 1})
	m.broadcast()
}

// Seal marks the end of input: Receive returns ErrClosed once everything
// pushed so far is settled.
func (m *MemorySource) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = true
	m.broadcast()
}

func (m *MemorySource) Receive(ctx context.Context) (*Message, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if len(m.queue) > 0 {
			entry := m.queue[0]
			m.queue = m.queue[1:]
			m.inflight++
			m.mu.Unlock()
			return m.message(entry), nil
		}
		if m.sealed && m.inflight == 0 {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

func (m *MemorySource) message(entry *memoryEntry) *Message {
	ack := func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.inflight--
		m.acked = append(m.acked, entry.data)
		m.broadcast()
		return nil
	}
	nack := func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.inflight--
		if entry.attempt >= m.maxDeliveries {
			m.dead = append(m.dead, entry.data)
		} else {
			m.queue = append(m.queue, &memoryEntry{id: entry.id, data: entry.data, attempt: entry.attempt + 1})
		}
		m.broadcast()
		return nil
	}
	return NewMessage(entry.id, entry.data, entry.attempt, ack, nack)
}

// Acked returns the payloads acked so far.
func (m *MemorySource) Acked() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.acked...)
}

// Dead returns the payloads that exhausted their deliveries.
func (m *MemorySource) Dead() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.dead...)
}

func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.broadcast()
	}
	return nil
}

// broadcast wakes every blocked Receive; callers hold mu.
func (m *MemorySource) broadcast() {
	close(m.wake)
	m.wake = make(chan struct{})
}
