package transport

import (
	"sync"

	"github.com/zhouzirui/chatbox/internal/protocol"
)

// Memory is an in-process Transport. Tests push inbound events into it and
// inspect what was emitted.
type Memory struct {
	mu      sync.Mutex
	events  chan protocol.Inbound
	done    chan struct{}
	pushing sync.WaitGroup
	sent    []protocol.Outbound
	closed  bool
}

// NewMemory returns a Memory transport whose event channel holds up to buffer
// undelivered events. Push blocks when the buffer is full.
func NewMemory(buffer int) *Memory {
	return &Memory{
		events: make(chan protocol.Inbound, buffer),
		done:   make(chan struct{}),
	}
}

// Push queues an inbound event for delivery. A Push blocked on a full buffer
// returns ErrClosed once the transport is closed.
func (m *Memory) Push(in protocol.Inbound) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pushing.Add(1)
	m.mu.Unlock()
	defer m.pushing.Done()

	select {
	case m.events <- in:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

func (m *Memory) Events() <-chan protocol.Inbound {
	return m.events
}

func (m *Memory) Emit(out protocol.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sent = append(m.sent, out)
	return nil
}

// Sent returns a copy of every emission so far.
func (m *Memory) Sent() []protocol.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Outbound(nil), m.sent...)
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	// events is closed only after every in-flight Push has returned.
	m.pushing.Wait()
	close(m.events)
	return nil
}
