package testing

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// MockTransport implements core.Transport and records what is sent.
type MockTransport struct {
	ID        string
	Connected bool
	Sent      []*protocol.Message
	Closed    bool

	errorToSend error

	mu sync.Mutex
}

// NewMockTransport creates a connected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		ID:        "test-socket-" + uuid.NewString()[:8],
		Connected: true,
	}
}

// Send records a sent message.
func (mt *MockTransport) Send(msg *protocol.Message) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.errorToSend != nil {
		return mt.errorToSend
	}
	if mt.Closed {
		return core.ErrSocketClosed
	}
	mt.Sent = append(mt.Sent, msg)
	return nil
}

// Close marks the transport closed.
func (mt *MockTransport) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Closed = true
	mt.Connected = false
	return nil
}

// IsConnected returns the connection status.
func (mt *MockTransport) IsConnected() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.Connected && !mt.Closed
}

// LastSent returns the last sent message, or nil.
func (mt *MockTransport) LastSent() *protocol.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if len(mt.Sent) == 0 {
		return nil
	}
	return mt.Sent[len(mt.Sent)-1]
}

// SentCount returns the number of sent messages.
func (mt *MockTransport) SentCount() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.Sent)
}

// SentMessages returns a copy of all sent messages.
func (mt *MockTransport) SentMessages() []*protocol.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	result := make([]*protocol.Message, len(mt.Sent))
	copy(result, mt.Sent)
	return result
}

// SentEvents returns the messages sent with the given event, in order.
func (mt *MockTransport) SentEvents(event string) []*protocol.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	var out []*protocol.Message
	for _, msg := range mt.Sent {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

// SetError makes every following Send fail with err.
func (mt *MockTransport) SetError(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.errorToSend = err
}

// Reset forgets sent messages and reopens the transport.
func (mt *MockTransport) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Sent = nil
	mt.Closed = false
	mt.Connected = true
	mt.errorToSend = nil
}
