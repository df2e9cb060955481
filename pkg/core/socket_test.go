package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	connected bool
	messages  []*protocol.Message
	mu        sync.Mutex
}

func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

func (m *MockTransport) Send(msg *protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrSocketClosed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Messages() []*protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*protocol.Message, len(m.messages))
	copy(result, m.messages)
	return result
}

func TestNewSocket(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if socket.ID() != "test-id" {
		t.Errorf("expected ID 'test-id', got '%s'", socket.ID())
	}
	if socket.Topic() != "lv:test-id" {
		t.Errorf("expected topic 'lv:test-id', got '%s'", socket.Topic())
	}
	if !socket.IsConnected() {
		t.Error("expected socket to be connected")
	}
}

func TestSocket_Push(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.Push("typeset", map[string]any{"targets": []string{"showpar0"}}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Event != "typeset" || messages[0].Topic != "lv:test-id" || messages[0].Type != protocol.MsgPush {
		t.Errorf("unexpected message %+v", messages[0])
	}
}

func TestSocket_PushNilPayload(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.Push("finished", nil); err != nil {
		t.Fatal(err)
	}
	if p := transport.Messages()[0].Payload; p == nil {
		t.Error("payload should default to an empty map")
	}
}

func TestSocket_Send_Closed(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	socket.Close()

	if err := socket.Push("test", nil); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("expected ErrSocketClosed, got %v", err)
	}
}

type failingTransport struct{ MockTransport }

func (f *failingTransport) Send(*protocol.Message) error { return errors.New("boom") }

func TestSocket_Send_Failure(t *testing.T) {
	socket := NewSocket("test-id", &failingTransport{MockTransport{connected: true}})

	if err := socket.Push("test", nil); !errors.Is(err, ErrSendFailed) {
		t.Errorf("expected ErrSendFailed, got %v", err)
	}
}

func TestSocket_Send_Concurrent(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	const goroutines = 50
	const messagesPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				socket.Push("test", map[string]any{"id": id, "msg": j})
			}
		}(i)
	}
	wg.Wait()

	if got, want := len(transport.Messages()), goroutines*messagesPerGoroutine; got != want {
		t.Errorf("expected %d messages, got %d", want, got)
	}
}

func TestSocket_SendDiff(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	payload := &DiffPayload{
		Version:   3,
		HTMLSlots: map[string]string{"showpar0": `<p id="showpar0">Hi</p>`},
	}
	if err := socket.SendDiff(payload); err != nil {
		t.Fatalf("SendDiff: %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	want := map[string]any{
		"v": uint64(3),
		"h": map[string]string{"showpar0": `<p id="showpar0">Hi</p>`},
	}
	if diff := cmp.Diff(want, messages[0].Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSocket_SendDiff_Full(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.SendDiff(&DiffPayload{Version: 1, Full: "<body></body>"}); err != nil {
		t.Fatal(err)
	}
	if got := transport.Messages()[0].Payload["f"]; got != "<body></body>" {
		t.Errorf("expected full render in payload, got %v", got)
	}
}

func TestSocket_SendDiff_Empty(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.SendDiff(nil); err != nil {
		t.Errorf("nil diff: %v", err)
	}
	if err := socket.SendDiff(&DiffPayload{Version: 1}); err != nil {
		t.Errorf("empty diff: %v", err)
	}
	if len(transport.Messages()) != 0 {
		t.Error("expected no messages for empty diffs")
	}
}

func TestSocketManager_CloseAll(t *testing.T) {
	sm := NewSocketManager()
	transports := make([]*MockTransport, 3)
	for i := range transports {
		transports[i] = NewMockTransport()
		sm.Add(NewSocket(fmt.Sprintf("socket-%d", i), transports[i]))
	}
	sm.Remove("socket-1")

	if err := sm.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if transports[0].IsConnected() || transports[2].IsConnected() {
		t.Error("CloseAll should close registered transports")
	}
	if !transports[1].IsConnected() {
		t.Error("removed sockets are not closed")
	}
	if err := sm.CloseAll(); err != nil {
		t.Errorf("second CloseAll: %v", err)
	}
}

func TestTerminateReasonString(t *testing.T) {
	if TerminateShutdown.String() != "shutdown" || TerminateReason(42).String() != "unknown" {
		t.Error("unexpected TerminateReason strings")
	}
}
