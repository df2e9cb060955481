package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// Common socket errors.
var (
	ErrSocketClosed = errors.New("socket is closed")
	ErrSendFailed   = errors.New("failed to send message")
)

// TopicPrefix starts every live topic.
const TopicPrefix = "lv:"

// Transport is the part of a connection a socket needs.
type Transport interface {
	Send(msg *protocol.Message) error
	Close() error
	IsConnected() bool
}

// Socket represents the live connection of one mounted component.
type Socket struct {
	id        string
	connected bool
	transport Transport
	mu        sync.RWMutex
}

// NewSocket creates a new socket with the given ID and transport.
func NewSocket(id string, transport Transport) *Socket {
	return &Socket{id: id, connected: true, transport: transport}
}

// ID returns the socket's unique identifier.
func (s *Socket) ID() string {
	return s.id
}

// Topic returns the channel topic of the socket.
func (s *Socket) Topic() string {
	return TopicPrefix + s.id
}

// IsConnected returns true if the socket is connected.
func (s *Socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.transport != nil && s.transport.IsConnected()
}

// Send sends a message to the client. It is safe to call concurrently with
// Close.
func (s *Socket) Send(msg *protocol.Message) error {
	s.mu.RLock()
	connected := s.connected
	transport := s.transport
	s.mu.RUnlock()

	if !connected || transport == nil || !transport.IsConnected() {
		return ErrSocketClosed
	}

	if err := transport.Send(msg); err != nil {
		s.mu.RLock()
		stillConnected := s.connected
		s.mu.RUnlock()
		if !stillConnected {
			return ErrSocketClosed
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Push sends a server event on the socket's topic.
func (s *Socket) Push(event string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	return s.Send(protocol.PushMessage(s.Topic(), event, payload))
}

// DiffPayload is the patch format sent to clients: changed elements by id
// (h) or a full render (f).
type DiffPayload struct {
	Version   uint64            `json:"v"`
	HTMLSlots map[string]string `json:"h,omitempty"`
	Full      string            `json:"f,omitempty"`
}

// IsEmpty returns true if the payload has no changes.
func (d *DiffPayload) IsEmpty() bool {
	return len(d.HTMLSlots) == 0 && d.Full == ""
}

// SendDiff pushes a diff. Empty diffs are not sent.
func (s *Socket) SendDiff(payload *DiffPayload) error {
	if payload == nil || payload.IsEmpty() {
		return nil
	}
	msg := map[string]any{"v": payload.Version}
	if len(payload.HTMLSlots) > 0 {
		msg["h"] = payload.HTMLSlots
	}
	if payload.Full != "" {
		msg["f"] = payload.Full
	}
	return s.Push(protocol.EventDiff, msg)
}

// Close closes the socket connection.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.connected = false
	transport := s.transport
	s.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}

// SocketManager manages all active sockets.
type SocketManager struct {
	sockets map[string]*Socket
	mu      sync.RWMutex
}

// NewSocketManager creates a new socket manager.
func NewSocketManager() *SocketManager {
	return &SocketManager{sockets: make(map[string]*Socket)}
}

// Add registers a socket.
func (sm *SocketManager) Add(socket *Socket) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sockets[socket.ID()] = socket
}

// Remove unregisters a socket.
func (sm *SocketManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sockets, id)
}

// CloseAll closes every socket and empties the manager.
func (sm *SocketManager) CloseAll() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var errs []error
	for id, s := range sm.sockets {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(sm.sockets, id)
	}
	return errors.Join(errs...)
}
