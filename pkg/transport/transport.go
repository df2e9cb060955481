// Package transport carries protocol messages between the live page and the
// server. The websocket transport is the only mechanism; frames are encoded
// with a configurable protocol.Codec.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// Common transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timeout")
)

// Transport is a bidirectional message connection to one client.
type Transport interface {
	// Send queues a message for the client.
	Send(msg *protocol.Message) error

	// Receive returns the channel of decoded incoming messages. It is never
	// closed; use Done to learn that the connection went away.
	Receive() <-chan *protocol.Message

	// Done is closed when the connection is closed.
	Done() <-chan struct{}

	Close() error
	IsConnected() bool
}

// Config holds transport settings.
type Config struct {
	// ReadTimeout bounds the wait for the next client frame. Clients
	// heartbeat well within it.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write and a blocked Send.
	WriteTimeout time.Duration

	// PingInterval is how often websocket pings are sent.
	PingInterval time.Duration

	// MaxMessageSize is the read limit in bytes. Edit events carry a
	// whole block, so this is generous.
	MaxMessageSize int64

	SendBufferSize    int
	ReceiveBufferSize int

	// AllowedOrigins are doublestar patterns matched against the Origin
	// header of cross-origin upgrade requests, e.g. "http://localhost:*".
	AllowedOrigins []string

	// Codec encodes frames. Nil means protocol.DefaultCodec().
	Codec protocol.Codec

	Logger logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4 << 20,
		SendBufferSize:    64,
		ReceiveBufferSize: 64,
	}
}

func (c *Config) codec() protocol.Codec {
	if c.Codec == nil {
		return protocol.DefaultCodec()
	}
	return c.Codec
}

func (c *Config) logger() logging.Logger {
	if c.Logger == nil {
		return logging.NopLogger{}
	}
	return c.Logger
}

// BaseTransport holds the channels and connection flag shared by transport
// implementations.
type BaseTransport struct {
	config    *Config
	connected bool
	sendCh    chan *protocol.Message
	recvCh    chan *protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewBaseTransport creates a new base transport.
func NewBaseTransport(config *Config) *BaseTransport {
	if config == nil {
		config = DefaultConfig()
	}
	return &BaseTransport{
		config:  config,
		sendCh:  make(chan *protocol.Message, config.SendBufferSize),
		recvCh:  make(chan *protocol.Message, config.ReceiveBufferSize),
		closeCh: make(chan struct{}),
	}
}

// IsConnected returns the connection status.
func (t *BaseTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetConnected updates the connection status.
func (t *BaseTransport) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// Receive returns the receive channel.
func (t *BaseTransport) Receive() <-chan *protocol.Message {
	return t.recvCh
}

// Done returns a channel closed on Close.
func (t *BaseTransport) Done() <-chan struct{} {
	return t.closeCh
}

// Close marks the transport closed. It is safe to call more than once.
func (t *BaseTransport) Close() error {
	t.closeOnce.Do(func() {
		t.SetConnected(false)
		close(t.closeCh)
	})
	return nil
}

// Manager tracks the open transports so they can be closed together on
// shutdown.
type Manager struct {
	transports map[string]Transport
	mu         sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{transports: make(map[string]Transport)}
}

// Add registers a transport.
func (m *Manager) Add(id string, t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[id] = t
}

// Remove unregisters a transport.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transports, id)
}

// CloseAll closes and forgets every transport.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.transports, id)
	}
	return errors.Join(errs...)
}
