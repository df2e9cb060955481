// Package core provides the live component model: a stateful server-side
// component mounted per connection, the socket it talks through, and the
// optional hooks the router uses to compute diffs.
package core

import (
	"context"
	"io"
)

// Component is the interface that all live components must implement.
// Components are stateful server-side entities that handle user interactions
// and render HTML updates through a websocket connection.
type Component interface {
	// Name returns the identifier for this component type.
	Name() string

	// Mount is called when the component is first connected.
	// It receives the connection parameters and session data.
	Mount(ctx context.Context, params Params, session Session) error

	// Render returns the current HTML representation of the component.
	Render(ctx context.Context) Renderer

	// HandleEvent processes a user interaction. The event string
	// identifies the action and payload contains its data.
	HandleEvent(ctx context.Context, event string, payload map[string]any) error

	// Terminate is called when the component is being destroyed.
	Terminate(ctx context.Context, reason TerminateReason) error
}

// Renderer is the interface for rendering HTML content.
type Renderer interface {
	Render(ctx context.Context, w io.Writer) error
}

// RendererFunc is an adapter to allow ordinary functions to be used as Renderers.
type RendererFunc func(ctx context.Context, w io.Writer) error

func (f RendererFunc) Render(ctx context.Context, w io.Writer) error {
	return f(ctx, w)
}

// Params contains URL parameters and query strings from the connection.
type Params map[string]string

// Session contains data passed from the HTTP handler.
type Session map[string]any

// TerminateReason indicates why a component is being terminated.
type TerminateReason int

const (
	// TerminateNormal indicates clean disconnection.
	TerminateNormal TerminateReason = iota
	// TerminateShutdown indicates server shutdown.
	TerminateShutdown
	// TerminateError indicates termination due to an error.
	TerminateError
)

func (r TerminateReason) String() string {
	switch r {
	case TerminateNormal:
		return "normal"
	case TerminateShutdown:
		return "shutdown"
	case TerminateError:
		return "error"
	default:
		return "unknown"
	}
}

// BaseComponent provides default implementations for Component methods.
// Embed it to avoid implementing unused methods.
type BaseComponent struct {
	socket *Socket
}

// SetSocket sets the socket for the component (called by the router).
func (bc *BaseComponent) SetSocket(s *Socket) {
	bc.socket = s
}

// Socket returns the component's socket connection. It is nil when the
// component is rendered over plain HTTP.
func (bc *BaseComponent) Socket() *Socket {
	return bc.socket
}

// Name returns an empty string (override in your component).
func (bc *BaseComponent) Name() string {
	return ""
}

// Mount does nothing by default.
func (bc *BaseComponent) Mount(ctx context.Context, params Params, session Session) error {
	return nil
}

// HandleEvent does nothing by default.
func (bc *BaseComponent) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	return nil
}

// Terminate does nothing by default.
func (bc *BaseComponent) Terminate(ctx context.Context, reason TerminateReason) error {
	return nil
}

// SlotProvider lets a component declare the independently patchable parts
// of its page. Slots are keyed by element id and hold the element's outer
// HTML; frame is the markup outside every slot. The router hashes both and
// pushes only changed slots, or a full render when the frame or the set of
// slot ids changed.
type SlotProvider interface {
	Slots() (slots map[string]string, frame string)
}

// AfterRenderer is implemented by components that must push follow-up
// events once a diff has been sent, for example asking the client to
// post-process the patched elements.
type AfterRenderer interface {
	AfterRender(ctx context.Context) error
}
