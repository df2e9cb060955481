// Package testing provides a harness for driving live components without a
// browser or a websocket connection.
package testing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// LiveViewTest mounts a component on a mock transport and replays events
// the way the router does: HandleEvent, render, then the after-render hook.
type LiveViewTest struct {
	component core.Component
	transport *MockTransport
	socket    *core.Socket
	params    core.Params
	session   core.Session
	rendered  string
	t         testing.TB
}

// MountOption configures the test mount.
type MountOption func(*LiveViewTest)

// WithParams sets mount parameters.
func WithParams(params core.Params) MountOption {
	return func(lvt *LiveViewTest) { lvt.params = params }
}

// WithSession sets session data.
func WithSession(session core.Session) MountOption {
	return func(lvt *LiveViewTest) { lvt.session = session }
}

// Mount creates and mounts a component for testing.
func Mount(t testing.TB, comp core.Component, opts ...MountOption) *LiveViewTest {
	t.Helper()

	lvt := &LiveViewTest{
		component: comp,
		transport: NewMockTransport(),
		params:    core.Params{},
		session:   core.Session{},
		t:         t,
	}
	for _, opt := range opts {
		opt(lvt)
	}

	lvt.socket = core.NewSocket(lvt.transport.ID, lvt.transport)
	if setter, ok := comp.(interface{ SetSocket(*core.Socket) }); ok {
		setter.SetSocket(lvt.socket)
	}

	if err := comp.Mount(lvt.context(), lvt.params, lvt.session); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	lvt.render()
	lvt.afterRender()

	t.Cleanup(func() { comp.Terminate(context.Background(), core.TerminateNormal) })
	return lvt
}

func (lvt *LiveViewTest) context() context.Context {
	return context.Background()
}

// Event sends a client event and re-renders. Errors fail the test.
func (lvt *LiveViewTest) Event(event string, payload map[string]any) *LiveViewTest {
	lvt.t.Helper()
	if err := lvt.TryEvent(event, payload); err != nil {
		lvt.t.Errorf("HandleEvent(%s) failed: %v", event, err)
	}
	return lvt
}

// TryEvent sends a client event and returns the component's error.
func (lvt *LiveViewTest) TryEvent(event string, payload map[string]any) error {
	lvt.t.Helper()
	if payload == nil {
		payload = map[string]any{}
	}
	if err := lvt.component.HandleEvent(lvt.context(), event, payload); err != nil {
		return err
	}
	lvt.render()
	lvt.afterRender()
	return nil
}

func (lvt *LiveViewTest) render() {
	lvt.t.Helper()
	ctx := lvt.context()

	var buf bytes.Buffer
	if err := lvt.component.Render(ctx).Render(ctx, &buf); err != nil {
		lvt.t.Fatalf("Render failed: %v", err)
	}
	lvt.rendered = buf.String()
}

func (lvt *LiveViewTest) afterRender() {
	lvt.t.Helper()
	if ar, ok := lvt.component.(core.AfterRenderer); ok {
		if err := ar.AfterRender(lvt.context()); err != nil {
			lvt.t.Errorf("AfterRender failed: %v", err)
		}
	}
}

// Rendered returns the current rendered HTML.
func (lvt *LiveViewTest) Rendered() string {
	return lvt.rendered
}

// Document parses the current render.
func (lvt *LiveViewTest) Document() *html.Node {
	lvt.t.Helper()
	doc, err := dom.ParseString(lvt.rendered)
	if err != nil {
		lvt.t.Fatalf("parse render: %v", err)
	}
	return doc
}

// Element returns the rendered element with the given id, failing the test
// when it is absent.
func (lvt *LiveViewTest) Element(id string) *html.Node {
	lvt.t.Helper()
	n := dom.FindByID(lvt.Document(), id)
	if n == nil {
		lvt.t.Fatalf("element #%s not found in render", id)
	}
	return n
}

// AssertHasElement verifies that an element with the id is rendered.
func (lvt *LiveViewTest) AssertHasElement(id string) *LiveViewTest {
	lvt.t.Helper()
	if dom.FindByID(lvt.Document(), id) == nil {
		lvt.t.Errorf("element #%s not found", id)
	}
	return lvt
}

// AssertNoElement verifies that no element with the id is rendered.
func (lvt *LiveViewTest) AssertNoElement(id string) *LiveViewTest {
	lvt.t.Helper()
	if dom.FindByID(lvt.Document(), id) != nil {
		lvt.t.Errorf("element #%s should not exist", id)
	}
	return lvt
}

// AssertText verifies the rendered output contains text.
func (lvt *LiveViewTest) AssertText(text string) *LiveViewTest {
	lvt.t.Helper()
	if !strings.Contains(lvt.rendered, text) {
		lvt.t.Errorf("text not found: %q\nrendered HTML:\n%s", text, lvt.rendered)
	}
	return lvt
}

// AssertNoText verifies the rendered output does not contain text.
func (lvt *LiveViewTest) AssertNoText(text string) *LiveViewTest {
	lvt.t.Helper()
	if strings.Contains(lvt.rendered, text) {
		lvt.t.Errorf("text should not exist: %q", text)
	}
	return lvt
}

// Pushed returns the server pushes with the given event, in order.
func (lvt *LiveViewTest) Pushed(event string) []*protocol.Message {
	return lvt.transport.SentEvents(event)
}

// Transport returns the mock transport.
func (lvt *LiveViewTest) Transport() *MockTransport {
	return lvt.transport
}

// Socket returns the socket the component was given.
func (lvt *LiveViewTest) Socket() *core.Socket {
	return lvt.socket
}

// Component returns the component under test.
func (lvt *LiveViewTest) Component() core.Component {
	return lvt.component
}
