package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// MockComponent implements core.Component, core.SlotProvider and
// core.AfterRenderer for testing.
type MockComponent struct {
	core.BaseComponent

	mu              sync.Mutex
	mountCalled     bool
	terminateCalled bool
	events          []string

	count int
	frame string
}

func NewMockComponent() *MockComponent {
	return &MockComponent{frame: "v1"}
}

func (c *MockComponent) Name() string {
	return "MockComponent"
}

func (c *MockComponent) Mount(ctx context.Context, params core.Params, session core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mountCalled = true
	return nil
}

func (c *MockComponent) slotA() string {
	return fmt.Sprintf(`<div id="a">A%d</div>`, c.count)
}

func (c *MockComponent) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, err := fmt.Fprintf(w, `<main>%s<div id="b">B</div><p>%s</p></main>`, c.slotA(), c.frame)
		return err
	})
}

func (c *MockComponent) Slots() (map[string]string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]string{"a": c.slotA(), "b": `<div id="b">B</div>`}, "<main><p>" + c.frame + "</p></main>"
}

func (c *MockComponent) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	switch event {
	case "inc":
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
	case "frame":
		c.mu.Lock()
		c.frame = "v2"
		c.mu.Unlock()
	case "fail":
		return errors.New("nope")
	case "boom":
		panic("boom")
	}
	return nil
}

func (c *MockComponent) AfterRender(ctx context.Context) error {
	if s := c.Socket(); s != nil {
		return s.Push("after", nil)
	}
	return nil
}

func (c *MockComponent) Terminate(ctx context.Context, reason core.TerminateReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminateCalled = true
	return nil
}

func (c *MockComponent) terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminateCalled
}

// plainComponent has no slots.
type plainComponent struct {
	core.BaseComponent
	html string
}

func (p *plainComponent) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, p.html)
		return err
	})
}

func TestRouter_Live_InitialHTTPRender(t *testing.T) {
	r := New()

	var component *MockComponent
	r.Live("/page.html", func() core.Component {
		component = NewMockComponent()
		return component
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page.html", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), `<div id="a">A0</div>`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if !component.mountCalled || !component.terminated() {
		t.Error("the HTTP render should mount and terminate the component")
	}
}

func TestRouter_Live_MethodNotAllowed(t *testing.T) {
	r := New()
	r.Live("/page.html", func() core.Component { return NewMockComponent() })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/page.html", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRouter_ErrorHandler(t *testing.T) {
	var handled error
	r := New(WithErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
		handled = err
		w.WriteHeader(http.StatusTeapot)
	}))
	r.Live("/nil", func() core.Component { return &nilRenderer{} })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nil", nil))
	if rec.Code != http.StatusTeapot || !errors.Is(handled, ErrNilRenderer) {
		t.Errorf("expected ErrNilRenderer via the error handler, got %d %v", rec.Code, handled)
	}
}

type nilRenderer struct{ core.BaseComponent }

func (*nilRenderer) Render(context.Context) core.Renderer { return nil }

func TestBuildDiffPayload_Slots(t *testing.T) {
	r := New()
	comp := NewMockComponent()
	session := NewLiveViewSession("s1", comp, nil, nil)

	renderNow := func() string {
		var sb strings.Builder
		comp.Render(context.Background()).Render(context.Background(), &sb)
		return sb.String()
	}

	if p := r.buildDiffPayload(session, renderNow()); p.Full == "" {
		t.Fatal("the first render should be full")
	}
	if p := r.buildDiffPayload(session, renderNow()); !p.IsEmpty() {
		t.Errorf("unchanged render should give an empty diff, got %+v", p)
	}

	comp.HandleEvent(context.Background(), "inc", nil)
	p := r.buildDiffPayload(session, renderNow())
	want := map[string]string{"a": `<div id="a">A1</div>`}
	if diff := cmp.Diff(want, p.HTMLSlots); diff != "" || p.Full != "" {
		t.Errorf("slot diff mismatch (-want +got):\n%s full=%q", diff, p.Full)
	}
	if p.Version != 2 {
		t.Errorf("expected version 2, got %d", p.Version)
	}

	comp.HandleEvent(context.Background(), "frame", nil)
	p = r.buildDiffPayload(session, renderNow())
	if p.Full == "" || len(p.HTMLSlots) != 0 {
		t.Errorf("a frame change should force a full render, got %+v", p)
	}
}

func TestBuildDiffPayload_NoSlots(t *testing.T) {
	r := New()
	comp := &plainComponent{}
	session := NewLiveViewSession("s1", comp, nil, nil)

	if p := r.buildDiffPayload(session, "<p>1</p>"); p.Full != "<p>1</p>" {
		t.Errorf("expected full render, got %+v", p)
	}
	if p := r.buildDiffPayload(session, "<p>1</p>"); !p.IsEmpty() {
		t.Errorf("expected empty diff, got %+v", p)
	}
	if p := r.buildDiffPayload(session, "<p>2</p>"); p.Full != "<p>2</p>" {
		t.Errorf("expected full render, got %+v", p)
	}
}

// wsClient is a test client speaking the Phoenix tuple format.
type wsClient struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
	ctx   context.Context
}

func dial(t *testing.T, srv *httptest.Server, path string) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{t: t, conn: conn, codec: protocol.NewPhoenixCodec(), ctx: ctx}
}

func (c *wsClient) send(ref, event string, payload map[string]any) {
	c.t.Helper()
	data, err := c.codec.Encode(protocol.EventMessage("lv:x", event, payload).WithRef(ref).WithJoinRef("1"))
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) read() *protocol.Message {
	c.t.Helper()
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	msg, err := c.codec.Decode(data)
	if err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestRouter_WebSocketSession(t *testing.T) {
	r := New()
	var component *MockComponent
	r.Live("/page.html", func() core.Component {
		component = NewMockComponent()
		return component
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := dial(t, srv, "/page.html")

	c.send("1", protocol.EventJoin, map[string]any{})
	reply := c.read()
	if reply.Event != protocol.EventReply || reply.Ref != "1" || reply.Payload["status"] != "ok" {
		t.Fatalf("unexpected join reply %+v", reply)
	}
	rendered, _ := reply.Payload["response"].(map[string]any)["rendered"].(map[string]any)
	if s, _ := rendered["s"].([]any); len(s) != 1 || !strings.Contains(s[0].(string), "A0") {
		t.Errorf("join reply should carry the full render, got %v", rendered)
	}
	if after := c.read(); after.Event != "after" {
		t.Errorf("expected the after-render push, got %s", after.Event)
	}

	c.send("2", "inc", map[string]any{})
	diff := c.read()
	if diff.Event != protocol.EventDiff {
		t.Fatalf("expected diff, got %+v", diff)
	}
	h, _ := diff.Payload["h"].(map[string]any)
	if len(h) != 1 || h["a"] != `<div id="a">A1</div>` {
		t.Errorf("expected only slot a, got %v", diff.Payload)
	}
	if ok := c.read(); ok.Event != protocol.EventReply || ok.Ref != "2" {
		t.Errorf("expected reply to ref 2, got %+v", ok)
	}
	if after := c.read(); after.Event != "after" {
		t.Errorf("expected the after-render push, got %s", after.Event)
	}

	c.send("3", "fail", nil)
	if e := c.read(); e.Payload["status"] != "error" {
		t.Errorf("a failing event should get an error reply, got %+v", e)
	}

	c.send("4", "boom", nil)
	e := c.read()
	resp, _ := e.Payload["response"].(map[string]any)
	if e.Payload["status"] != "error" || resp["reason"] != ErrInternal.Error() {
		t.Errorf("a panicking event should get an internal error reply, got %+v", e)
	}

	c.send("5", protocol.EventHeartbeat, nil)
	if hb := c.read(); hb.Topic != protocol.HeartbeatTopic || hb.Ref != "5" {
		t.Errorf("unexpected heartbeat reply %+v", hb)
	}

	if r.SessionManager().Count() != 1 {
		t.Errorf("expected one live session, got %d", r.SessionManager().Count())
	}

	c.send("6", protocol.EventLeave, nil)
	c.conn.CloseRead(c.ctx)

	deadline := time.Now().Add(2 * time.Second)
	for r.SessionManager().Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.SessionManager().Count() != 0 || !component.terminated() {
		t.Error("leaving should terminate the component and drop the session")
	}
}

func TestRouter_Close(t *testing.T) {
	r := New()
	r.Live("/page.html", func() core.Component { return NewMockComponent() })
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := dial(t, srv, "/page.html")
	c.send("1", protocol.EventJoin, nil)
	c.read()
	c.conn.CloseRead(c.ctx)

	if err := r.Close(); err != nil {
		t.Logf("Close: %v", err)
	}
	if r.SessionManager().Count() != 0 {
		t.Error("Close should drop every session")
	}
}

func TestRouter_extractParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/page.html?mode=view&x=1&x=2", nil)
	want := core.Params{"mode": "view", "x": "1", "path": "/page.html"}
	if diff := cmp.Diff(want, extractParams(req)); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_isWebSocketRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isWebSocketRequest(req) {
		t.Error("plain request detected as websocket")
	}
	req.Header.Set("Upgrade", "WebSocket")
	if !isWebSocketRequest(req) {
		t.Error("upgrade header not detected")
	}
}

func TestLiveViewSession_Manager(t *testing.T) {
	m := NewLiveViewSessionManager()
	s := m.Create("sock", NewMockComponent(), core.Params{}, core.Session{})

	if s.SocketID != "sock" || s.ID == "" {
		t.Errorf("unexpected session %+v", s)
	}
	if all := m.All(); len(all) != 1 || all[0] != s {
		t.Error("All should list the created session")
	}
	m.Remove(s.ID)
	if m.Count() != 0 {
		t.Errorf("expected 0 sessions, got %d", m.Count())
	}
}

func TestLiveViewSession_State(t *testing.T) {
	s := NewLiveViewSession("sock", nil, nil, nil)
	s.SetMounted(true)
	s.SetJoinRef("7")
	if !s.IsMounted() || s.GetJoinRef() != "7" {
		t.Error("mounted/join ref not stored")
	}
}
