// Package router mounts live components on HTTP paths: a plain GET renders
// the component once, a websocket upgrade on the same path starts a live
// session whose events are dispatched to the component and answered with
// HTML diffs.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/pool"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
	"github.com/gabrielmiguelok/livecorrect/pkg/transport"
)

// Common router errors.
var (
	ErrNilRenderer = errors.New("component returned nil renderer")
	ErrInternal    = errors.New("internal error")
)

// Router serves live routes.
type Router struct {
	mux          *http.ServeMux
	liveRoutes   map[string]*LiveRoute
	errorHandler ErrorHandler

	sessionManager *LiveViewSessionManager
	socketManager  *core.SocketManager
	transports     *transport.Manager

	transportConfig *transport.Config
	logger          logging.Logger

	mu sync.RWMutex
}

// LiveRoute defines a route that renders a live component.
type LiveRoute struct {
	Path      string
	Component func() core.Component
}

// ErrorHandler handles errors during the initial HTTP render.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures a Router.
type Option func(*Router)

// WithTransportConfig sets the websocket settings, including the codec.
func WithTransportConfig(cfg *transport.Config) Option {
	return func(r *Router) { r.transportConfig = cfg }
}

// WithLogger sets the router logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithErrorHandler sets the HTTP error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(r *Router) { r.errorHandler = h }
}

// New creates a new router.
func New(opts ...Option) *Router {
	r := &Router{
		mux:             http.NewServeMux(),
		liveRoutes:      make(map[string]*LiveRoute),
		sessionManager:  NewLiveViewSessionManager(),
		socketManager:   core.NewSocketManager(),
		transports:      transport.NewManager(),
		transportConfig: transport.DefaultConfig(),
		logger:          logging.NopLogger{},
		errorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.transportConfig.Logger == nil {
		r.transportConfig.Logger = r.logger
	}
	return r
}

// SessionManager returns the session manager.
func (r *Router) SessionManager() *LiveViewSessionManager {
	return r.sessionManager
}

// Live registers a live route. Every request gets a fresh component.
func (r *Router) Live(path string, component func() core.Component) {
	route := &LiveRoute{Path: path, Component: component}

	r.mu.Lock()
	r.liveRoutes[path] = route
	r.mu.Unlock()

	r.mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		r.renderLive(w, req, route)
	})
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close terminates every live session and closes its connection.
func (r *Router) Close() error {
	for _, s := range r.sessionManager.All() {
		r.handleDisconnect(s, core.TerminateShutdown)
	}
	return errors.Join(r.socketManager.CloseAll(), r.transports.CloseAll())
}

// renderLive serves the initial HTML render, or hands websocket upgrades to
// handleWebSocket.
func (r *Router) renderLive(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	if isWebSocketRequest(req) {
		r.handleWebSocket(w, req, route.Component())
		return
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	component := route.Component()
	params := extractParams(req)
	ctx := req.Context()

	if err := component.Mount(ctx, params, extractSession(req)); err != nil {
		r.errorHandler(w, req, err)
		return
	}
	defer component.Terminate(ctx, core.TerminateNormal)

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := render(ctx, component, buf); err != nil {
		r.errorHandler(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleWebSocket upgrades the connection and starts the session's message
// loop.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request, component core.Component) {
	ws := transport.NewWebSocketTransport(r.transportConfig)
	if err := ws.Upgrade(w, req); err != nil {
		// Upgrade has already answered the request.
		r.logger.Warn("websocket upgrade failed", logging.Err(err), logging.String("path", req.URL.Path))
		return
	}

	socketID := uuid.NewString()
	socket := core.NewSocket(socketID, ws)

	if bc, ok := component.(interface{ SetSocket(*core.Socket) }); ok {
		bc.SetSocket(socket)
	}

	params := extractParams(req)
	lvSession := r.sessionManager.Create(socketID, component, params, extractSession(req))
	lvSession.Transport = ws
	lvSession.Socket = socket

	r.socketManager.Add(socket)
	r.transports.Add(socketID, ws)

	// The connection outlives the upgrade request, so the session context
	// does not derive from req.Context().
	logger := r.logger.With(logging.String("socket", socketID), logging.String("path", req.URL.Path))
	ctx := logging.ContextWithLogger(context.Background(), logger)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()
		r.messageLoop(ctx, lvSession)
	}()

	go func() {
		select {
		case <-ws.Done():
			cancel()
			r.handleDisconnect(lvSession, core.TerminateNormal)
		case <-ctx.Done():
		}
	}()

	logger.Debug("live session started")
}

// messageLoop handles one message at a time until the connection closes
// or the client leaves.
func (r *Router) messageLoop(ctx context.Context, session *LiveViewSession) {
	recvCh := session.Transport.Receive()
	done := session.Transport.Done()

	for {
		select {
		case msg := <-recvCh:
			if !r.handleMessage(ctx, session, msg) {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage processes one client message and reports whether the loop
// should continue. A panicking component gets an error reply instead of
// taking the server down.
func (r *Router) handleMessage(ctx context.Context, session *LiveViewSession, msg *protocol.Message) (cont bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.L(ctx).Error("component panicked",
				logging.String("event", msg.Event),
				logging.Any("panic", rec),
			)
			r.sendError(session, msg, ErrInternal)
			cont = true
		}
	}()

	switch msg.Event {
	case protocol.EventHeartbeat:
		r.send(session, protocol.HeartbeatReply(msg.Ref))

	case protocol.EventJoin:
		r.handleJoin(ctx, session, msg)

	case protocol.EventLeave:
		r.sendReply(session, msg, map[string]any{})
		r.handleDisconnect(session, core.TerminateNormal)
		return false

	default:
		payload := msg.Payload
		if payload == nil {
			payload = make(map[string]any)
		}
		if err := session.Component.HandleEvent(ctx, msg.Event, payload); err != nil {
			logging.L(ctx).Warn("event failed", logging.String("event", msg.Event), logging.Err(err))
			r.sendError(session, msg, err)
			return true
		}
		r.renderAndSendDiff(ctx, session)
		r.sendReply(session, msg, map[string]any{})
		r.afterRender(ctx, session)
	}
	return true
}

// handleJoin mounts the component on first join and replies with the full
// render.
func (r *Router) handleJoin(ctx context.Context, session *LiveViewSession, msg *protocol.Message) {
	session.SetJoinRef(msg.JoinRef)

	if !session.IsMounted() {
		if err := session.Component.Mount(ctx, session.Params, session.Session); err != nil {
			logging.L(ctx).Error("mount failed", logging.Err(err))
			r.sendError(session, msg, err)
			return
		}
		session.SetMounted(true)
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := render(ctx, session.Component, buf); err != nil {
		r.sendError(session, msg, err)
		return
	}
	html := buf.String()

	// Record the baseline so the first event only sends what it changed.
	r.buildDiffPayload(session, html)

	r.sendReply(session, msg, map[string]any{
		"rendered": map[string]any{"s": []string{html}},
	})
	r.afterRender(ctx, session)
}

// renderAndSendDiff renders the component and pushes what changed.
func (r *Router) renderAndSendDiff(ctx context.Context, session *LiveViewSession) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := render(ctx, session.Component, buf); err != nil {
		logging.L(ctx).Error("render failed", logging.Err(err))
		return
	}

	payload := r.buildDiffPayload(session, buf.String())
	if err := session.Socket.SendDiff(payload); err != nil {
		logging.L(ctx).Warn("diff not sent", logging.Err(err))
	}
}

// buildDiffPayload compares the render with the previous one. Components
// that provide slots get per-slot patches; any change outside the slots,
// or to the set of slots, falls back to a full render.
func (r *Router) buildDiffPayload(session *LiveViewSession, html string) *core.DiffPayload {
	session.mu.Lock()
	defer session.mu.Unlock()

	payload := &core.DiffPayload{}
	fullHash := hashContent(html)

	sp, ok := session.Component.(core.SlotProvider)
	if !ok {
		if session.fullHash != fullHash {
			payload.Full = html
		}
		session.fullHash = fullHash
		if !payload.IsEmpty() {
			session.Version++
			payload.Version = session.Version
		}
		return payload
	}

	slots, frame := sp.Slots()
	frameHash := hashContent(frame)
	prev := session.slotHashes

	newHashes := make(map[string]uint64, len(slots))
	changed := make(map[string]string)
	for id, content := range slots {
		h := hashContent(content)
		newHashes[id] = h
		if old, ok := prev[id]; !ok || old != h {
			changed[id] = content
		}
	}

	switch {
	case prev == nil || frameHash != session.frameHash || len(prev) != len(newHashes) || !sameKeys(prev, newHashes):
		if session.fullHash != fullHash {
			payload.Full = html
		}
	case len(changed) > 0:
		payload.HTMLSlots = changed
	}

	session.slotHashes = newHashes
	session.frameHash = frameHash
	session.fullHash = fullHash

	if !payload.IsEmpty() {
		session.Version++
		payload.Version = session.Version
	}
	return payload
}

func (r *Router) afterRender(ctx context.Context, session *LiveViewSession) {
	ar, ok := session.Component.(core.AfterRenderer)
	if !ok {
		return
	}
	if err := ar.AfterRender(ctx); err != nil {
		logging.L(ctx).Warn("after render hook failed", logging.Err(err))
	}
}

// handleDisconnect terminates the component and forgets the session. Only
// the first call has an effect.
func (r *Router) handleDisconnect(session *LiveViewSession, reason core.TerminateReason) {
	session.closeOnce.Do(func() { r.disconnect(session, reason) })
}

func (r *Router) disconnect(session *LiveViewSession, reason core.TerminateReason) {
	r.sessionManager.Remove(session.ID)
	r.socketManager.Remove(session.SocketID)
	r.transports.Remove(session.SocketID)

	if err := session.Component.Terminate(context.Background(), reason); err != nil {
		r.logger.Warn("terminate failed", logging.Err(err), logging.String("socket", session.SocketID))
	}
	if session.Transport != nil {
		session.Transport.Close()
	}
	r.logger.Debug("live session ended", logging.String("socket", session.SocketID), logging.String("reason", reason.String()))
}

func (r *Router) send(session *LiveViewSession, msg *protocol.Message) {
	if err := session.Transport.Send(msg); err != nil {
		r.logger.Debug("send failed", logging.Err(err), logging.String("event", msg.Event))
	}
}

// sendReply answers msg with an ok status.
func (r *Router) sendReply(session *LiveViewSession, msg *protocol.Message, response map[string]any) {
	r.send(session, protocol.OkReply(msg.Ref, msg.Topic, response).WithJoinRef(session.GetJoinRef()))
}

// sendError answers msg with an error status.
func (r *Router) sendError(session *LiveViewSession, msg *protocol.Message, err error) {
	r.send(session, protocol.ErrorReply(msg.Ref, msg.Topic, err.Error()).WithJoinRef(session.GetJoinRef()))
}

func render(ctx context.Context, component core.Component, buf *bytes.Buffer) error {
	renderer := component.Render(ctx)
	if renderer == nil {
		return ErrNilRenderer
	}
	if err := renderer.Render(ctx, buf); err != nil {
		return fmt.Errorf("render %s: %w", component.Name(), err)
	}
	return nil
}

func hashContent(content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	return h.Sum64()
}

func sameKeys(a, b map[string]uint64) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// extractSession collects the request cookies.
func extractSession(req *http.Request) core.Session {
	session := make(core.Session)
	for _, cookie := range req.Cookies() {
		session["cookie:"+cookie.Name] = cookie.Value
	}
	return session
}

// extractParams extracts query parameters and the request path.
func extractParams(req *http.Request) core.Params {
	params := make(core.Params)
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	params["path"] = req.URL.Path
	return params
}

// isWebSocketRequest checks if this is a websocket upgrade request.
func isWebSocketRequest(req *http.Request) bool {
	return strings.Contains(strings.ToLower(req.Header.Get("Upgrade")), "websocket")
}
