package correcter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gabrielmiguelok/livecorrect/client"
	"github.com/gabrielmiguelok/livecorrect/pkg/config"
	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/editor"
	"github.com/gabrielmiguelok/livecorrect/pkg/health"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/persist"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
	"github.com/gabrielmiguelok/livecorrect/pkg/router"
	"github.com/gabrielmiguelok/livecorrect/pkg/shutdown"
	"github.com/gabrielmiguelok/livecorrect/pkg/transport"
)

// ErrBadPage is returned for page paths outside the root.
var ErrBadPage = errors.New("correcter: invalid page path")

// Server serves one page, its static assets and the end endpoint.
type Server struct {
	cfg      *config.Config
	page     string
	mode     editor.Mode
	logger   logging.Logger
	shutdown *shutdown.Handler

	live       *router.Router
	dispatcher *persist.Dispatcher
	handler    http.Handler
	httpServer *http.Server
}

// NewServer builds the server for page, a slash-separated path relative to
// cfg.Root. The shutdown handler is triggered once a finished page has been
// written; it may be nil in tests.
func NewServer(cfg *config.Config, page string, mode editor.Mode, logger logging.Logger, sh *shutdown.Handler) (*Server, error) {
	name, err := cleanPage(page)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	codec, err := protocol.Codecs.Get(cfg.Transport.Codec)
	if err != nil {
		return nil, err
	}
	tcfg := transport.DefaultConfig()
	tcfg.ReadTimeout = cfg.Transport.ReadTimeout.Std()
	tcfg.WriteTimeout = cfg.Transport.WriteTimeout.Std()
	tcfg.PingInterval = cfg.Transport.PingInterval.Std()
	tcfg.MaxMessageSize = cfg.Transport.MaxMessageSize
	tcfg.AllowedOrigins = cfg.CORS.AllowedOrigins
	tcfg.Codec = codec
	tcfg.Logger = logger

	s := &Server{
		cfg:      cfg,
		page:     name,
		mode:     mode,
		logger:   logger.With(logging.String("page", name)),
		shutdown: sh,
		live:     router.New(router.WithTransportConfig(tcfg), router.WithLogger(logger)),
	}
	if mode == editor.ModeEditor {
		s.dispatcher = persist.NewDispatcher(
			persist.NewClient(cfg.PersistEndpoint(), nil),
			cfg.Persist.Timeout.Std(),
			s.logger,
		)
	}

	s.live.Live("/"+name, func() core.Component {
		opts := PageOptions{
			Root:     cfg.Root,
			Name:     name,
			Mode:     mode,
			Suppress: cfg.Static.Suppress,
			Codec:    codec.Name(),
			Logger:   s.logger,
		}
		if s.dispatcher != nil {
			opts.Sink = s.dispatcher
		}
		return NewPage(opts)
	})

	s.handler = s.routes()
	return s, nil
}

// cleanPage validates a page path and returns it without a leading slash.
func cleanPage(page string) (string, error) {
	slashed := strings.ReplaceAll(page, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrBadPage, page)
		}
	}
	name := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %q", ErrBadPage, page)
	}
	return name, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Method(http.MethodGet, "/healthz", s.health().Handler())
	r.Handle("/_live/*", http.StripPrefix("/_live/", client.Handler()))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/"+s.page, http.StatusFound)
	})
	r.Handle("/"+s.page, s.live)

	if s.mode == editor.ModeEditor {
		r.Method(http.MethodDelete, "/end", &persist.EndHandler{
			Path:      s.pagePath(),
			OnWritten: s.finished,
			Logger:    s.logger,
		})
	}

	r.NotFound(s.serveStatic)
	return r
}

// maxSessions is the number of live sessions above which the server
// reports itself degraded.
const maxSessions = 8

func (s *Server) health() *health.Checker {
	hc := health.NewChecker("")
	hc.Add(health.Check{Name: "page", Fn: health.PageCheck(s.pagePath()), Critical: true})
	hc.Add(health.Check{Name: "sessions", Fn: health.SessionCheck(s.live.SessionManager().Count, maxSessions)})
	return hc
}

func (s *Server) pagePath() string {
	return filepath.Join(s.cfg.Root, filepath.FromSlash(s.page))
}

func (s *Server) finished() {
	if s.shutdown != nil {
		s.shutdown.Trigger("page written")
	}
}

// serveStatic serves files next to the page that match the allow-list.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/")
	if !s.allowed(name) {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, os.DirFS(s.cfg.Root), name)
}

// allowed reports whether name may be served: a valid path below the root
// that matches one of the static patterns.
func (s *Server) allowed(name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	for _, pattern := range s.cfg.Static.Allow {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// URL returns the browser URL of the page.
func (s *Server) URL() string {
	return s.cfg.PageURL(s.page)
}

// Start listens on the configured address and serves in the background.
// Serve errors other than a clean shutdown are logged and trigger shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	s.httpServer = &http.Server{Handler: s.handler}
	s.logger.Info("serving", logging.String("url", s.URL()), logging.String("mode", s.mode.String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", logging.Err(err))
			if s.shutdown != nil {
				s.shutdown.Trigger("server failed")
			}
		}
	}()
	return nil
}

// RegisterHooks registers the server's shutdown steps: stop accepting
// requests, close live sessions, then wait for a page still being sent.
func (s *Server) RegisterHooks(h *shutdown.Handler) {
	h.Register(shutdown.HTTPServerHook("http server", func(ctx context.Context) error {
		if s.httpServer == nil {
			return nil
		}
		return s.httpServer.Shutdown(ctx)
	}))
	h.Register(shutdown.CloseableHook("live sessions", shutdown.PriorityWebSocket, s.live))
	if s.dispatcher != nil {
		h.RegisterFunc("page dispatch", shutdown.PriorityPersist, s.dispatcher.Wait)
	}
}
