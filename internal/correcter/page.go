// Package correcter serves one transcription page as a live editing session
// and stores it when the user finishes.
package correcter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/editor"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
	"github.com/gabrielmiguelok/livecorrect/pkg/typeset"
)

// ClientScript is the path the live client is served from.
const ClientScript = "/_live/livecorrect.js"

// Server push events besides diffs.
const (
	EventTypeset  = "typeset"
	EventFinished = "finished"
)

// ErrNoPage is returned when the page file cannot be read.
var ErrNoPage = errors.New("correcter: page not readable")

// PageOptions configures a Page component.
type PageOptions struct {
	// Root is the directory holding the page.
	Root string
	// Name is the slash-separated page path relative to Root.
	Name string
	Mode editor.Mode
	// Suppress lists doublestar patterns of script sources left out of the
	// live rendering.
	Suppress []string
	// Codec names the wire format the client script speaks.
	Codec string
	// Sink receives the finished page. Only used in editor mode.
	Sink   editor.Sink
	Logger logging.Logger
}

// Page is the live component for one transcription page. Each connection
// mounts its own Page, loaded fresh from disk.
type Page struct {
	core.BaseComponent

	opts    PageOptions
	session *editor.Session
	queue   *typeset.Queue

	finishedPushed bool
}

// NewPage creates an unmounted page component.
func NewPage(opts PageOptions) *Page {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger{}
	}
	return &Page{opts: opts}
}

// Name implements core.Component.
func (p *Page) Name() string { return "page" }

// Session returns the editing session, nil before Mount.
func (p *Page) Session() *editor.Session { return p.session }

// Mount loads the page file and runs the load-time wiring.
func (p *Page) Mount(ctx context.Context, params core.Params, session core.Session) error {
	file := filepath.Join(p.opts.Root, filepath.FromSlash(p.opts.Name))
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoPage, err)
	}
	defer f.Close()

	doc, err := editor.ParseDocument(f)
	if err != nil {
		return fmt.Errorf("load %s: %w", p.opts.Name, err)
	}
	codec := p.opts.Codec
	if codec == "" {
		codec = protocol.DefaultCodec().Name()
	}
	doc.Body().AppendChild(dom.NewElement("script",
		html.Attribute{Key: editor.AttrControl},
		html.Attribute{Key: "src", Val: ClientScript},
		html.Attribute{Key: "data-codec", Val: codec},
	))

	p.queue = typeset.NewQueue()
	opts := []editor.Option{
		editor.WithMode(p.opts.Mode),
		editor.WithProcessor(p.queue),
		editor.WithLogger(p.logger(ctx)),
		editor.WithPageName(p.opts.Name),
	}
	if p.opts.Sink != nil {
		opts = append(opts, editor.WithSink(p.opts.Sink))
	}
	p.session = editor.NewSession(doc, opts...)
	return p.session.Load()
}

func (p *Page) logger(ctx context.Context) logging.Logger {
	if l, ok := logging.FromContext(ctx); ok {
		return l
	}
	return p.opts.Logger
}

// Render writes the whole page.
func (p *Page) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		if p.session == nil {
			return ErrNoPage
		}
		return dom.Render(w, p.session.Document().Root(), p.suppressed)
	})
}

// suppressed reports whether n is a page script left out of live rendering.
func (p *Page) suppressed(n *html.Node) bool {
	if !dom.IsElement(n, "script") {
		return false
	}
	src, ok := dom.Attr(n, "src")
	if !ok {
		return false
	}
	return matchScript(p.opts.Suppress, src)
}

func matchScript(patterns []string, src string) bool {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	src = strings.TrimPrefix(path.Clean("/"+src), "/")
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, src); ok {
			return true
		}
	}
	return false
}

// Slots exposes the three fragments of every split block, keyed by id. The
// frame is the page with those fragments left out, so toggles and control
// labels change the frame while typing only changes slots.
func (p *Page) Slots() (map[string]string, string) {
	if p.session == nil {
		return nil, ""
	}
	slots := make(map[string]string)
	owned := make(map[*html.Node]bool)
	if p.session.Mode() == editor.ModeEditor && !p.session.Finalized() {
		for _, b := range p.session.Document().All() {
			if !b.Split() {
				continue
			}
			for _, n := range []*html.Node{b.Display, b.Editor, b.Source} {
				id, _ := dom.Attr(n, "id")
				slots[id] = dom.OuterHTML(n)
				owned[n] = true
			}
		}
	}

	var frame bytes.Buffer
	_ = dom.Render(&frame, p.session.Document().Root(), func(n *html.Node) bool {
		return owned[n] || p.suppressed(n)
	})
	return slots, frame.String()
}

// HandleEvent maps a browser event onto the session. Bad payloads and
// events after finish are logged and otherwise ignored.
func (p *Page) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	logger := p.logger(ctx).With(logging.String("event", event))
	if p.session == nil || p.session.Finalized() {
		logger.Debug("event ignored")
		return nil
	}

	var err error
	switch event {
	case editor.EventToggleCutouts:
		p.session.ToggleCutouts()
	case editor.EventToggleColors:
		p.session.ToggleColors()
	case editor.EventActivate:
		err = p.onBlock(payload, func(k editor.Kind, i int) error {
			_, err := p.session.Activate(k, i)
			return err
		})
	case editor.EventEdit:
		value := protocol.PayloadString(payload, "value")
		err = p.onBlock(payload, func(k editor.Kind, i int) error {
			_, err := p.session.Edit(k, i, value)
			return err
		})
	case editor.EventFinish:
		_, err = p.session.Finish(ctx)
	default:
		logger.Debug("unknown event")
		return nil
	}
	if err != nil {
		logger.Warn("event dropped", logging.Err(err))
	}
	return nil
}

// onBlock resolves the kind and index of the addressed block.
func (p *Page) onBlock(payload map[string]any, fn func(editor.Kind, int) error) error {
	k, err := editor.ParseKind(protocol.PayloadString(payload, "kind"))
	if err != nil {
		return err
	}
	i, ok := protocol.PayloadInt(payload, "index")
	if !ok {
		return fmt.Errorf("%w: missing index", editor.ErrUnknownBlock)
	}
	return fn(k, i)
}

// AfterRender asks the client to re-typeset the fragments styled since the
// last render, and tells it once that the page was finished.
func (p *Page) AfterRender(ctx context.Context) error {
	socket := p.Socket()
	if socket == nil || p.queue == nil {
		return nil
	}
	if targets := p.queue.Drain(); len(targets) > 0 {
		if err := socket.Push(EventTypeset, map[string]any{"targets": targets}); err != nil {
			return err
		}
	}
	if p.session.Finalized() && !p.finishedPushed {
		p.finishedPushed = true
		return socket.Push(EventFinished, nil)
	}
	return nil
}

// Terminate logs how the session ended.
func (p *Page) Terminate(ctx context.Context, reason core.TerminateReason) error {
	if p.session != nil && p.Socket() != nil {
		p.logger(ctx).Debug("page session closed",
			logging.String("reason", reason.String()),
			logging.Bool("finished", p.session.Finalized()),
		)
	}
	return nil
}
