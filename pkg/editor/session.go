package editor

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/typeset"
	"github.com/gabrielmiguelok/livecorrect/pkg/view"
)

// Mode selects the page variant.
type Mode int

const (
	// ModeEditor splits blocks into triple views and offers finish.
	ModeEditor Mode = iota
	// ModeViewer only offers the two toggles on the raw blocks.
	ModeViewer
)

func (m Mode) String() string {
	if m == ModeViewer {
		return "viewer"
	}
	return "editor"
}

// Sink receives the serialized page when editing is finished. Dispatch must
// not block the caller on network I/O.
type Sink interface {
	Dispatch(ctx context.Context, page string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, page string)

// Dispatch calls f.
func (f SinkFunc) Dispatch(ctx context.Context, page string) { f(ctx, page) }

// Option configures a Session.
type Option func(*Session)

// WithMode selects the editor or viewer variant.
func WithMode(m Mode) Option {
	return func(s *Session) { s.mode = m }
}

// WithProcessor sets the fragment processor run after every color pass.
func WithProcessor(p typeset.Processor) Option {
	return func(s *Session) { s.proc = p }
}

// WithSink sets the persistence sink used by Finish.
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithPageName names the page in log output.
func WithPageName(name string) Option {
	return func(s *Session) { s.page = name }
}

// Session owns one loaded page: its document, the current view state and
// the injected controls. A Session is driven by one goroutine at a time and
// does no locking.
type Session struct {
	doc    *Document
	state  view.State
	mode   Mode
	proc   typeset.Processor
	sink   Sink
	logger logging.Logger
	page   string

	cutoutButton *html.Node
	colorButton  *html.Node
	finishButton *html.Node

	prepared  [2]bool
	loaded    bool
	finalized bool
}

// NewSession creates a session over doc in the initial view state.
func NewSession(doc *Document, opts ...Option) *Session {
	s := &Session{
		doc:    doc,
		state:  view.Initial(),
		proc:   typeset.Nop,
		logger: logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.String("page", s.page), logging.String("mode", s.mode.String()))
	return s
}

// Document returns the page.
func (s *Session) Document() *Document { return s.doc }

// State returns the current view state.
func (s *Session) State() view.State { return s.state }

// Mode returns the page variant.
func (s *Session) Mode() Mode { return s.mode }

// Finalized reports whether Finish has run.
func (s *Session) Finalized() bool { return s.finalized }

// Load runs the load-time wiring: controls, block splitting for both kinds
// (editor only), then one cutout toggle and one color toggle. Loading twice
// is a no-op.
func (s *Session) Load() error {
	if s.finalized {
		return ErrFinalized
	}
	if s.loaded {
		return nil
	}
	s.addButtons()
	if s.mode == ModeEditor {
		for _, k := range Kinds {
			if err := s.PrepareBlocks(k); err != nil {
				return err
			}
		}
	}
	s.loaded = true
	s.ToggleCutouts()
	s.ToggleColors()

	s.logger.Info("page loaded",
		logging.Int("paragraphs", len(s.doc.Blocks(Paragraph))),
		logging.Int("headers", len(s.doc.Blocks(Header))),
	)
	return nil
}

// addButtons prepends the controls to the body. Each is prepended in turn,
// so the body reads finish, color, cutouts.
func (s *Session) addButtons() {
	s.cutoutButton = newButton(EventToggleCutouts, s.state.CutoutLabel())
	dom.Prepend(s.doc.Body(), s.cutoutButton)

	s.colorButton = newButton(EventToggleColors, s.state.ColorLabel())
	dom.Prepend(s.doc.Body(), s.colorButton)

	if s.mode == ModeEditor {
		s.finishButton = newButton(EventFinish, "finish")
		dom.Prepend(s.doc.Body(), s.finishButton)
	}
}

func newButton(event, label string) *html.Node {
	b := dom.NewElement("button", html.Attribute{Key: AttrClick, Val: event})
	dom.SetText(b, label)
	return b
}

// PrepareBlocks splits every block of kind k into its triple view. Blocks are
// processed from the last index to the first so that inserting siblings never
// shifts an element that has not been handled yet. Preparing a kind twice is
// a no-op; the viewer variant has no buffers.
func (s *Session) PrepareBlocks(k Kind) error {
	if s.finalized {
		return ErrFinalized
	}
	if s.mode != ModeEditor {
		return fmt.Errorf("%w: viewer pages have no edit buffers", ErrNotSplit)
	}
	if k != Paragraph && k != Header {
		return fmt.Errorf("%w: kind %d", ErrUnknownBlock, int(k))
	}
	if s.prepared[k] {
		return nil
	}
	blocks := s.doc.Blocks(k)
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		b.split()
		b.onActivate = func() { dom.ToggleClass(b.Editor, view.ClassHidden) }
		b.onBufferChanged = func(value string) error { return s.sync(b, value) }
	}
	s.prepared[k] = true
	s.logger.Debug("blocks prepared", logging.String("kind", k.String()), logging.Int("count", len(blocks)))
	return nil
}

// shown returns the display fragments the toggles apply to. In the editor
// variant only split blocks count; source fragments are never included.
func (s *Session) shown() []*html.Node {
	var out []*html.Node
	for _, b := range s.doc.All() {
		if s.mode == ModeEditor && !b.Split() {
			continue
		}
		out = append(out, b.Display)
	}
	return out
}

// ToggleCutouts flips cutout visibility, restyles every image and every shown
// block, and relabels the cutout button.
func (s *Session) ToggleCutouts() {
	if s.finalized {
		return
	}
	s.state = s.state.WithCutoutsToggled()
	if s.cutoutButton != nil {
		dom.SetText(s.cutoutButton, s.state.CutoutLabel())
	}
	for _, img := range s.doc.Images() {
		view.StyleImage(img, s.state)
	}
	for _, n := range s.shown() {
		view.StyleCutouts(n, s.state)
	}
	s.logger.Debug("cutouts toggled", logging.Bool("hidden", s.state.Hidden))
}

// ToggleColors flips semantic coloring and runs the color pass on every
// shown block. The viewer variant colors the whole body.
func (s *Session) ToggleColors() {
	if s.finalized {
		return
	}
	s.state = s.state.WithColorsToggled()
	if s.colorButton != nil {
		dom.SetText(s.colorButton, s.state.ColorLabel())
	}
	if s.mode == ModeViewer {
		view.StyleColors(s.doc.Body(), s.state, nil)
	} else {
		for _, n := range s.shown() {
			view.StyleColors(n, s.state, s.proc)
		}
	}
	s.logger.Debug("colors toggled", logging.Bool("colored", s.state.Colored))
}

// lookup returns a split block.
func (s *Session) lookup(k Kind, i int) (*Block, error) {
	if s.finalized {
		return nil, ErrFinalized
	}
	b, err := s.doc.Block(k, i)
	if err != nil {
		return nil, err
	}
	if !b.Split() {
		return nil, fmt.Errorf("%w: %s", ErrNotSplit, DisplayID(k, i))
	}
	return b, nil
}

// Activate shows or hides the edit buffer of block i.
func (s *Session) Activate(k Kind, i int) (*Block, error) {
	b, err := s.lookup(k, i)
	if err != nil {
		return nil, err
	}
	if b.onActivate != nil {
		b.onActivate()
	}
	return b, nil
}

// Edit replaces the buffer value of block i and propagates it to the source
// and display fragments.
func (s *Session) Edit(k Kind, i int, value string) (*Block, error) {
	b, err := s.lookup(k, i)
	if err != nil {
		return nil, err
	}
	if b.onBufferChanged != nil {
		if err := b.onBufferChanged(value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// sync propagates a buffer change and re-runs the color pass on the display
// with the current state. Highlighting is left alone.
func (s *Session) sync(b *Block, value string) error {
	if err := b.propagate(value); err != nil {
		return err
	}
	view.StyleColors(b.Display, s.state, s.proc)
	return nil
}
