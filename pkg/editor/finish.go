package editor

import (
	"context"

	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
)

// Finish collapses every triple view, removes the controls, serializes the
// page and dispatches it to the sink. The session is finalized afterwards and
// ignores further events. Finish returns the serialized page.
func (s *Session) Finish(ctx context.Context) (string, error) {
	if s.finalized {
		return "", ErrFinalized
	}
	if s.mode != ModeEditor {
		return "", ErrNotSplit
	}

	// Every buffer is parsed before the first block collapses, so a failure
	// leaves the page split and the session open.
	blocks := s.doc.All()
	parsed := make([][]*html.Node, len(blocks))
	for i, b := range blocks {
		if !b.Split() {
			continue
		}
		nodes, err := b.collapsed()
		if err != nil {
			s.logger.Error("finish aborted", logging.Err(err))
			return "", err
		}
		parsed[i] = nodes
	}
	for i, b := range blocks {
		if b.Split() {
			b.collapse(parsed[i])
		}
	}
	removeControls(s.doc.Root())
	s.cutoutButton, s.colorButton, s.finishButton = nil, nil, nil

	page := s.doc.Serialize()
	s.finalized = true

	if s.sink != nil {
		s.sink.Dispatch(ctx, page)
	}
	s.logger.Info("page finished", logging.Int("bytes", len(page)))
	return page, nil
}

// removeControls deletes every button and every injected live control, last
// one first.
func removeControls(root *html.Node) {
	controls := dom.FindFunc(root, func(n *html.Node) bool {
		if n.Data == "button" {
			return true
		}
		_, ok := dom.Attr(n, AttrControl)
		return ok
	})
	for i := len(controls) - 1; i >= 0; i-- {
		dom.Remove(controls[i])
	}
}
