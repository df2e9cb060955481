// Package view holds the two global display toggles of a transcription page
// and the styling rules they imply.
//
// State is an immutable value. The session that owns a page keeps the one
// current State and replaces it on every toggle; the styling functions are
// pure functions of (element, State) and can be re-applied at any time.
package view

import (
	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/typeset"
)

// CSS classes shared with the page stylesheet. These names are part of the
// stored pages and must not change.
const (
	ClassHidden    = "hidden"
	ClassHighlight = "highlight"
	ClassColored   = "colored"
	ClassSmallCaps = "sc"
)

// Button labels. Each label names the action the button performs next.
const (
	LabelHideCutouts = "hide cutouts"
	LabelShowCutouts = "show cutouts"
	LabelColor       = "color"
	LabelBlack       = "black"
)

// State is the pair of global toggles.
type State struct {
	// Hidden hides cutout images and removes block highlighting.
	Hidden bool
	// Colored applies semantic colors to bold, italic, citation and
	// small-caps markup.
	Colored bool
}

// Initial returns the state of a freshly loaded page, before the load-time
// toggles run.
func Initial() State {
	return State{Hidden: true, Colored: false}
}

// WithCutoutsToggled returns s with Hidden flipped.
func (s State) WithCutoutsToggled() State {
	s.Hidden = !s.Hidden
	return s
}

// WithColorsToggled returns s with Colored flipped.
func (s State) WithColorsToggled() State {
	s.Colored = !s.Colored
	return s
}

// CutoutLabel is the cutout button text for s.
func (s State) CutoutLabel() string {
	if s.Hidden {
		return LabelShowCutouts
	}
	return LabelHideCutouts
}

// ColorLabel is the color button text for s.
func (s State) ColorLabel() string {
	if s.Colored {
		return LabelBlack
	}
	return LabelColor
}

// StyleImage shows or hides a cutout image.
func StyleImage(img *html.Node, s State) {
	dom.SetClass(img, ClassHidden, s.Hidden)
}

// StyleCutouts highlights a block exactly when cutouts are shown.
func StyleCutouts(block *html.Node, s State) {
	dom.SetClass(block, ClassHighlight, !s.Hidden)
}

// ColorTargets returns the inline elements of block that are eligible for
// semantic coloring: b, i, cite, and span.sc.
func ColorTargets(block *html.Node) []*html.Node {
	return dom.FindFunc(block, func(n *html.Node) bool {
		switch n.Data {
		case "b", "i", "cite":
			return true
		case "span":
			return dom.HasClass(n, ClassSmallCaps)
		}
		return false
	})
}

// StyleColors runs the color pass on block: every color target gets the
// colored class exactly when s.Colored, then p re-typesets the block.
// Applying it twice with the same state leaves the same class set.
func StyleColors(block *html.Node, s State, p typeset.Processor) {
	for _, n := range ColorTargets(block) {
		dom.SetClass(n, ClassColored, s.Colored)
	}
	if p != nil {
		p.ProcessFragmentsIn(block)
	}
}
