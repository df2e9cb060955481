// Package typeset defines the fragment-processing collaborator: the pass that
// re-typesets specialized inline notation (hieroglyphic spans) inside a
// subtree after its markup or styling changed.
//
// The actual typesetting runs in the browser. The server side only needs to
// know which subtrees were touched so it can ask the client to reprocess
// them once the patched HTML has been applied.
package typeset

import (
	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
)

// All is the target recorded for subtrees that have no id; it asks the
// client to reprocess the whole page.
const All = "*"

// Processor re-typesets the subtree rooted at n. Implementations must be
// idempotent.
type Processor interface {
	ProcessFragmentsIn(n *html.Node)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(n *html.Node)

// ProcessFragmentsIn calls f(n).
func (f ProcessorFunc) ProcessFragmentsIn(n *html.Node) { f(n) }

// Nop ignores every request.
var Nop Processor = ProcessorFunc(func(*html.Node) {})

// Queue records the ids of processed subtrees until they are drained.
// A Queue belongs to one editing session and is not safe for concurrent use.
type Queue struct {
	seen  map[string]struct{}
	order []string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{seen: make(map[string]struct{})}
}

// ProcessFragmentsIn records n's id. Recording the same subtree twice before
// a drain has no further effect.
func (q *Queue) ProcessFragmentsIn(n *html.Node) {
	id, ok := dom.Attr(n, "id")
	if !ok || id == "" {
		id = All
	}
	if _, dup := q.seen[id]; dup {
		return
	}
	q.seen[id] = struct{}{}
	q.order = append(q.order, id)
}

// Len returns the number of pending targets.
func (q *Queue) Len() int {
	return len(q.order)
}

// Drain returns the pending targets in recording order and empties the
// queue. When the whole page is pending only All is returned.
func (q *Queue) Drain() []string {
	targets := q.order
	if _, all := q.seen[All]; all {
		targets = []string{All}
	}
	q.seen = make(map[string]struct{})
	q.order = nil
	return targets
}
