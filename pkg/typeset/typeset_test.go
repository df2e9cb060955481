package typeset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
)

func TestQueueDedupes(t *testing.T) {
	q := NewQueue()
	a := dom.NewElement("p", html.Attribute{Key: "id", Val: "showpar0"})
	b := dom.NewElement("h1", html.Attribute{Key: "id", Val: "showh0"})

	q.ProcessFragmentsIn(a)
	q.ProcessFragmentsIn(b)
	q.ProcessFragmentsIn(a)

	if q.Len() != 2 {
		t.Fatalf("expected 2 pending targets, got %d", q.Len())
	}
	if diff := cmp.Diff([]string{"showpar0", "showh0"}, q.Drain()); diff != "" {
		t.Errorf("drain mismatch (-want +got):\n%s", diff)
	}
	if q.Len() != 0 {
		t.Error("queue should be empty after drain")
	}
}

func TestQueueAnonymousSubtree(t *testing.T) {
	q := NewQueue()
	q.ProcessFragmentsIn(dom.NewElement("p", html.Attribute{Key: "id", Val: "showpar0"}))
	q.ProcessFragmentsIn(dom.NewElement("p"))

	if diff := cmp.Diff([]string{All}, q.Drain()); diff != "" {
		t.Errorf("drain mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessorFunc(t *testing.T) {
	calls := 0
	var p Processor = ProcessorFunc(func(*html.Node) { calls++ })
	p.ProcessFragmentsIn(dom.NewElement("p"))
	Nop.ProcessFragmentsIn(dom.NewElement("p"))
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
