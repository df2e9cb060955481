package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
)

// Assert provides assertion helpers for tests.
type Assert struct {
	t testing.TB
}

// NewAssert creates a new Assert instance.
func NewAssert(t testing.TB) *Assert {
	return &Assert{t: t}
}

// True asserts that a condition is true.
func (a *Assert) True(condition bool, msgAndArgs ...any) {
	a.t.Helper()
	if !condition {
		a.fail("expected true but got false", msgAndArgs...)
	}
}

// False asserts that a condition is false.
func (a *Assert) False(condition bool, msgAndArgs ...any) {
	a.t.Helper()
	if condition {
		a.fail("expected false but got true", msgAndArgs...)
	}
}

// Equal asserts that two values are equal, reporting a diff otherwise.
func (a *Assert) Equal(want, got any, msgAndArgs ...any) {
	a.t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		a.fail(fmt.Sprintf("mismatch (-want +got):\n%s", diff), msgAndArgs...)
	}
}

// NoError asserts that an error is nil.
func (a *Assert) NoError(err error, msgAndArgs ...any) {
	a.t.Helper()
	if err != nil {
		a.fail(fmt.Sprintf("expected no error but got: %v", err), msgAndArgs...)
	}
}

// ErrorContains asserts that an error message contains a substring.
func (a *Assert) ErrorContains(err error, substring string, msgAndArgs ...any) {
	a.t.Helper()
	if err == nil {
		a.fail(fmt.Sprintf("expected error containing %q but got nil", substring), msgAndArgs...)
		return
	}
	if !strings.Contains(err.Error(), substring) {
		a.fail(fmt.Sprintf("expected error containing %q but got %q", substring, err.Error()), msgAndArgs...)
	}
}

// Contains asserts that a string contains a substring.
func (a *Assert) Contains(str, substring string, msgAndArgs ...any) {
	a.t.Helper()
	if !strings.Contains(str, substring) {
		a.fail(fmt.Sprintf("expected %q to contain %q", str, substring), msgAndArgs...)
	}
}

func (a *Assert) fail(message string, msgAndArgs ...any) {
	a.t.Helper()
	if len(msgAndArgs) > 0 {
		message = fmt.Sprintf("%s: %s", message, fmt.Sprint(msgAndArgs...))
	}
	a.t.Error(message)
}

// HTMLAssert asserts on a parsed HTML document.
type HTMLAssert struct {
	*Assert
	doc *html.Node
}

// NewHTMLAssert parses markup and returns an assertion helper for it.
func NewHTMLAssert(t testing.TB, markup string) *HTMLAssert {
	t.Helper()
	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatalf("parse HTML: %v", err)
	}
	return &HTMLAssert{Assert: NewAssert(t), doc: doc}
}

// HasID asserts that an element with the id exists.
func (ha *HTMLAssert) HasID(id string) *html.Node {
	ha.t.Helper()
	n := dom.FindByID(ha.doc, id)
	if n == nil {
		ha.fail(fmt.Sprintf("element #%s not found", id))
	}
	return n
}

// NoID asserts that no element has the id.
func (ha *HTMLAssert) NoID(id string) {
	ha.t.Helper()
	if dom.FindByID(ha.doc, id) != nil {
		ha.fail(fmt.Sprintf("element #%s should not exist", id))
	}
}

// HasClass asserts that the element with the id carries class c.
func (ha *HTMLAssert) HasClass(id, c string) {
	ha.t.Helper()
	if n := ha.HasID(id); n != nil && !dom.HasClass(n, c) {
		ha.fail(fmt.Sprintf("element #%s lacks class %q (has %v)", id, c, dom.Classes(n)))
	}
}

// NoClass asserts that the element with the id does not carry class c.
func (ha *HTMLAssert) NoClass(id, c string) {
	ha.t.Helper()
	if n := ha.HasID(id); n != nil && dom.HasClass(n, c) {
		ha.fail(fmt.Sprintf("element #%s should not have class %q", id, c))
	}
}

// Count asserts the number of elements with the tag.
func (ha *HTMLAssert) Count(tag string, want int) {
	ha.t.Helper()
	if got := len(dom.FindAll(ha.doc, tag)); got != want {
		ha.fail(fmt.Sprintf("expected %d <%s> elements, got %d", want, tag, got))
	}
}

// HasText asserts that the document text contains text.
func (ha *HTMLAssert) HasText(text string) {
	ha.t.Helper()
	ha.Contains(dom.Text(ha.doc), text)
}
