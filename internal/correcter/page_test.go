package correcter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/editor"
	"github.com/gabrielmiguelok/livecorrect/pkg/view"
	lvtest "github.com/gabrielmiguelok/livecorrect/pkg/testing"
)

const samplePage = `<html><head><script src="transcription.js"></script></head><body>
<h1>Title <b>x</b></h1>
<p>one<br>two <i>it</i></p>
<p>three <span class="sc">sc</span></p>
<img src="cut.png">
</body></html>`

func writePage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte(samplePage), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestPage(t *testing.T, mode editor.Mode, sink editor.Sink) *Page {
	t.Helper()
	return NewPage(PageOptions{
		Root:     writePage(t),
		Name:     "page.html",
		Mode:     mode,
		Suppress: []string{"**/transcription.js"},
		Sink:     sink,
	})
}

func TestPage_Mount(t *testing.T) {
	lvt := lvtest.Mount(t, newTestPage(t, editor.ModeEditor, nil))

	for _, id := range []string{"showpar0", "editpar0", "sourcepar0", "showpar1", "showh0", "edith0", "sourceh0"} {
		lvt.AssertHasElement(id)
	}
	lvt.AssertNoText("transcription.js").AssertText(ClientScript)

	ha := lvtest.NewHTMLAssert(t, lvt.Rendered())
	ha.HasClass("showpar0", view.ClassHighlight)
	ha.HasClass("editpar0", view.ClassHidden)
	ha.HasClass("sourcepar0", view.ClassHidden)
	ha.Count("button", 3)
	ha.HasText(view.LabelHideCutouts)
	ha.HasText(view.LabelBlack)

	pushed := lvt.Pushed(EventTypeset)
	if len(pushed) != 1 {
		t.Fatalf("typeset pushes = %d, want 1", len(pushed))
	}
	want := map[string]any{"targets": []string{"showpar0", "showpar1", "showh0"}}
	if diff := cmp.Diff(want, pushed[0].Payload); diff != "" {
		t.Errorf("typeset payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPage_MountMissingFile(t *testing.T) {
	p := NewPage(PageOptions{Root: t.TempDir(), Name: "nope.html"})
	err := p.Mount(context.Background(), nil, nil)
	if !errors.Is(err, ErrNoPage) {
		t.Errorf("expected ErrNoPage, got %v", err)
	}
}

func TestPage_Edit(t *testing.T) {
	lvt := lvtest.Mount(t, newTestPage(t, editor.ModeEditor, nil))

	lvt.Event(editor.EventEdit, map[string]any{"kind": "par", "index": float64(1), "value": "new <b>bold</b>"})

	if got := dom.Text(lvt.Element("showpar1")); got != "new bold" {
		t.Errorf("display text = %q", got)
	}
	if got := dom.InnerHTML(lvt.Element("sourcepar1")); got != "new <b>bold</b>" {
		t.Errorf("source = %q", got)
	}
	b := dom.First(lvt.Element("showpar1"), "b")
	if b == nil || !dom.HasClass(b, view.ClassColored) {
		t.Error("typed bold should be colored")
	}

	pushed := lvt.Pushed(EventTypeset)
	if len(pushed) != 2 {
		t.Fatalf("typeset pushes = %d, want 2", len(pushed))
	}
	if diff := cmp.Diff(map[string]any{"targets": []string{"showpar1"}}, pushed[1].Payload); diff != "" {
		t.Errorf("typeset payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPage_Activate(t *testing.T) {
	lvt := lvtest.Mount(t, newTestPage(t, editor.ModeEditor, nil))

	lvt.Event(editor.EventActivate, map[string]any{"kind": "h", "index": "0"})
	lvtest.NewHTMLAssert(t, lvt.Rendered()).NoClass("edith0", view.ClassHidden)

	lvt.Event(editor.EventActivate, map[string]any{"kind": "h", "index": "0"})
	lvtest.NewHTMLAssert(t, lvt.Rendered()).HasClass("edith0", view.ClassHidden)
}

func TestPage_BadPayloadsIgnored(t *testing.T) {
	lvt := lvtest.Mount(t, newTestPage(t, editor.ModeEditor, nil))
	before := lvt.Rendered()

	payloads := []map[string]any{
		{"kind": "zzz", "index": 0},
		{"kind": "par"},
		{"kind": "par", "index": 9},
		nil,
	}
	for _, p := range payloads {
		if err := lvt.TryEvent(editor.EventActivate, p); err != nil {
			t.Errorf("activate %v: %v", p, err)
		}
	}
	if err := lvt.TryEvent("unknown", nil); err != nil {
		t.Errorf("unknown event: %v", err)
	}
	if lvt.Rendered() != before {
		t.Error("ignored events must not change the page")
	}
}

func TestPage_Toggles(t *testing.T) {
	lvt := lvtest.Mount(t, newTestPage(t, editor.ModeEditor, nil))

	lvt.Event(editor.EventToggleCutouts, nil)
	ha := lvtest.NewHTMLAssert(t, lvt.Rendered())
	ha.NoClass("showpar0", view.ClassHighlight)
	ha.HasText(view.LabelShowCutouts)
	if img := dom.First(lvt.Document(), "img"); !dom.HasClass(img, view.ClassHidden) {
		t.Error("cutout image should be hidden")
	}

	lvt.Event(editor.EventToggleColors, nil)
	i := dom.First(lvt.Element("showpar0"), "i")
	if dom.HasClass(i, view.ClassColored) {
		t.Error("italic should lose its color")
	}
	src := dom.First(lvt.Element("sourcepar0"), "i")
	if dom.HasClass(src, view.ClassColored) {
		t.Error("source fragments are never colored")
	}
}

func TestPage_Finish(t *testing.T) {
	var pages []string
	sink := editor.SinkFunc(func(_ context.Context, page string) { pages = append(pages, page) })
	lvt := lvtest.Mount(t, newTestPage(t, editor.ModeEditor, sink))

	lvt.Event(editor.EventEdit, map[string]any{"kind": "par", "index": 0, "value": "fixed"})
	lvt.Event(editor.EventFinish, nil)

	if len(pages) != 1 {
		t.Fatalf("sink called %d times", len(pages))
	}
	page := pages[0]
	if !strings.HasPrefix(page, "<html>\n") || !strings.HasSuffix(page, "\n</html>\n") {
		t.Errorf("page framing: %q", page)
	}
	for _, gone := range []string{"<button", "<textarea", ClientScript, "showpar0", "lv-click"} {
		if strings.Contains(page, gone) {
			t.Errorf("finished page still contains %q", gone)
		}
	}
	if !strings.Contains(page, "<p>fixed</p>") {
		t.Errorf("edit lost: %s", page)
	}
	if !strings.Contains(page, "transcription.js") {
		t.Error("stored page keeps its own scripts")
	}

	if got := len(lvt.Pushed(EventFinished)); got != 1 {
		t.Errorf("finished pushes = %d, want 1", got)
	}

	lvt.Event(editor.EventToggleColors, nil)
	lvt.Event(editor.EventFinish, nil)
	if len(pages) != 1 {
		t.Error("events after finish must be ignored")
	}
	if got := len(lvt.Pushed(EventFinished)); got != 1 {
		t.Errorf("finished pushed again: %d", got)
	}
}

func TestPage_Slots(t *testing.T) {
	p := newTestPage(t, editor.ModeEditor, nil)
	lvtest.Mount(t, p)

	slots, frame := p.Slots()
	if len(slots) != 9 {
		t.Fatalf("slots = %d, want 9", len(slots))
	}
	if strings.Contains(frame, "showpar0") || strings.Contains(frame, "transcription.js") {
		t.Error("frame must leave out slots and suppressed scripts")
	}

	if err := p.HandleEvent(context.Background(), editor.EventEdit, map[string]any{"kind": "par", "index": 1, "value": "x"}); err != nil {
		t.Fatal(err)
	}
	after, afterFrame := p.Slots()
	if afterFrame != frame {
		t.Error("typing must not change the frame")
	}
	var changed []string
	for id, html := range after {
		if slots[id] != html {
			changed = append(changed, id)
		}
	}
	slices.Sort(changed)
	if diff := cmp.Diff([]string{"editpar1", "showpar1", "sourcepar1"}, changed); diff != "" {
		t.Errorf("changed slots (-want +got):\n%s", diff)
	}
}

func TestPage_Viewer(t *testing.T) {
	p := newTestPage(t, editor.ModeViewer, nil)
	lvt := lvtest.Mount(t, p)

	lvt.AssertNoElement("showpar0").AssertNoElement("editpar0")
	ha := lvtest.NewHTMLAssert(t, lvt.Rendered())
	ha.Count("button", 2)
	ha.Count("textarea", 0)
	for _, para := range dom.FindAll(lvt.Document(), "p") {
		if !dom.HasClass(para, view.ClassHighlight) {
			t.Error("viewer paragraphs should be highlighted")
		}
	}

	slots, frame := p.Slots()
	if len(slots) != 0 {
		t.Errorf("viewer has no slots, got %d", len(slots))
	}
	if frame != lvt.Rendered() {
		t.Error("viewer frame is the whole page")
	}

	lvt.Event(editor.EventFinish, nil)
	if len(lvt.Pushed(EventFinished)) != 0 {
		t.Error("viewer pages cannot be finished")
	}
}

func TestMatchScript(t *testing.T) {
	patterns := []string{"**/transcription.js"}
	tests := []struct {
		src  string
		want bool
	}{
		{"transcription.js", true},
		{"./transcription.js", true},
		{"../resources/transcription.js", true},
		{"/static/transcription.js?v=2", true},
		{"hierojax.js", false},
		{"transcription.jsx", false},
	}
	for _, tt := range tests {
		if got := matchScript(patterns, tt.src); got != tt.want {
			t.Errorf("matchScript(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
