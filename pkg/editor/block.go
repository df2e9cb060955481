package editor

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
	"github.com/gabrielmiguelok/livecorrect/pkg/view"
)

// Live event attributes read by the browser client.
const (
	AttrClick      = "lv-click"
	AttrInput      = "lv-input"
	AttrValueKind  = "lv-value-kind"
	AttrValueIndex = "lv-value-index"
	AttrControl    = "data-lv-control"
)

// Event names carried by the live attributes.
const (
	EventActivate      = "activate"
	EventEdit          = "edit"
	EventToggleCutouts = "toggle_cutouts"
	EventToggleColors  = "toggle_colors"
	EventFinish        = "finish"
)

// Block is one paragraph or header of the page.
//
// Before splitting only Display is set. After splitting the block owns its
// three fragments directly; nothing looks them up by id.
type Block struct {
	Kind  Kind
	Index int

	Display *html.Node
	Source  *html.Node
	Editor  *html.Node

	// Value is the buffer content, the single writable copy of the markup.
	Value string

	onActivate      func()
	onBufferChanged func(value string) error
}

// Split reports whether the block has its triple view.
func (b *Block) Split() bool {
	return b.Editor != nil
}

// Active reports whether the edit buffer is visible.
func (b *Block) Active() bool {
	return b.Split() && !dom.HasClass(b.Editor, view.ClassHidden)
}

// editorRows sizes the textarea: one row per line break of the display
// markup plus two, or two for headers.
func editorRows(k Kind, inner string) int {
	if k == Header {
		return 2
	}
	return strings.Count(inner, "br") + 2
}

// split builds the triple view of b and inserts it after the display so the
// siblings read display, editor, source.
func (b *Block) split() {
	k, i := b.Kind, b.Index
	inner := dom.InnerHTML(b.Display)

	dom.SetAttr(b.Display, "id", DisplayID(k, i))

	source := dom.Clone(b.Display)
	dom.SetAttr(source, "id", SourceID(k, i))
	dom.SetAttr(source, "class", view.ClassHidden)

	editor := dom.NewElement("textarea",
		html.Attribute{Key: "id", Val: EditorID(k, i)},
		html.Attribute{Key: "rows", Val: strconv.Itoa(editorRows(k, inner))},
		html.Attribute{Key: AttrInput, Val: EventEdit},
		html.Attribute{Key: AttrValueKind, Val: k.Short()},
		html.Attribute{Key: AttrValueIndex, Val: strconv.Itoa(i)},
	)
	dom.AddClass(editor, view.ClassHidden)
	dom.SetText(editor, inner)

	dom.SetAttr(b.Display, AttrClick, EventActivate)
	dom.SetAttr(b.Display, AttrValueKind, k.Short())
	dom.SetAttr(b.Display, AttrValueIndex, strconv.Itoa(i))

	dom.InsertAfter(b.Display, source)
	dom.InsertAfter(b.Display, editor)

	b.Source = source
	b.Editor = editor
	b.Value = inner
}

// propagate copies value into the source and display fragments and mirrors
// it into the textarea.
func (b *Block) propagate(value string) error {
	if err := dom.SetInnerHTML(b.Source, value); err != nil {
		return fmt.Errorf("sync %s: %w", SourceID(b.Kind, b.Index), err)
	}
	if err := dom.SetInnerHTML(b.Display, value); err != nil {
		return fmt.Errorf("sync %s: %w", DisplayID(b.Kind, b.Index), err)
	}
	b.Value = value
	dom.SetText(b.Editor, value)
	return nil
}

// collapsed parses the buffer value in the display's context without
// touching the page.
func (b *Block) collapsed() ([]*html.Node, error) {
	nodes, err := dom.ParseInner(b.Display, b.Value)
	if err != nil {
		return nil, fmt.Errorf("collapse %s: %w", DisplayID(b.Kind, b.Index), err)
	}
	return nodes, nil
}

// collapse turns the triple back into one plain element holding nodes, the
// parsed buffer value.
func (b *Block) collapse(nodes []*html.Node) {
	dom.ReplaceChildren(b.Display, nodes)
	dom.RemoveAttr(b.Display, "id")
	dom.RemoveAttr(b.Display, "class")
	dom.RemoveAttrFunc(b.Display, isLiveAttr)
	dom.Remove(b.Source)
	dom.Remove(b.Editor)
	b.Source, b.Editor = nil, nil
	b.onActivate, b.onBufferChanged = nil, nil
}

// Normalize returns value as a block of kind k holds it once parsed: the
// markup Source and Display serialize to after value is written to the
// buffer. Unbalanced tags come back closed and void tags lose any slash.
func Normalize(k Kind, value string) (string, error) {
	scratch := dom.NewElement(k.Tag())
	if err := dom.SetInnerHTML(scratch, value); err != nil {
		return "", err
	}
	return dom.InnerHTML(scratch), nil
}

func isLiveAttr(key string) bool {
	return strings.HasPrefix(key, "lv-")
}
