// Package editor implements the dual-representation editing model of a
// transcription page.
//
// Every paragraph and header of the page is a Block. In the editor variant
// each block is split into a triple view: the visible display fragment, a
// hidden source clone, and a textarea buffer holding the one writable copy
// of the markup. Edits to the buffer propagate to the other two fragments;
// the two global toggles of package view style the display fragments only.
// Finish collapses every triple back into a plain element and hands the
// serialized page to a Sink.
package editor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/gabrielmiguelok/livecorrect/pkg/dom"
)

// Editor errors.
var (
	ErrNoBody       = errors.New("editor: document has no body")
	ErrUnknownBlock = errors.New("editor: unknown block")
	ErrNotSplit     = errors.New("editor: block has no edit buffer")
	ErrFinalized    = errors.New("editor: session finalized")
)

// Document is a parsed page together with its blocks.
type Document struct {
	root   *html.Node
	html   *html.Node
	body   *html.Node
	blocks [2][]*Block
}

// NewDocument wraps a parsed page. Every <p> and <h1> in the body becomes an
// unsplit block; indexes follow document order per kind and never change.
func NewDocument(root *html.Node) (*Document, error) {
	htmlEl := dom.First(root, "html")
	if htmlEl == nil {
		return nil, ErrNoBody
	}
	body := dom.First(htmlEl, "body")
	if body == nil {
		return nil, ErrNoBody
	}

	d := &Document{root: root, html: htmlEl, body: body}
	for _, k := range Kinds {
		for i, n := range dom.FindAll(body, k.Tag()) {
			d.blocks[k] = append(d.blocks[k], &Block{Kind: k, Index: i, Display: n})
		}
	}
	return d, nil
}

// ParseDocument parses r and wraps the result.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := dom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return NewDocument(root)
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the <body> element.
func (d *Document) Body() *html.Node { return d.body }

// Blocks returns the blocks of kind k in index order.
func (d *Document) Blocks(k Kind) []*Block {
	if k != Paragraph && k != Header {
		return nil
	}
	return d.blocks[k]
}

// All returns every block: paragraphs first, then headers.
func (d *Document) All() []*Block {
	out := make([]*Block, 0, len(d.blocks[Paragraph])+len(d.blocks[Header]))
	out = append(out, d.blocks[Paragraph]...)
	return append(out, d.blocks[Header]...)
}

// Block returns block i of kind k.
func (d *Document) Block(k Kind, i int) (*Block, error) {
	blocks := d.Blocks(k)
	if i < 0 || i >= len(blocks) {
		return nil, fmt.Errorf("%w: %s %d", ErrUnknownBlock, k, i)
	}
	return blocks[i], nil
}

// Images returns every <img> element of the page.
func (d *Document) Images() []*html.Node {
	return dom.FindAll(d.root, "img")
}

// Serialize returns the page as it is stored on disk:
// "<html>\n" + inner HTML of the root element + "\n</html>\n".
func (d *Document) Serialize() string {
	var sb strings.Builder
	sb.WriteString("<html>\n")
	sb.WriteString(dom.InnerHTML(d.html))
	sb.WriteString("\n</html>\n")
	return sb.String()
}
