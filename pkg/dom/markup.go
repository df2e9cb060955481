package dom

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// InnerHTML serializes the children of n the way a browser's innerHTML
// getter does.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		serialize(&buf, c)
	}
	return buf.String()
}

// OuterHTML serializes n itself.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	serialize(&buf, n)
	return buf.String()
}

// ParseInner parses markup in the context of n, the way a browser's
// innerHTML setter does, without touching n. The markup is not validated;
// unbalanced tags are repaired by the HTML parser.
func ParseInner(n *html.Node, markup string) ([]*html.Node, error) {
	if n == nil || n.Type != html.ElementNode {
		return nil, ErrNoContext
	}
	context := &html.Node{
		Type:      html.ElementNode,
		Data:      n.Data,
		DataAtom:  n.DataAtom,
		Namespace: n.Namespace,
	}
	return html.ParseFragment(strings.NewReader(markup), context)
}

// ReplaceChildren makes nodes the children of n. The nodes must be
// detached, as ParseInner returns them.
func ReplaceChildren(n *html.Node, nodes []*html.Node) {
	RemoveChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
}

// SetInnerHTML replaces the children of n with markup parsed in the context
// of n. On error n is left unchanged.
func SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := ParseInner(n, markup)
	if err != nil {
		return err
	}
	ReplaceChildren(n, nodes)
	return nil
}

// Render writes n and its subtree, leaving out every node for which skip
// returns true. A nil skip renders everything.
func Render(w io.Writer, n *html.Node, skip func(*html.Node) bool) error {
	if skip != nil {
		n = filtered(n, skip)
	}
	var buf bytes.Buffer
	serialize(&buf, n)
	_, err := buf.WriteTo(w)
	return err
}

func filtered(n *html.Node, skip func(*html.Node) bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      n.Attr,
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if skip(child) {
			continue
		}
		c.AppendChild(filtered(child, skip))
	}
	return c
}
