package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Elements serialized without an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "basefont": true, "bgsound": true,
	"br": true, "col": true, "embed": true, "frame": true,
	"hr": true, "img": true, "input": true, "keygen": true,
	"link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// Elements whose text children are written verbatim.
var rawTextElements = map[string]bool{
	"style": true, "script": true, "xmp": true, "iframe": true,
	"noembed": true, "noframes": true, "plaintext": true, "noscript": true,
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "\u00a0", "&nbsp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "\u00a0", "&nbsp;", `"`, "&quot;")
)

// serialize writes n following the HTML fragment serialization algorithm,
// so markup read back matches what a browser reports for the same tree:
// void tags carry no slash and a no-break space stays &nbsp;.
func serialize(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			serialize(buf, c)
		}
	case html.DoctypeNode:
		serializeDoctype(buf, n)
	case html.CommentNode:
		buf.WriteString("<!--")
		buf.WriteString(n.Data)
		buf.WriteString("-->")
	case html.TextNode:
		if p := n.Parent; p != nil && p.Type == html.ElementNode && p.Namespace == "" && rawTextElements[p.Data] {
			buf.WriteString(n.Data)
			return
		}
		textEscaper.WriteString(buf, n.Data)
	case html.RawNode:
		buf.WriteString(n.Data)
	case html.ElementNode:
		serializeElement(buf, n)
	}
}

func serializeElement(buf *bytes.Buffer, n *html.Node) {
	buf.WriteByte('<')
	buf.WriteString(n.Data)
	for _, a := range n.Attr {
		buf.WriteByte(' ')
		if a.Namespace != "" {
			buf.WriteString(a.Namespace)
			buf.WriteByte(':')
		}
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		attrEscaper.WriteString(buf, a.Val)
		buf.WriteByte('"')
	}
	buf.WriteByte('>')

	if n.Namespace == "" && voidElements[n.Data] {
		return
	}

	if n.Namespace == "" {
		switch n.Data {
		case "pre", "textarea", "listing":
			// The parser drops one leading newline inside these.
			if c := n.FirstChild; c != nil && c.Type == html.TextNode && strings.HasPrefix(c.Data, "\n") {
				buf.WriteByte('\n')
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		serialize(buf, c)
	}
	buf.WriteString("</")
	buf.WriteString(n.Data)
	buf.WriteByte('>')
}

func serializeDoctype(buf *bytes.Buffer, n *html.Node) {
	buf.WriteString("<!DOCTYPE ")
	buf.WriteString(n.Data)
	var public, system string
	for _, a := range n.Attr {
		switch a.Key {
		case "public":
			public = a.Val
		case "system":
			system = a.Val
		}
	}
	if public != "" {
		buf.WriteString(` PUBLIC "`)
		buf.WriteString(public)
		buf.WriteByte('"')
		if system != "" {
			buf.WriteString(` "`)
			buf.WriteString(system)
			buf.WriteByte('"')
		}
	} else if system != "" {
		buf.WriteString(` SYSTEM "`)
		buf.WriteString(system)
		buf.WriteByte('"')
	}
	buf.WriteByte('>')
}
