package editor

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the kind of a transcription block.
type Kind int

const (
	// Paragraph blocks are <p> elements.
	Paragraph Kind = iota
	// Header blocks are <h1> elements.
	Header
)

// Kinds lists every block kind in load order.
var Kinds = []Kind{Paragraph, Header}

// Tag returns the element name of the kind.
func (k Kind) Tag() string {
	if k == Header {
		return "h1"
	}
	return "p"
}

// stem is the infix used in element ids: showpar3, edith0.
func (k Kind) stem() string {
	if k == Header {
		return "h"
	}
	return "par"
}

func (k Kind) String() string {
	switch k {
	case Paragraph:
		return "paragraph"
	case Header:
		return "header"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Short returns the id stem, which is also the kind's wire name.
func (k Kind) Short() string {
	return k.stem()
}

// ParseKind accepts the wire name, the tag, or the long name of a kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "par", "p", "paragraph":
		return Paragraph, nil
	case "h", "h1", "header":
		return Header, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrUnknownBlock, s)
}

// DisplayID is the id of the visible fragment of block i.
func DisplayID(k Kind, i int) string {
	return "show" + k.stem() + strconv.Itoa(i)
}

// SourceID is the id of the hidden source fragment of block i.
func SourceID(k Kind, i int) string {
	return "source" + k.stem() + strconv.Itoa(i)
}

// EditorID is the id of the textarea buffer of block i.
func EditorID(k Kind, i int) string {
	return "edit" + k.stem() + strconv.Itoa(i)
}
