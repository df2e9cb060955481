// Package pool reuses render buffers across requests and live events.
package pool

import (
	"bytes"
	"sync"
)

// MaxRetained is the largest buffer capacity returned to the pool. Pages
// with many cutouts render to a few hundred kilobytes; anything far beyond
// that is left to the garbage collector.
const MaxRetained = 4 << 20

var buffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer returns an empty buffer.
func GetBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Nil and oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > MaxRetained {
		return
	}
	buffers.Put(buf)
}
