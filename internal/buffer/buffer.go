// Package buffer provides a pooled, growable byte buffer used by the wire
// codec. It mirrors the role of Azure/go-amqp's internal/buffer.Buffer:
// a single owned []byte with read/write cursors, cheap to reset and reuse.
package buffer

import "sync"

// Buffer is a growable byte slice with independent read/write offsets.
type Buffer struct {
	b   []byte
	off int // read offset
}

var pool = sync.Pool{
	New: func() interface{} { return &Buffer{b: make([]byte, 0, 512)} },
}

// Acquire returns a Buffer from the pool, reset and ready to use.
func Acquire() *Buffer {
	buf := pool.Get().(*Buffer)
	buf.Reset()
	return buf
}

// Release returns buf to the pool. buf must not be used afterwards.
func Release(buf *Buffer) {
	pool.Put(buf)
}

// New allocates a standalone Buffer not backed by the pool.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

func (b *Buffer) Len() int { return len(b.b) - b.off }

func (b *Buffer) Bytes() []byte { return b.b[b.off:] }

// Detach returns an owned copy of the unread bytes and resets the buffer.
func (b *Buffer) Detach() []byte {
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	b.Reset()
	return out
}

func (b *Buffer) Write(p []byte) { b.b = append(b.b, p...) }

func (b *Buffer) WriteByte(c byte) { b.b = append(b.b, c) }

func (b *Buffer) WriteString(s string) { b.b = append(b.b, s...) }

// Next consumes and returns up to n unread bytes.
func (b *Buffer) Next(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	out := b.b[b.off : b.off+n]
	b.off += n
	return out
}

// Skip advances the read offset by n bytes, clamped to Len().
func (b *Buffer) Skip(n int) {
	if n > b.Len() {
		n = b.Len()
	}
	b.off += n
}
