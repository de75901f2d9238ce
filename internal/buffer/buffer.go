// Package buffer implements the per-socket input/output byte buffers
// (spec.md §3, §4.1): a fixed-capacity byte slice with a fill cursor,
// head-compaction on consumption, and bounded growth.
package buffer

import (
	"fmt"

	"github.com/serveez-go/serveez/internal/alloc"
)

// DefaultSize is the default capacity for both the input and output buffer
// of a freshly allocated socket (spec.md §3: "default 8 KiB").
const DefaultSize = 8 * 1024

// Buffer is a growable-up-to-size byte buffer with a fill cursor. The
// invariant 0 <= fill <= size holds at every observation point (spec.md §8).
type Buffer struct {
	data []byte
	fill int
	acct *alloc.Accounting
}

// New allocates a buffer of the given size (capacity), tracked through acct
// if non-nil.
func New(acct *alloc.Accounting, size int) *Buffer {
	return &Buffer{data: alloc.MustAlloc(acct, size), acct: acct}
}

// Size returns the buffer's capacity.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Fill returns the number of valid bytes currently held.
func (b *Buffer) Fill() int {
	if b == nil {
		return 0
	}
	return b.fill
}

// Free returns the remaining unused capacity.
func (b *Buffer) Free() int {
	return b.Size() - b.Fill()
}

// Bytes returns the valid prefix of the buffer. The slice is only valid
// until the next mutating call.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data[:b.fill]
}

// Append copies p onto the end of the buffer. It reports false if p would
// overflow the remaining capacity; the caller is responsible for invoking
// `kicked` and scheduling shutdown per spec.md §4.1.
func (b *Buffer) Append(p []byte) bool {
	if len(p) > b.Free() {
		return false
	}
	copy(b.data[b.fill:], p)
	b.fill += len(p)
	return true
}

// Reduce compacts the head of the buffer by n bytes: the first n bytes are
// discarded and the remainder shifted to index 0. This is the only
// supported consumption primitive for handle_request (spec.md §4.1).
func (b *Buffer) Reduce(n int) error {
	if n < 0 || n > b.fill {
		return fmt.Errorf("buffer: reduce %d exceeds fill %d", n, b.fill)
	}
	if n == 0 {
		return nil
	}
	copy(b.data, b.data[n:b.fill])
	b.fill -= n
	return nil
}

// Resize reallocates the buffer to newSize, preserving up to newSize bytes
// of the current unconsumed content and discarding any excess at the tail
// (spec.md §4.1 resize_buffers).
func (b *Buffer) Resize(newSize int) {
	fresh := alloc.MustAlloc(b.acct, newSize)
	keep := b.fill
	if keep > newSize {
		keep = newSize
	}
	copy(fresh, b.data[:keep])
	alloc.Free(b.acct, len(b.data))
	b.data = fresh
	b.fill = keep
}

// Reset discards all buffered content without changing capacity.
func (b *Buffer) Reset() {
	b.fill = 0
}

// Close releases the buffer's backing storage back through acct.
func (b *Buffer) Close() {
	if b == nil {
		return
	}
	alloc.Free(b.acct, len(b.data))
	b.data = nil
	b.fill = 0
}
