// SPDX-License-Identifier: GPL-3.0-or-later

package shell

import "github.com/bassosimone/runtimex"

// RingBuffer is a fixed-capacity byte FIFO.
//
// Reading is split into [*RingBuffer.Peek], which never consumes, and
// [*RingBuffer.Skip], which consumes. Because the storage wraps, the
// readable bytes may span two contiguous regions.
//
// Construct using [NewRingBuffer].
type RingBuffer struct {
	// data is the storage.
	data []byte

	// head is the index of the first readable byte.
	head int

	// size is the number of readable bytes.
	size int
}

// NewRingBuffer creates a [*RingBuffer] with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	runtimex.Assert(capacity > 0)
	return &RingBuffer{data: make([]byte, capacity)}
}

// Cap returns the capacity.
func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}

// Len returns the number of readable bytes.
func (rb *RingBuffer) Len() int {
	return rb.size
}

// Write appends as many bytes as fit and returns how many were written.
func (rb *RingBuffer) Write(p []byte) int {
	count := 0
	for count < len(p) && rb.size < len(rb.data) {
		tail := (rb.head + rb.size) % len(rb.data)
		span := min(len(rb.data)-tail, len(rb.data)-rb.size)
		n := copy(rb.data[tail:tail+span], p[count:])
		rb.size += n
		count += n
	}
	return count
}

// Peek returns the contiguous readable span starting offset bytes after
// the first readable byte, without consuming it. The span ends at the
// end of the readable region or at the end of the storage, whichever
// comes first. It returns nil when offset is not before the end of the
// readable region.
func (rb *RingBuffer) Peek(offset int) []byte {
	if offset < 0 || offset >= rb.size {
		return nil
	}
	start := (rb.head + offset) % len(rb.data)
	span := min(len(rb.data)-start, rb.size-offset)
	return rb.data[start : start+span]
}

// Skip consumes count bytes. Skipping more than [*RingBuffer.Len]
// bytes is a programming error.
func (rb *RingBuffer) Skip(count int) {
	runtimex.Assert(count >= 0 && count <= rb.size)
	rb.head = (rb.head + count) % len(rb.data)
	rb.size -= count
}
