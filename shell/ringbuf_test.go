// SPDX-License-Identifier: GPL-3.0-or-later

package shell_test

import (
	"testing"

	"github.com/bassosimone/uishell/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferWriteBeyondCapacity(t *testing.T) {
	rb := shell.NewRingBuffer(4)
	assert.Equal(t, 4, rb.Write([]byte("abcdef")))
	assert.Equal(t, 4, rb.Len())
	assert.Equal(t, 4, rb.Cap())
	assert.Zero(t, rb.Write([]byte("g")))
}

func TestRingBufferPeekDoesNotConsume(t *testing.T) {
	rb := shell.NewRingBuffer(8)
	rb.Write([]byte("hello"))
	assert.Equal(t, []byte("hello"), rb.Peek(0))
	assert.Equal(t, []byte("llo"), rb.Peek(2))
	assert.Nil(t, rb.Peek(5))
	assert.Nil(t, rb.Peek(-1))
	assert.Equal(t, 5, rb.Len())
}

func TestRingBufferWrapsIntoTwoSpans(t *testing.T) {
	rb := shell.NewRingBuffer(8)
	rb.Write([]byte("012345"))
	rb.Skip(5)
	require.Equal(t, 6, rb.Write([]byte("abcdef")))

	head := rb.Peek(0)
	assert.Equal(t, []byte("5ab"), head)
	tail := rb.Peek(len(head))
	assert.Equal(t, []byte("cdef"), tail)
	assert.Equal(t, 7, rb.Len())

	rb.Skip(len(head) + len(tail))
	assert.Zero(t, rb.Len())
	assert.Nil(t, rb.Peek(0))
}

func TestRingBufferSkipTooMuchPanics(t *testing.T) {
	rb := shell.NewRingBuffer(8)
	rb.Write([]byte("ab"))
	assert.Panics(t, func() { rb.Skip(3) })
}
