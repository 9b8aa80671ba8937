// SPDX-License-Identifier: GPL-3.0-or-later

package tools

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bassosimone/iotest"
	"github.com/bassosimone/uishell/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpans reports fixed spans regardless of the readable count.
type fakeSpans struct {
	first   []byte
	second  []byte
	skipped int
}

func (f *fakeSpans) Peek(offset int) []byte {
	switch offset {
	case 0:
		return f.first
	case len(f.first):
		return f.second
	default:
		return nil
	}
}

func (f *fakeSpans) Skip(count int) {
	f.skipped += count
}

func TestRelayClampsSpans(t *testing.T) {
	cases := []struct {
		name     string
		first    int
		second   int
		readable int
		expect   int
	}{
		{name: "clamp_second_span", first: 10, second: 20, readable: 25, expect: 25},
		{name: "clamp_first_span", first: 10, second: 20, readable: 4, expect: 4},
		{name: "both_spans", first: 10, second: 20, readable: 30, expect: 30},
		{name: "nothing_readable", first: 10, second: 20, readable: 0, expect: 0},
		{name: "single_span", first: 7, second: 0, readable: 7, expect: 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := &fakeSpans{
				first:  bytes.Repeat([]byte("a"), tc.first),
				second: bytes.Repeat([]byte("b"), tc.second),
			}
			out := &bytes.Buffer{}

			count, err := relay(out, spans, tc.readable)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, count)
			assert.Equal(t, tc.expect, out.Len())
			assert.Equal(t, tc.expect, spans.skipped)
			assert.LessOrEqual(t, spans.skipped, tc.readable)
		})
	}
}

func TestRelayWrappedRingBuffer(t *testing.T) {
	rb := shell.NewRingBuffer(8)
	require.Equal(t, 6, rb.Write([]byte("xxxxxx")))
	rb.Skip(6)
	require.Equal(t, 5, rb.Write([]byte("hello")))

	out := &bytes.Buffer{}
	count, err := relay(out, rb, rb.Len())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, "hello", out.String())
	assert.Zero(t, rb.Len())
}

func TestRelayWriteErrorStillSkips(t *testing.T) {
	writeErr := errors.New("mocked write error")
	w := &iotest.FuncWriter{
		WriteFunc: func([]byte) (int, error) {
			return 0, writeErr
		},
	}
	spans := &fakeSpans{first: []byte("abc"), second: []byte("de")}

	count, err := relay(w, spans, 5)
	require.ErrorIs(t, err, writeErr)
	assert.Equal(t, 5, count)
	assert.Equal(t, 5, spans.skipped)
}

func TestProbePhaseString(t *testing.T) {
	assert.Equal(t, "resolving", phaseResolving.String())
	assert.Equal(t, "probing", phaseProbing.String())
}

func TestProbeSessionCloseInResolvingPhase(t *testing.T) {
	sh := shell.New(&bytes.Buffer{})
	var sess *probeSession
	require.NoError(t, sh.Register(&shell.Command{
		Name: "resolve",
		Do: func(cc *shell.Context, args []string) {
			sess = &probeSession{
				phase:     phaseResolving,
				resolving: &resolvingState{name: "example.com"},
				cc:        cc,
			}
			cc.Attach(sess)
		},
		OnEvent: onPingEvent,
	}))

	require.NoError(t, sh.Exec("resolve"))
	sh.Interrupt()
	assert.False(t, sh.Busy())
	assert.Nil(t, sess.probing)
}
