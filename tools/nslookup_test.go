// SPDX-License-Identifier: GPL-3.0-or-later

package tools_test

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/bassosimone/uishell/resolver"
	"github.com/bassosimone/uishell/shell"
	"github.com/bassosimone/uishell/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleEntry = &resolver.Entry{
	Name:  "example.com",
	Type:  resolver.TypeA,
	Addrs: []netip.Addr{netip.MustParseAddr("93.184.216.34")},
}

func TestNslookupPendingThenResolved(t *testing.T) {
	r := newFakeResolver(
		findResult{err: resolver.ErrAgain},
		findResult{err: resolver.ErrAgain},
		findResult{err: resolver.ErrAgain},
		findResult{entry: exampleEntry},
	)
	sh, out := newToolsShell(t, tools.Deps{Resolver: r})

	require.NoError(t, sh.Exec("nslookup example.com"))
	assert.True(t, sh.Busy())
	assert.Equal(t, 1, r.changed.Len())

	r.changed.Publish(struct{}{})
	r.changed.Publish(struct{}{})
	assert.Empty(t, out.String())
	assert.True(t, sh.Busy())
	assert.Empty(t, r.released)

	r.changed.Publish(struct{}{})
	assert.Equal(t, "example.com:\n\t93.184.216.34\n", out.String())
	assert.False(t, sh.Busy())
	assert.Equal(t, []int{3}, r.released)
	assert.Zero(t, r.changed.Len())

	r.changed.Publish(struct{}{})
	assert.Equal(t, 4, r.finds)
}

func TestNslookupImmediateFault(t *testing.T) {
	r := newFakeResolver()
	r.queryErr = fmt.Errorf("%w: no route to server", resolver.ErrFault)
	sh, out := newToolsShell(t, tools.Deps{Resolver: r})

	require.NoError(t, sh.Exec("nslookup example.com CNAME"))
	assert.Equal(t, "The DNS query failed (resolver fault).\n", out.String())
	assert.False(t, sh.Busy())
	assert.Zero(t, r.changed.Len())
	assert.Zero(t, r.finds)
	assert.Empty(t, r.released)
}

func TestNslookupOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		result findResult
		expect string
	}{
		{
			name:   "fault",
			result: findResult{err: resolver.ErrFault},
			expect: "The DNS query failed (resolver fault).\n",
		},
		{
			name:   "code",
			result: findResult{err: &resolver.CodeError{Code: 3}},
			expect: "The DNS query failed. Error code: 3\n",
		},
		{
			name:   "other",
			result: findResult{err: resolver.ErrBadDescriptor},
			expect: "The DNS query failed: resolver: bad descriptor\n",
		},
		{
			name: "cname",
			result: findResult{entry: &resolver.Entry{
				Name: "www.example.com", Type: resolver.TypeCNAME, CNAME: "example.com"}},
			expect: "www.example.com:\n\texample.com\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newFakeResolver(findResult{err: resolver.ErrAgain}, tc.result)
			sh, out := newToolsShell(t, tools.Deps{Resolver: r})

			require.NoError(t, sh.Exec("nslookup www.example.com CNAME"))
			require.True(t, sh.Busy())

			r.changed.Publish(struct{}{})
			assert.Equal(t, tc.expect, out.String())
			assert.False(t, sh.Busy())
			assert.Equal(t, []int{3}, r.released)
			assert.Zero(t, r.changed.Len())
		})
	}
}

func TestNslookupCompletesWithoutWaiting(t *testing.T) {
	t.Run("cached", func(t *testing.T) {
		r := newFakeResolver()
		r.cached = exampleEntry
		sh, out := newToolsShell(t, tools.Deps{Resolver: r})

		require.NoError(t, sh.Exec("nslookup example.com A"))
		assert.Equal(t, "example.com:\n\t93.184.216.34\n", out.String())
		assert.False(t, sh.Busy())
		assert.Zero(t, r.queries)
	})

	t.Run("resolved_by_query", func(t *testing.T) {
		r := newFakeResolver(findResult{entry: exampleEntry})
		sh, out := newToolsShell(t, tools.Deps{Resolver: r})

		require.NoError(t, sh.Exec("nslookup example.com"))
		assert.Equal(t, "example.com:\n\t93.184.216.34\n", out.String())
		assert.False(t, sh.Busy())
		assert.Equal(t, []int{3}, r.released)
		assert.Zero(t, r.changed.Len())
	})

	t.Run("query_code_error", func(t *testing.T) {
		r := newFakeResolver()
		r.queryErr = &resolver.CodeError{Code: resolver.CodeInvalidRequest}
		sh, out := newToolsShell(t, tools.Deps{Resolver: r})

		require.NoError(t, sh.Exec("nslookup example.com"))
		assert.Equal(t, "The DNS query failed. Error code: -22\n", out.String())
		assert.False(t, sh.Busy())
	})

	t.Run("subscribe_failure", func(t *testing.T) {
		r := newFakeResolver()
		r.changed.Close()
		sh, out := newToolsShell(t, tools.Deps{Resolver: r})

		require.NoError(t, sh.Exec("nslookup example.com"))
		assert.Contains(t, out.String(), "nslookup: cannot watch the DNS table")
		assert.False(t, sh.Busy())
		assert.Equal(t, []int{3}, r.released)
	})
}

func TestNslookupUsage(t *testing.T) {
	for _, line := range []string{"nslookup", "nslookup example.com AAAA", "nslookup a b c"} {
		t.Run(line, func(t *testing.T) {
			r := newFakeResolver()
			sh, out := newToolsShell(t, tools.Deps{Resolver: r})

			require.NoError(t, sh.Exec(line))
			assert.Equal(t, "Usage: nslookup <domain> [A|CNAME]\n", out.String())
			assert.False(t, sh.Busy())
			assert.Zero(t, r.queries)
		})
	}
}

func TestNslookupStop(t *testing.T) {
	cases := []struct {
		name string
		stop func(sh *shell.Shell)
	}{
		{name: "interrupt", stop: (*shell.Shell).Interrupt},
		{name: "shell_exit", stop: (*shell.Shell).Close},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newFakeResolver()
			sh, out := newToolsShell(t, tools.Deps{Resolver: r})

			require.NoError(t, sh.Exec("nslookup example.com"))
			tc.stop(sh)
			tc.stop(sh)
			assert.False(t, sh.Busy())
			assert.Equal(t, []int{3}, r.released)
			assert.Zero(t, r.changed.Len())
			assert.NotContains(t, out.String(), "failed")
		})
	}
}
