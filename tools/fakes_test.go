// SPDX-License-Identifier: GPL-3.0-or-later

package tools_test

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/uishell/probe"
	"github.com/bassosimone/uishell/resolver"
	"github.com/bassosimone/uishell/shell"
	"github.com/bassosimone/uishell/tools"
	"github.com/stretchr/testify/require"
)

// findResult is one result returned by [*fakeResolver.Find].
type findResult struct {
	entry *resolver.Entry
	err   error
}

// fakeResolver is a [tools.Resolver] scripted by the test.
type fakeResolver struct {
	cached   *resolver.Entry
	changed  *shell.Channel[struct{}]
	desc     int
	finds    int
	queries  int
	queryErr error
	released []int
	results  []findResult
}

func newFakeResolver(results ...findResult) *fakeResolver {
	return &fakeResolver{
		changed: shell.NewChannel[struct{}]("dns-table-changed"),
		desc:    3,
		results: results,
	}
}

func (r *fakeResolver) Lookup(name string, typ resolver.Type) (*resolver.Entry, error) {
	if r.cached != nil {
		return r.cached, nil
	}
	return nil, resolver.ErrAgain
}

func (r *fakeResolver) QueryAsync(name string, typ resolver.Type) (int, error) {
	r.queries++
	if r.queryErr != nil {
		return -1, r.queryErr
	}
	return r.desc, nil
}

func (r *fakeResolver) Find(desc int, name string, typ resolver.Type) (*resolver.Entry, error) {
	r.finds++
	if desc != r.desc {
		return nil, resolver.ErrBadDescriptor
	}
	if len(r.results) <= 0 {
		return nil, resolver.ErrAgain
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res.entry, res.err
}

func (r *fakeResolver) Release(desc int) {
	r.released = append(r.released, desc)
}

func (r *fakeResolver) TableChanged() *shell.Channel[struct{}] {
	return r.changed
}

// fakeProbe is a [tools.ProbeHandle] driven by the test.
type fakeProbe struct {
	deletes        int
	maxOutstanding int
	onError        func(err error)
	onReply        func(reply probe.Reply)
	outstanding    int
	requestErr     error
	requests       int
	timeout        int
}

func (p *fakeProbe) SetCallbacks(onReply func(reply probe.Reply), onError func(err error)) {
	p.onReply = onReply
	p.onError = onError
}

func (p *fakeProbe) SetTimeout(ticks int) {
	p.timeout = ticks
}

func (p *fakeProbe) Request(size int) error {
	if p.deletes > 0 {
		return probe.ErrDeleted
	}
	if p.requestErr != nil {
		return p.requestErr
	}
	p.requests++
	p.outstanding++
	p.maxOutstanding = max(p.maxOutstanding, p.outstanding)
	return nil
}

func (p *fakeProbe) Outstanding() bool {
	return p.outstanding > 0
}

func (p *fakeProbe) Delete() {
	p.deletes++
}

// reply completes the outstanding request successfully.
func (p *fakeProbe) reply(t *testing.T) {
	t.Helper()
	require.Equal(t, 1, p.outstanding)
	p.outstanding--
	p.onReply(probe.Reply{
		Addr:    netip.MustParseAddr("10.0.0.1"),
		Seq:     uint16(p.requests),
		TTL:     64,
		Elapsed: 1500 * time.Microsecond,
	})
}

// fail completes the outstanding request with an error.
func (p *fakeProbe) fail(t *testing.T, err error) {
	t.Helper()
	require.Equal(t, 1, p.outstanding)
	p.outstanding--
	p.onError(err)
}

// fakeEngine is a [tools.ProbeEngine] returning a single probe.
type fakeEngine struct {
	err   error
	probe *fakeProbe
}

func (e *fakeEngine) NewProbe(addr netip.Addr) (tools.ProbeHandle, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.probe, nil
}

func newToolsShell(t *testing.T, deps tools.Deps) (*shell.Shell, *bytes.Buffer) {
	out := &bytes.Buffer{}
	sh := shell.New(out)
	require.NoError(t, tools.Register(sh, deps))
	return sh, out
}
