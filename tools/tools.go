// SPDX-License-Identifier: GPL-3.0-or-later

package tools

import (
	"net/netip"

	"github.com/bassosimone/uishell/probe"
	"github.com/bassosimone/uishell/resolver"
	"github.com/bassosimone/uishell/shell"
)

// Resolver is the DNS engine used by nslookup.
//
// The [*resolver.Resolver] implements this interface.
type Resolver interface {
	Lookup(name string, typ resolver.Type) (*resolver.Entry, error)
	QueryAsync(name string, typ resolver.Type) (int, error)
	Find(desc int, name string, typ resolver.Type) (*resolver.Entry, error)
	Release(desc int)
	TableChanged() *shell.Channel[struct{}]
}

var _ Resolver = &resolver.Resolver{}

// ProbeHandle is a probe created by a [ProbeEngine].
//
// The [*probe.Probe] implements this interface.
type ProbeHandle interface {
	SetCallbacks(onReply func(reply probe.Reply), onError func(err error))
	SetTimeout(ticks int)
	Request(size int) error
	Outstanding() bool
	Delete()
}

var _ ProbeHandle = &probe.Probe{}

// ProbeEngine is the ICMP engine used by ping.
type ProbeEngine interface {
	NewProbe(addr netip.Addr) (ProbeHandle, error)
}

// NewProbeEngine adapts a [*probe.Engine] to [ProbeEngine].
func NewProbeEngine(eng *probe.Engine) ProbeEngine {
	return &probeEngine{eng}
}

type probeEngine struct {
	eng *probe.Engine
}

func (pe *probeEngine) NewProbe(addr netip.Addr) (ProbeHandle, error) {
	p, err := pe.eng.NewProbe(addr)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Deps contains the engines used by the commands.
type Deps struct {
	// Resolver is the DNS engine. When nil, nslookup is not registered.
	Resolver Resolver

	// Probes is the ICMP engine. When nil, ping is not registered.
	Probes ProbeEngine
}

// Register installs the commands into the given [*shell.Shell].
func Register(sh *shell.Shell, deps Deps) error {
	var cmds []*shell.Command
	if deps.Resolver != nil {
		cmds = append(cmds, newNslookupCommand(deps.Resolver))
	}
	if deps.Probes != nil {
		cmds = append(cmds, newPingCommand(deps.Probes, sh.Timer1s()))
	}
	cmds = append(cmds, newTelnetCommand())
	return sh.Register(cmds...)
}
