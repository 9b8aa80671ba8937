// SPDX-License-Identifier: GPL-3.0-or-later

package tools

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/bassosimone/uishell/probe"
	"github.com/bassosimone/uishell/shell"
)

const (
	// pingPayloadSize is the size of the echo payload.
	pingPayloadSize = 56

	// pingTimeoutTicks is the timeout budget in 100 ms ticks.
	pingTimeoutTicks = 100
)

func newPingCommand(engine ProbeEngine, timer *shell.Channel[time.Time]) *shell.Command {
	return &shell.Command{
		Name:        "ping",
		Description: "Send ICMP echo requests every second.",
		Usage:       "ping <address>",
		Do: func(cc *shell.Context, args []string) {
			ping(cc, engine, timer, args)
		},
		OnEvent: onPingEvent,
	}
}

func ping(cc *shell.Context, engine ProbeEngine, timer *shell.Channel[time.Time], args []string) {
	if len(args) != 2 {
		cc.PrintUsage()
		cc.Finish()
		return
	}

	addr, err := netip.ParseAddr(args[1])
	if err != nil {
		cc.Printf("ping: %s: domain name resolution is not implemented\n", args[1])
		cc.Finish()
		return
	}

	sess, err := newProbeSession(cc, engine, timer, addr)
	if err != nil {
		cc.Printf("ping: %s\n", err)
		cc.Finish()
		return
	}
	cc.Attach(sess)
	cc.Printf("PING %s: %d data bytes\n", addr, pingPayloadSize)
}

func onPingEvent(cc *shell.Context, ev shell.Event) {
	if ev&shell.EventInterrupt != 0 {
		if sess, ok := shell.SessionAs[*probeSession](cc); ok && sess.phase == phaseProbing {
			sess.printStatistics()
		}
	}
	finishOnStop(cc, ev)
}

// probePhase is the discriminant of [*probeSession].
type probePhase int

const (
	// phaseResolving waits for the target name to resolve. The ping
	// command only accepts addresses, so it never enters this phase.
	phaseResolving = probePhase(iota)

	// phaseProbing sends echo requests.
	phaseProbing
)

// String implements [fmt.Stringer].
func (p probePhase) String() string {
	switch p {
	case phaseResolving:
		return "resolving"
	case phaseProbing:
		return "probing"
	default:
		return fmt.Sprintf("phase%d", int(p))
	}
}

// resolvingState is the payload of [phaseResolving].
type resolvingState struct {
	// name is the name being resolved.
	name string
}

// probingState is the payload of [phaseProbing].
type probingState struct {
	// probe is the probe handle, owned by the session.
	probe ProbeHandle

	// timer is the 1 s timer subscription.
	timer *shell.Subscription[time.Time]
}

// probeSession is the state of a running ping. The phase field tells
// which one of resolving and probing holds the payload.
type probeSession struct {
	// phase is the discriminant.
	phase probePhase

	// resolving is the payload when phase is phaseResolving.
	resolving *resolvingState

	// probing is the payload when phase is phaseProbing.
	probing *probingState

	// cc is the invocation context.
	cc *shell.Context

	// received counts the replies.
	received int

	// target is the address being pinged.
	target netip.Addr

	// transmitted counts the requests.
	transmitted int
}

var _ shell.Session = &probeSession{}

// newProbeSession creates a session in the probing phase. On failure,
// it releases whatever it acquired.
func newProbeSession(cc *shell.Context, engine ProbeEngine,
	timer *shell.Channel[time.Time], addr netip.Addr) (*probeSession, error) {
	handle, err := engine.NewProbe(addr)
	if err != nil {
		return nil, fmt.Errorf("cannot create probe: %w", err)
	}

	sess := &probeSession{
		phase:   phaseProbing,
		probing: &probingState{probe: handle},
		cc:      cc,
		target:  addr,
	}
	handle.SetCallbacks(sess.onReply, sess.onError)
	handle.SetTimeout(pingTimeoutTicks)

	sub, err := timer.Subscribe(sess.onTick)
	if err != nil {
		handle.Delete()
		return nil, fmt.Errorf("cannot subscribe to the timer: %w", err)
	}
	sess.probing.timer = sub
	return sess, nil
}

func (s *probeSession) onTick(time.Time) {
	pp := s.probing
	if pp.probe.Outstanding() {
		return
	}
	if err := pp.probe.Request(pingPayloadSize); err != nil {
		s.cc.Printf("ping: cannot send request: %s\n", err)
		s.cc.Finish()
		return
	}
	s.transmitted++
}

func (s *probeSession) onReply(reply probe.Reply) {
	s.received++
	s.cc.Printf("%d bytes from %s: icmp_seq=%d ttl=%d time=%d us\n",
		pingPayloadSize+8, reply.Addr, reply.Seq, reply.TTL, reply.Elapsed.Microseconds())
}

func (s *probeSession) onError(err error) {
	if errors.Is(err, probe.ErrTimeout) {
		s.cc.Printf("Request timeout for icmp_seq %d\n", s.transmitted)
		return
	}
	s.cc.Printf("ping: %s\n", err)
	s.cc.Finish()
}

func (s *probeSession) printStatistics() {
	loss := 0.0
	if s.transmitted > 0 {
		loss = 100 * float64(s.transmitted-s.received) / float64(s.transmitted)
	}
	s.cc.Printf("\n--- %s ping statistics ---\n", s.target)
	s.cc.Printf("%d packets transmitted, %d packets received, %.1f%% packet loss\n",
		s.transmitted, s.received, loss)
}

// Close implements [shell.Session].
func (s *probeSession) Close() {
	switch s.phase {
	case phaseProbing:
		s.probing.timer.Cancel()
		s.probing.probe.Delete()
	case phaseResolving:
		s.cc.Logger().Debug().Str("name", s.resolving.name).Msg("ping: no probe to release")
	}
	s.cc.Logger().Debug().Stringer("phase", s.phase).Int("transmitted", s.transmitted).Int("received", s.received).Msg("ping: session closed")
}
