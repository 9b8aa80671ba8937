//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/netem/blob/061c5671b52a2c064cac1de5d464bb056f7ccaa8/unetstack.go
//

package netsim

import (
	"context"
	"net"
	"net/netip"
	"syscall"
)

// ListenConfig creates listening [net.PacketConn] using a [*Stack].
//
// Only IP literal endpoints are supported.
//
// Construct using [NewListenConfig].
type ListenConfig struct {
	// stack is the stack to use.
	stack *Stack
}

// NewListenConfig creates a new [*ListenConfig].
func NewListenConfig(stack *Stack) *ListenConfig {
	return &ListenConfig{stack: stack}
}

// ListenPacket creates a listening "udp" [net.PacketConn].
func (lc *ListenConfig) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	if network != "udp" {
		return nil, syscall.EPROTOTYPE
	}
	addrport, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, err
	}
	pconn, err := lc.stack.ListenUDP(addrport)
	if err != nil {
		return nil, remapError(err)
	}
	return &remapPacketConn{pconn}, nil
}

// remapPacketConn remaps the errors of the wrapped [net.PacketConn].
type remapPacketConn struct {
	net.PacketConn
}

// ReadFrom implements [net.PacketConn].
func (pc *remapPacketConn) ReadFrom(buff []byte) (int, net.Addr, error) {
	count, addr, err := pc.PacketConn.ReadFrom(buff)
	return count, addr, remapError(err)
}

// WriteTo implements [net.PacketConn].
func (pc *remapPacketConn) WriteTo(pkt []byte, addr net.Addr) (int, error) {
	count, err := pc.PacketConn.WriteTo(pkt, addr)
	return count, remapError(err)
}
