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

// Dialer dials [net.Conn] like [*net.Dialer] using a [*Stack].
//
// Only IP literal endpoints are supported. Dialing a domain name fails.
//
// Construct using [NewDialer].
type Dialer struct {
	// stack is the stack to use.
	stack *Stack
}

// NewDialer creates a new [*Dialer].
func NewDialer(stack *Stack) *Dialer {
	return &Dialer{stack: stack}
}

// DialContext creates a new "udp" [net.Conn]. Other networks fail
// with [syscall.EPROTOTYPE].
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "udp" {
		return nil, syscall.EPROTOTYPE
	}
	addrport, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, err
	}
	conn, err := d.stack.DialUDP(addrport)
	if err != nil {
		return nil, remapError(err)
	}
	return &remapConn{conn}, nil
}

// DialPing creates a new [*PingConn] towards the given IPv4 address.
func (d *Dialer) DialPing(addr netip.Addr) (*PingConn, error) {
	return d.stack.DialPing(addr)
}

// remapConn remaps the errors of the wrapped [net.Conn].
type remapConn struct {
	net.Conn
}

// Read implements [net.Conn].
func (c *remapConn) Read(buff []byte) (int, error) {
	count, err := c.Conn.Read(buff)
	return count, remapError(err)
}

// Write implements [net.Conn].
func (c *remapConn) Write(data []byte) (int, error) {
	count, err := c.Conn.Write(data)
	return count, remapError(err)
}
