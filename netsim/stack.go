//
// SPDX-License-Identifier: MIT
//
// Adapted from: https://github.com/ooni/netem/blob/061c5671b52a2c064cac1de5d464bb056f7ccaa8/gvisor.go
// Adapted from: https://github.com/WireGuard/wireguard-go
//

package netsim

import (
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/icmp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
)

// Stack wraps a gVisor [*stack.Stack] attached to a single NIC.
//
// Construct using [NewStack] or [*Internet.NewStack].
type Stack struct {
	// Stack is the underlying gVisor stack.
	Stack *stack.Stack

	// addrs contains the configured addresses.
	addrs []netip.Addr
}

// stackNICID is the ID of the single NIC of a [*Stack].
const stackNICID = 1

// NewStack creates a [*Stack] using the given link and addresses.
func NewStack(link stack.LinkEndpoint, addrs ...netip.Addr) (*Stack, error) {
	// 1. create the stack with the protocols we need
	nsp := stack.New(stack.Options{
		NetworkProtocols: []stack.NetworkProtocolFactory{
			ipv4.NewProtocol,
			ipv6.NewProtocol,
		},
		TransportProtocols: []stack.TransportProtocolFactory{
			udp.NewProtocol,
			icmp.NewProtocol4,
			icmp.NewProtocol6,
		},
		HandleLocal: true,
	})

	// 2. attach the link
	if err := nsp.CreateNIC(stackNICID, link); err != nil {
		nsp.Destroy()
		return nil, tcpipError(err)
	}

	// 3. configure the addresses
	for _, addr := range addrs {
		if err := nsp.AddProtocolAddress(stackNICID, protocolAddress(addr), stack.AddressProperties{}); err != nil {
			nsp.Destroy()
			return nil, tcpipError(err)
		}
	}

	// 4. route everything through the single NIC
	nsp.SetRouteTable([]tcpip.Route{
		{Destination: header.IPv4EmptySubnet, NIC: stackNICID},
		{Destination: header.IPv6EmptySubnet, NIC: stackNICID},
	})

	return &Stack{Stack: nsp, addrs: append([]netip.Addr(nil), addrs...)}, nil
}

// Addrs returns the addresses configured for the stack.
func (sx *Stack) Addrs() []netip.Addr {
	return append([]netip.Addr(nil), sx.addrs...)
}

func protocolAddress(addr netip.Addr) tcpip.ProtocolAddress {
	return tcpip.ProtocolAddress{
		Protocol:          networkProtocol(addr),
		AddressWithPrefix: tcpip.AddrFromSlice(addr.AsSlice()).WithPrefix(),
	}
}

func networkProtocol(addr netip.Addr) tcpip.NetworkProtocolNumber {
	if addr.Is4() {
		return ipv4.ProtocolNumber
	}
	return ipv6.ProtocolNumber
}

// fullAddress converts an endpoint to a [tcpip.FullAddress] bound to our NIC.
//
// In a single-NIC stack, unspecified addresses bind to every configured address.
func fullAddress(epnt netip.AddrPort) tcpip.FullAddress {
	return tcpip.FullAddress{
		NIC:  stackNICID,
		Addr: tcpip.AddrFromSlice(epnt.Addr().AsSlice()),
		Port: epnt.Port(),
	}
}

// DialUDP creates a new connected [*gonet.UDPConn].
func (sx *Stack) DialUDP(addr netip.AddrPort) (*gonet.UDPConn, error) {
	raddr := fullAddress(addr)
	return gonet.DialUDP(sx.Stack, nil, &raddr, networkProtocol(addr.Addr()))
}

// ListenUDP creates a new unconnected [*gonet.UDPConn].
func (sx *Stack) ListenUDP(addr netip.AddrPort) (*gonet.UDPConn, error) {
	laddr := fullAddress(addr)
	return gonet.DialUDP(sx.Stack, &laddr, nil, networkProtocol(addr.Addr()))
}

// Close destroys the stack and waits for the NIC teardown.
func (sx *Stack) Close() {
	sx.Stack.Destroy()
}
