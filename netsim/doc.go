// SPDX-License-Identifier: GPL-3.0-or-later

// Package netsim is the embedded network stack the shell tools run on.
//
// A [*Internet] moves raw IP packets between two or more [*Stack] instances
// created using [*Internet.NewStack]. Each [*Stack] wraps a gVisor network
// stack attached to a [*Link], which is a virtual NIC without L2 framing.
//
// Packets are not routed automatically. Either call [*Internet.Route] in a
// background goroutine or read from [*Internet.InFlight] and forward the
// frames you want using [*Internet.Deliver].
//
// On the application side, [*Dialer] creates connected UDP conns,
// [*ListenConfig] creates UDP packet conns, and [*Stack.DialPing] creates
// a [*PingConn] for sending ICMPv4 echo requests.
//
// The [*PCAPTrace] type captures packets in flight in PCAP format.
package netsim
