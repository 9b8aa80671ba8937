// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"sync"
	"sync/atomic"

	"github.com/bassosimone/runtimex"
	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

// Enumerate common MTU values.
const (
	// MTUEthernet is the MTU used by Ethernet.
	MTUEthernet = 1500

	// MTUMinimumIPv6 is the minimum MTU required by IPv6.
	MTUMinimumIPv6 = 1280

	// MTUJumbo is the MTU used by jumbo frames.
	MTUJumbo = 9000
)

// Frame is a raw IPv4 or IPv6 packet travelling between links.
type Frame struct {
	// Packet contains the raw IP packet.
	Packet []byte
}

// Network is where a [*Link] sends its frames.
//
// The [*Internet] implements this interface.
type Network interface {
	SendFrame(frame Frame) bool
}

// LinkStats contains the counters of a [*Link].
type LinkStats struct {
	// Sent is the number of frames accepted by the [Network].
	Sent uint64

	// Received is the number of frames injected into the stack.
	Received uint64

	// Dropped is the number of frames dropped in either direction.
	Dropped uint64
}

// Link is a virtual NIC moving raw IP packets. It implements
// [stack.LinkEndpoint], so a gVisor stack can use it.
//
// Outbound packets written by the stack go to the [Network]. Inbound
// packets enter the stack through [*Link.InjectFrame].
//
// Construct using [NewLink].
type Link struct {
	// closed indicates that the link does not accept more work.
	closed bool

	// disp delivers inbound packets and is set by Attach.
	disp stack.NetworkDispatcher

	// laddr is the link address.
	laddr tcpip.LinkAddress

	// mtu is the link MTU.
	mtu uint32

	// mu protects the fields above and onClose.
	mu sync.RWMutex

	// network is where we send frames.
	network Network

	// onClose runs when the link is closed.
	onClose func()

	// counters.
	sent, received, dropped atomic.Uint64
}

// NewLink creates a new [*Link] with the given MTU sending to the given
// [Network], which may be nil for a link that cannot send.
func NewLink(mtu uint32, network Network) *Link {
	return &Link{mtu: mtu, network: network}
}

var _ stack.LinkEndpoint = &Link{}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		Sent:     l.sent.Load(),
		Received: l.received.Load(),
		Dropped:  l.dropped.Load(),
	}
}

// ARPHardwareType implements [stack.LinkEndpoint].
func (l *Link) ARPHardwareType() header.ARPHardwareType {
	return header.ARPHardwareNone
}

// AddHeader implements [stack.LinkEndpoint].
func (l *Link) AddHeader(*stack.PacketBuffer) {}

// Attach implements [stack.LinkEndpoint].
func (l *Link) Attach(disp stack.NetworkDispatcher) {
	l.mu.Lock()
	if !l.closed {
		l.disp = disp
	}
	l.mu.Unlock()
}

// Capabilities implements [stack.LinkEndpoint].
func (l *Link) Capabilities() stack.LinkEndpointCapabilities {
	return 0
}

// Close implements [stack.LinkEndpoint].
func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.disp = nil
	onClose := l.onClose
	l.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// IsAttached implements [stack.LinkEndpoint].
func (l *Link) IsAttached() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.disp != nil && !l.closed
}

// LinkAddress implements [stack.LinkEndpoint].
func (l *Link) LinkAddress() tcpip.LinkAddress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.laddr
}

// MTU implements [stack.LinkEndpoint].
func (l *Link) MTU() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mtu
}

// MaxHeaderLength implements [stack.LinkEndpoint].
func (l *Link) MaxHeaderLength() uint16 {
	return 0
}

// ParseHeader implements [stack.LinkEndpoint].
func (l *Link) ParseHeader(*stack.PacketBuffer) bool {
	return true
}

// SetLinkAddress implements [stack.LinkEndpoint].
func (l *Link) SetLinkAddress(addr tcpip.LinkAddress) {
	l.mu.Lock()
	l.laddr = addr
	l.mu.Unlock()
}

// SetMTU implements [stack.LinkEndpoint].
func (l *Link) SetMTU(mtu uint32) {
	l.mu.Lock()
	l.mtu = mtu
	l.mu.Unlock()
}

// SetOnCloseAction implements [stack.LinkEndpoint].
func (l *Link) SetOnCloseAction(action func()) {
	l.mu.Lock()
	l.onClose = action
	l.mu.Unlock()
}

// Wait implements [stack.LinkEndpoint].
func (l *Link) Wait() {}

// WritePackets implements [stack.LinkEndpoint].
//
// Oversized packets and packets refused by the [Network] are dropped
// without failing the whole batch.
func (l *Link) WritePackets(pkts stack.PacketBufferList) (int, tcpip.Error) {
	l.mu.RLock()
	network, closed, mtu := l.network, l.closed, l.mtu
	l.mu.RUnlock()

	if closed || network == nil {
		return 0, &tcpip.ErrNoNet{}
	}

	var count int
	for _, pb := range pkts.AsSlice() {
		payload := packetBufferBytes(pb)
		if len(payload) <= 0 {
			continue
		}
		if uint32(len(payload)) > mtu || !network.SendFrame(Frame{Packet: payload}) {
			l.dropped.Add(1)
			continue
		}
		l.sent.Add(1)
		count++
	}
	return count, nil
}

// InjectFrame delivers an inbound raw IP packet to the stack.
//
// The stack receives a copy of the packet.
func (l *Link) InjectFrame(frame Frame) bool {
	pkt := frame.Packet
	if len(pkt) <= 0 {
		return false
	}
	proto, ok := networkProtocolOf(pkt)
	if !ok {
		l.dropped.Add(1)
		return false
	}

	l.mu.RLock()
	disp, closed, mtu := l.disp, l.closed, l.mtu
	l.mu.RUnlock()

	if closed || disp == nil || uint32(len(pkt)) > mtu {
		l.dropped.Add(1)
		return false
	}

	pkb := stack.NewPacketBuffer(stack.PacketBufferOptions{
		Payload: buffer.MakeWithData(append([]byte(nil), pkt...)),
	})
	defer pkb.DecRef()
	disp.DeliverNetworkPacket(proto, pkb)
	l.received.Add(1)
	return true
}

// networkProtocolOf returns the network protocol of a non-empty packet.
func networkProtocolOf(pkt []byte) (tcpip.NetworkProtocolNumber, bool) {
	runtimex.Assert(len(pkt) > 0)
	switch pkt[0] >> 4 {
	case 4:
		return ipv4.ProtocolNumber, true
	case 6:
		return ipv6.ProtocolNumber, true
	default:
		return 0, false
	}
}

// packetBufferBytes returns a copy of the bytes inside the packet buffer.
func packetBufferBytes(pb *stack.PacketBuffer) []byte {
	view := pb.ToView()
	defer view.Release()
	out := make([]byte, view.Size())
	_ = runtimex.PanicOnError1(view.Read(out))
	return out
}
