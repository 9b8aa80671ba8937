// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"bytes"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/transport/icmp"
	"gvisor.dev/gvisor/pkg/waiter"
)

// EchoReply is an ICMPv4 echo reply read by [*PingConn.ReadEcho].
type EchoReply struct {
	// Addr is the address that replied.
	Addr netip.Addr

	// Seq is the echo sequence number.
	Seq uint16

	// TTL is the time to live of the reply, zero when unknown.
	TTL uint8

	// Payload is the echoed payload.
	Payload []byte
}

// PingConn is a connected ICMPv4 "ping socket" like the one Linux
// provides through SOCK_DGRAM and IPPROTO_ICMP. The stack chooses the
// echo identifier and only delivers replies matching it.
//
// Construct using [*Stack.DialPing].
type PingConn struct {
	// closed is closed by Close to unblock readers.
	closed chan struct{}

	// ep is the gVisor ICMP endpoint.
	ep tcpip.Endpoint

	// once provides "once" semantics for Close.
	once sync.Once

	// remote is the remote address.
	remote netip.Addr

	// wq is the endpoint waiter queue.
	wq *waiter.Queue
}

// DialPing creates a [*PingConn] towards the given IPv4 address.
func (sx *Stack) DialPing(addr netip.Addr) (*PingConn, error) {
	if !addr.Is4() {
		return nil, syscall.EAFNOSUPPORT
	}

	wq := &waiter.Queue{}
	ep, terr := sx.Stack.NewEndpoint(icmp.ProtocolNumber4, ipv4.ProtocolNumber, wq)
	if terr != nil {
		return nil, tcpipError(terr)
	}
	ep.SocketOptions().SetReceiveTTL(true)

	if terr := ep.Connect(fullAddress(netip.AddrPortFrom(addr, 0))); terr != nil {
		ep.Close()
		return nil, tcpipError(terr)
	}

	return &PingConn{
		closed: make(chan struct{}),
		ep:     ep,
		remote: addr,
		wq:     wq,
	}, nil
}

// RemoteAddr returns the remote address.
func (pc *PingConn) RemoteAddr() netip.Addr {
	return pc.remote
}

// WriteEcho sends an echo request with the given sequence number and payload.
func (pc *PingConn) WriteEcho(seq uint16, payload []byte) error {
	msg, err := encodeEchoRequest(seq, payload)
	if err != nil {
		return err
	}
	var reader bytes.Reader
	reader.Reset(msg)
	if _, terr := pc.ep.Write(&reader, tcpip.WriteOptions{}); terr != nil {
		return tcpipError(terr)
	}
	return nil
}

// ReadEcho blocks until it reads an echo reply or the conn is closed, in
// which case it returns [net.ErrClosed]. Messages that are not echo
// replies are skipped.
func (pc *PingConn) ReadEcho() (EchoReply, error) {
	entry, notifych := waiter.NewChannelEntry(waiter.ReadableEvents)
	pc.wq.EventRegister(&entry)
	defer pc.wq.EventUnregister(&entry)

	for {
		var buf bytes.Buffer
		res, terr := pc.ep.Read(&buf, tcpip.ReadOptions{})
		if _, ok := terr.(*tcpip.ErrWouldBlock); ok {
			select {
			case <-notifych:
				continue
			case <-pc.closed:
				return EchoReply{}, net.ErrClosed
			}
		}
		if terr != nil {
			return EchoReply{}, tcpipError(terr)
		}

		reply, ok := decodeEchoReply(buf.Bytes())
		if !ok {
			continue
		}
		reply.Addr = pc.remote
		if res.ControlMessages.HasTTL {
			reply.TTL = res.ControlMessages.TTL
		}
		return reply, nil
	}
}

// Close closes the conn and unblocks pending readers.
func (pc *PingConn) Close() error {
	pc.once.Do(func() {
		close(pc.closed)
		pc.ep.Close()
	})
	return nil
}

// encodeEchoRequest serializes an ICMPv4 echo request. The stack
// overwrites the identifier and recomputes the checksum.
func encodeEchoRequest(seq uint16, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	msg := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Seq:      seq,
	}
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, msg, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEchoReply parses an ICMPv4 message and accepts only echo replies.
func decodeEchoReply(data []byte) (EchoReply, bool) {
	var msg layers.ICMPv4
	if err := msg.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return EchoReply{}, false
	}
	if msg.TypeCode.Type() != layers.ICMPv4TypeEchoReply {
		return EchoReply{}, false
	}
	return EchoReply{
		Seq:     msg.Seq,
		Payload: append([]byte(nil), msg.Payload...),
	}, true
}
