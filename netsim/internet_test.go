// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/uishell/netsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

func TestInternetAddRouteDuplicateAddress(t *testing.T) {
	ix := netsim.NewInternet()
	link := ix.NewLink(netsim.MTUEthernet)
	addr := netip.MustParseAddr("10.0.0.1")

	require.NoError(t, ix.AddRoute(link, addr))
	require.Error(t, ix.AddRoute(link, addr))
}

func TestInternetNewStackDuplicateAddress(t *testing.T) {
	ix := netsim.NewInternet()
	addr := netip.MustParseAddr("10.0.0.1")

	stack, err := ix.NewStack(netsim.MTUEthernet, addr)
	require.NoError(t, err)
	t.Cleanup(stack.Close)
	assert.Equal(t, []netip.Addr{addr}, stack.Addrs())

	_, err = ix.NewStack(netsim.MTUEthernet, addr)
	require.Error(t, err)
}

func TestInternetDeliverFailures(t *testing.T) {
	ix := netsim.NewInternet()

	t.Run("empty_packet", func(t *testing.T) {
		require.False(t, ix.Deliver(netsim.Frame{}))
	})

	t.Run("unknown_version", func(t *testing.T) {
		require.False(t, ix.Deliver(netsim.Frame{Packet: []byte{0x70}}))
	})

	t.Run("ipv4_too_short", func(t *testing.T) {
		require.False(t, ix.Deliver(netsim.Frame{Packet: []byte{0x45, 0x00}}))
	})

	t.Run("ipv6_too_short", func(t *testing.T) {
		pkt := make([]byte, 36)
		pkt[0] = 0x60
		require.False(t, ix.Deliver(netsim.Frame{Packet: pkt}))
	})

	t.Run("missing_route_ipv4", func(t *testing.T) {
		pkt := make([]byte, 20)
		pkt[0] = 0x45
		copy(pkt[16:], []byte{10, 0, 0, 1})
		require.False(t, ix.Deliver(netsim.Frame{Packet: pkt}))
	})
}

func TestInternetSendFrameReturnsFalseWhenFull(t *testing.T) {
	ix := netsim.NewInternet(netsim.InternetOptionMaxInflight(0))
	link := ix.NewLink(netsim.MTUEthernet)

	pkts := stack.PacketBufferList{}
	pkts.PushBack(stack.NewPacketBuffer(stack.PacketBufferOptions{
		Payload: buffer.MakeWithData([]byte{0x45}),
	}))
	defer pkts.DecRef()

	num, err := link.WritePackets(pkts)
	require.True(t, err == nil)
	require.Equal(t, 0, num)
	assert.Equal(t, uint64(1), link.Stats().Dropped)
}

func TestInternetRouteStopsWithContext(t *testing.T) {
	ix := netsim.NewInternet()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ix.Route(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Route did not return")
	}
}
