// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"github.com/bassosimone/uishell/netsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLonelyStack(t *testing.T, addr string) *netsim.Stack {
	link := netsim.NewLink(netsim.MTUEthernet, nil)
	stack, err := netsim.NewStack(link, netip.MustParseAddr(addr))
	require.NoError(t, err)
	t.Cleanup(stack.Close)
	return stack
}

func TestDialerDialContextRejectsDomain(t *testing.T) {
	dialer := netsim.NewDialer(newLonelyStack(t, "10.0.0.1"))
	_, err := dialer.DialContext(context.Background(), "udp", "example.com:53")
	require.Error(t, err)
}

func TestDialerDialContextRejectsUnknownNetwork(t *testing.T) {
	dialer := netsim.NewDialer(newLonelyStack(t, "10.0.0.1"))
	_, err := dialer.DialContext(context.Background(), "tcp", "10.0.0.1:80")
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EPROTOTYPE))
}

func TestDialerUDPDeadlinesAndAddrs(t *testing.T) {
	dialer := netsim.NewDialer(newLonelyStack(t, "10.0.0.1"))
	conn, err := dialer.DialContext(context.Background(), "udp", "10.0.0.2:53")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	laddr, ok := conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	assert.True(t, laddr.IP.Equal(net.ParseIP("10.0.0.1")))
	assert.NotZero(t, laddr.Port)

	raddr, ok := conn.RemoteAddr().(*net.UDPAddr)
	require.True(t, ok)
	assert.Equal(t, 53, raddr.Port)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Microsecond)))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	var neterr net.Error
	require.True(t, errors.As(err, &neterr))
	assert.True(t, neterr.Timeout())
}

func TestDialerDialPingRejectsIPv6(t *testing.T) {
	dialer := netsim.NewDialer(newLonelyStack(t, "10.0.0.1"))
	_, err := dialer.DialPing(netip.MustParseAddr("2001:db8::1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EAFNOSUPPORT))
}
