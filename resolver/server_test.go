// SPDX-License-Identifier: GPL-3.0-or-later

package resolver_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/uishell/netsim"
	"github.com/bassosimone/uishell/resolver"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuestion(name string, typ layers.DNSType) *layers.DNS {
	return &layers.DNS{
		ID: 7,
		RD: true,
		Questions: []layers.DNSQuestion{{
			Name:  []byte(name),
			Type:  typ,
			Class: layers.DNSClassIN,
		}},
	}
}

func TestServerAnswer(t *testing.T) {
	srv := resolver.NewServer(testZone, resolver.ServerOptionTTL(30))

	cases := []struct {
		name    string
		query   *layers.DNS
		rcode   layers.DNSResponseCode
		answers []layers.DNSType
	}{
		{
			name:    "a_record",
			query:   newQuestion("Example.COM.", layers.DNSTypeA),
			rcode:   layers.DNSResponseCodeNoErr,
			answers: []layers.DNSType{layers.DNSTypeA},
		},
		{
			name:    "a_through_alias",
			query:   newQuestion("www.example.com", layers.DNSTypeA),
			rcode:   layers.DNSResponseCodeNoErr,
			answers: []layers.DNSType{layers.DNSTypeCNAME, layers.DNSTypeA},
		},
		{
			name:    "cname_record",
			query:   newQuestion("www.example.com", layers.DNSTypeCNAME),
			rcode:   layers.DNSResponseCodeNoErr,
			answers: []layers.DNSType{layers.DNSTypeCNAME},
		},
		{
			name:  "unknown_name",
			query: newQuestion("example.org", layers.DNSTypeA),
			rcode: layers.DNSResponseCodeNXDomain,
		},
		{
			name:  "unsupported_type",
			query: newQuestion("example.com", layers.DNSTypeMX),
			rcode: layers.DNSResponseCodeNotImp,
		},
		{
			name:  "no_questions",
			query: &layers.DNS{ID: 7},
			rcode: layers.DNSResponseCodeFormErr,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := srv.Answer(tc.query)
			assert.True(t, resp.QR)
			assert.Equal(t, uint16(7), resp.ID)
			assert.Equal(t, tc.rcode, resp.ResponseCode)
			var types []layers.DNSType
			for _, rr := range resp.Answers {
				assert.Equal(t, uint32(30), rr.TTL)
				types = append(types, rr.Type)
			}
			assert.Equal(t, tc.answers, types)
		})
	}
}

func TestUDPExchangerWithServer(t *testing.T) {
	ix := netsim.NewInternet(netsim.InternetOptionMaxInflight(256))

	serverStack, err := ix.NewStack(netsim.MTUEthernet, netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)
	t.Cleanup(serverStack.Close)

	clientStack, err := ix.NewStack(netsim.MTUEthernet, netip.MustParseAddr("10.0.0.2"))
	require.NoError(t, err)
	t.Cleanup(clientStack.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go ix.Route(ctx)

	pconn, err := netsim.NewListenConfig(serverStack).ListenPacket(ctx, "udp", "10.0.0.1:53")
	require.NoError(t, err)
	go resolver.NewServer(testZone).Serve(ctx, pconn)

	poster := newQueuePoster()
	ex := resolver.NewUDPExchanger(netsim.NewDialer(clientStack), netip.MustParseAddrPort("10.0.0.1:53"))
	r := resolver.New(poster, ex)

	desc, err := r.QueryAsync("www.example.com", resolver.TypeA)
	require.NoError(t, err)
	poster.runNext(t)

	entry, err := r.Find(desc, "www.example.com", resolver.TypeA)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1")}, entry.Addrs)
}

func TestUDPExchangerTimeout(t *testing.T) {
	ix := netsim.NewInternet(netsim.InternetOptionMaxInflight(256))

	clientStack, err := ix.NewStack(netsim.MTUEthernet, netip.MustParseAddr("10.0.0.2"))
	require.NoError(t, err)
	t.Cleanup(clientStack.Close)

	ex := resolver.NewUDPExchanger(netsim.NewDialer(clientStack), netip.MustParseAddrPort("10.0.0.1:53"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = ex.Exchange(ctx, newQuestion("example.com", layers.DNSTypeA))
	require.Error(t, err)
}
