// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"
)

// Dialer creates UDP conns.
//
// The [*netsim.Dialer] implements this interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// maxMessageSize is the size of the receive buffer.
const maxMessageSize = 4096

// UDPExchanger implements [Exchanger] using DNS over UDP.
//
// Construct using [NewUDPExchanger].
type UDPExchanger struct {
	// dialer creates the conns.
	dialer Dialer

	// server is the server endpoint.
	server netip.AddrPort
}

var _ Exchanger = &UDPExchanger{}

// NewUDPExchanger creates a new [*UDPExchanger].
func NewUDPExchanger(dialer Dialer, server netip.AddrPort) *UDPExchanger {
	return &UDPExchanger{dialer: dialer, server: server}
}

// Exchange implements [Exchanger]. It uses a new conn for each query
// and ignores datagrams that do not answer the query.
func (ex *UDPExchanger) Exchange(ctx context.Context, query *layers.DNS) (*layers.DNS, error) {
	rawQuery, err := encodeMessage(query)
	if err != nil {
		return nil, err
	}

	conn, err := ex.dialer.DialContext(ctx, "udp", ex.server.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(rawQuery); err != nil {
		return nil, err
	}

	buf := make([]byte, maxMessageSize)
	for {
		count, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		resp, err := decodeMessage(buf[:count])
		if err != nil || !resp.QR || resp.ID != query.ID {
			continue
		}
		return resp, nil
	}
}
