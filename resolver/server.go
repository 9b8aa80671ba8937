// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"
)

// Record contains the data the [*Server] serves for a name. A record
// either has addresses or is an alias for another name.
type Record struct {
	// Addrs contains the IPv4 addresses.
	Addrs []netip.Addr

	// CNAME is the canonical name, when the name is an alias.
	CNAME string
}

// Zone maps lowercase names without the trailing dot to records.
type Zone map[string]Record

// DefaultServerTTL is the default TTL of the answers, in seconds.
const DefaultServerTTL = 60

// ServerOption is an option for [NewServer].
type ServerOption func(srv *Server)

// ServerOptionLogger sets the logger.
func ServerOptionLogger(logger zerolog.Logger) ServerOption {
	return func(srv *Server) {
		srv.logger = logger
	}
}

// ServerOptionTTL sets the TTL of the answers, in seconds.
func ServerOptionTTL(ttl uint32) ServerOption {
	return func(srv *Server) {
		srv.ttl = ttl
	}
}

// Server is a DNS server answering A and CNAME queries from a [Zone].
//
// Construct using [NewServer].
type Server struct {
	// logger is the logger to use.
	logger zerolog.Logger

	// ttl is the TTL of the answers.
	ttl uint32

	// zone contains the served records.
	zone Zone
}

// NewServer creates a new [*Server].
func NewServer(zone Zone, options ...ServerOption) *Server {
	srv := &Server{
		logger: zerolog.Nop(),
		ttl:    DefaultServerTTL,
		zone:   zone,
	}
	for _, opt := range options {
		opt(srv)
	}
	return srv
}

// Serve answers the queries received by pconn until the context is done,
// in which case it closes pconn and returns nil.
func (srv *Server) Serve(ctx context.Context, pconn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		pconn.Close()
	})
	defer stop()

	buf := make([]byte, maxMessageSize)
	for {
		count, addr, err := pconn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		query, err := decodeMessage(buf[:count])
		if err != nil || query.QR {
			srv.logger.Debug().Stringer("from", addr).Msg("resolver: ignoring malformed query")
			continue
		}

		rawResp, err := encodeMessage(srv.Answer(query))
		if err != nil {
			srv.logger.Warn().Err(err).Msg("resolver: cannot encode response")
			continue
		}
		if _, err := pconn.WriteTo(rawResp, addr); err != nil {
			srv.logger.Debug().Err(err).Stringer("to", addr).Msg("resolver: cannot send response")
		}
	}
}

// Answer returns the response to the given query.
func (srv *Server) Answer(query *layers.DNS) *layers.DNS {
	resp := &layers.DNS{
		ID:        query.ID,
		QR:        true,
		OpCode:    query.OpCode,
		AA:        true,
		RD:        query.RD,
		Questions: query.Questions,
	}
	if query.OpCode != layers.DNSOpCodeQuery || len(query.Questions) != 1 {
		resp.ResponseCode = layers.DNSResponseCodeFormErr
		return resp
	}

	q := query.Questions[0]
	name := strings.ToLower(strings.TrimSuffix(string(q.Name), "."))
	rec, found := srv.zone[name]
	if !found || q.Class != layers.DNSClassIN {
		resp.ResponseCode = layers.DNSResponseCodeNXDomain
		return resp
	}

	switch q.Type {
	case layers.DNSTypeCNAME:
		if rec.CNAME != "" {
			resp.Answers = append(resp.Answers, newAnswerCNAME(name, rec.CNAME, srv.ttl))
		}

	case layers.DNSTypeA:
		if rec.CNAME != "" {
			resp.Answers = append(resp.Answers, newAnswerCNAME(name, rec.CNAME, srv.ttl))
			name, rec = rec.CNAME, srv.zone[rec.CNAME]
		}
		for _, addr := range rec.Addrs {
			if addr.Is4() {
				resp.Answers = append(resp.Answers, newAnswerA(name, addr, srv.ttl))
			}
		}

	default:
		resp.ResponseCode = layers.DNSResponseCodeNotImp
	}
	return resp
}
