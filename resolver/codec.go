// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// errNotResponse indicates that a decoded message is not a response.
var errNotResponse = fmt.Errorf("%w: not a response", ErrFault)

// newQuery creates a query message for the given name and type.
func newQuery(id uint16, name string, typ Type) *layers.DNS {
	return &layers.DNS{
		ID: id,
		RD: true,
		Questions: []layers.DNSQuestion{{
			Name:  []byte(name),
			Type:  layers.DNSType(typ),
			Class: layers.DNSClassIN,
		}},
	}
}

// encodeMessage serializes a DNS message.
func encodeMessage(msg *layers.DNS) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := msg.SerializeTo(buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMessage parses a DNS message.
func decodeMessage(data []byte) (*layers.DNS, error) {
	msg := &layers.DNS{}
	if err := msg.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return msg, nil
}

// parseResponse converts a response into an [*Entry] or an error.
func parseResponse(resp *layers.DNS, name string, typ Type, now time.Time) (*Entry, error) {
	if !resp.QR {
		return nil, errNotResponse
	}
	if resp.ResponseCode != layers.DNSResponseCodeNoErr {
		return nil, &CodeError{Code: int(resp.ResponseCode)}
	}

	entry := &Entry{Name: name, Type: typ}
	ttl := uint32(0)
	found := false
	for _, rr := range resp.Answers {
		if Type(rr.Type) != typ || rr.Class != layers.DNSClassIN {
			continue
		}
		switch typ {
		case TypeA:
			addr, ok := netip.AddrFromSlice(rr.IP.To4())
			if !ok {
				continue
			}
			entry.Addrs = append(entry.Addrs, addr)
		case TypeCNAME:
			if found {
				continue
			}
			entry.CNAME = strings.TrimSuffix(string(rr.CNAME), ".")
		}
		if !found || rr.TTL < ttl {
			ttl = rr.TTL
		}
		found = true
	}
	if !found {
		return nil, &CodeError{Code: CodeNoData}
	}
	entry.Expires = now.Add(time.Duration(ttl) * time.Second)
	return entry, nil
}

// newAnswerA creates an A answer record.
func newAnswerA(name string, addr netip.Addr, ttl uint32) layers.DNSResourceRecord {
	return layers.DNSResourceRecord{
		Name:  []byte(name),
		Type:  layers.DNSTypeA,
		Class: layers.DNSClassIN,
		TTL:   ttl,
		IP:    net.IP(addr.AsSlice()),
	}
}

// newAnswerCNAME creates a CNAME answer record.
func newAnswerCNAME(name, cname string, ttl uint32) layers.DNSResourceRecord {
	return layers.DNSResourceRecord{
		Name:  []byte(name),
		Type:  layers.DNSTypeCNAME,
		Class: layers.DNSClassIN,
		TTL:   ttl,
		CNAME: []byte(cname),
	}
}
