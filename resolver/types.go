// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import (
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Type is the type of a DNS query.
type Type uint16

const (
	// TypeA queries for IPv4 addresses.
	TypeA Type = 1

	// TypeCNAME queries for the canonical name.
	TypeCNAME Type = 5
)

// String implements [fmt.Stringer].
func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeCNAME:
		return "CNAME"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// ParseType parses "A" or "CNAME".
func ParseType(s string) (Type, bool) {
	switch s {
	case "A":
		return TypeA, true
	case "CNAME":
		return TypeCNAME, true
	default:
		return 0, false
	}
}

// MaxNameLength is the maximum length of a domain name.
const MaxNameLength = 253

// Entry is a resolved table entry.
type Entry struct {
	// Name is the queried name.
	Name string

	// Type is the queried type.
	Type Type

	// Addrs contains the addresses of a [TypeA] entry.
	Addrs []netip.Addr

	// CNAME is the canonical name of a [TypeCNAME] entry.
	CNAME string

	// Expires is when the entry stops being served from the cache.
	Expires time.Time
}

var (
	// ErrAgain indicates that the query is still pending.
	ErrAgain = errors.New("resolver: try again")

	// ErrFault indicates that the exchange with the server failed.
	ErrFault = errors.New("resolver: query failed")

	// ErrBadDescriptor indicates an unknown or mismatched descriptor.
	ErrBadDescriptor = errors.New("resolver: bad descriptor")
)

// Error codes used by [*CodeError] besides the DNS response codes.
const (
	// CodeInvalidRequest means that the name or type is not valid.
	CodeInvalidRequest = -22

	// CodeNoData means that the response contained no matching record.
	CodeNoData = -61
)

// CodeError is a failure identified by a numeric code. Positive codes are
// DNS response codes; negative codes are defined by this package.
type CodeError struct {
	Code int
}

var _ error = &CodeError{}

// Error implements error.
func (e *CodeError) Error() string {
	return fmt.Sprintf("resolver: error code %d", e.Code)
}
