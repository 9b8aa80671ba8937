//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/netem/blob/061c5671b52a2c064cac1de5d464bb056f7ccaa8/unetstack.go
//

package netsim

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"gvisor.dev/gvisor/pkg/tcpip"
)

// errnoBySuffix maps gVisor error messages to stdlib errors.
//
// See https://github.com/google/gvisor/blob/master/pkg/tcpip/errors.go
var errnoBySuffix = []struct {
	suffix string
	err    error
}{
	{"endpoint is closed for receive", net.ErrClosed},
	{"endpoint is closed for send", net.ErrClosed},
	{"connection aborted", syscall.ECONNABORTED},
	{"connection was refused", syscall.ECONNREFUSED},
	{"connection reset by peer", syscall.ECONNRESET},
	{"network is unreachable", syscall.ENETUNREACH},
	{"no route to host", syscall.EHOSTUNREACH},
	{"host is down", syscall.EHOSTDOWN},
	{"machine is not on the network", syscall.ENETDOWN},
	{"operation timed out", syscall.ETIMEDOUT},
	{"endpoint is in invalid state", syscall.EINVAL},
	{"address family not supported by protocol", syscall.EAFNOSUPPORT},
	{"port is in use", syscall.EADDRINUSE},
}

// remapError maps an error produced by gVisor to the stdlib error
// the kernel would have produced, or returns it unchanged.
func remapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, entry := range errnoBySuffix {
		if strings.HasSuffix(msg, entry.suffix) {
			return entry.err
		}
	}
	return err
}

// tcpipError converts a [tcpip.Error] to a remapped error.
func tcpipError(err tcpip.Error) error {
	if err == nil {
		return nil
	}
	return remapError(errors.New(err.String()))
}
