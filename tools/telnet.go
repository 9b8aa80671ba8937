// SPDX-License-Identifier: GPL-3.0-or-later

package tools

import (
	"errors"
	"io"
	"net/netip"
	"strconv"

	"github.com/bassosimone/uishell/shell"
)

func newTelnetCommand() *shell.Command {
	return &shell.Command{
		Name:        "telnet",
		Description: "Echo the raw input until interrupted.",
		Usage:       "telnet <address> <port>",
		Flags:       shell.FlagRedirectInput,
		Do:          telnet,
		OnEvent:     onTelnetEvent,
	}
}

func telnet(cc *shell.Context, args []string) {
	if len(args) != 3 {
		cc.PrintUsage()
		cc.Finish()
		return
	}
	addr, err := netip.ParseAddr(args[1])
	if err != nil {
		cc.PrintUsage()
		cc.Finish()
		return
	}
	port, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil || port == 0 {
		cc.PrintUsage()
		cc.Finish()
		return
	}
	cc.Printf("Relaying input for %s, interrupt to quit.\n", netip.AddrPortFrom(addr, uint16(port)))
}

func onTelnetEvent(cc *shell.Context, ev shell.Event) {
	if ev&shell.EventInputData != 0 {
		if rb, readable := cc.Input(); rb != nil {
			count, err := relay(cc.Stream(), rb, readable)
			if err != nil {
				cc.Logger().Warn().Err(err).Msg("telnet: cannot echo input")
			}
			cc.Logger().Debug().Int("count", count).Msg("telnet: relayed input")
		}
	}
	finishOnStop(cc, ev)
}

// spanReader is the part of [*shell.RingBuffer] used by [relay].
type spanReader interface {
	Peek(offset int) []byte
	Skip(count int)
}

// relay echoes up to readable bytes from the two spans of the unread
// region to w and consumes them. The bytes are consumed even when
// writing fails, so a broken stream cannot stall the input buffer.
func relay(w io.Writer, rb spanReader, readable int) (int, error) {
	first := rb.Peek(0)
	second := rb.Peek(len(first))
	n1 := min(len(first), readable)
	n2 := min(len(second), readable-n1)
	_, err1 := w.Write(first[:n1])
	_, err2 := w.Write(second[:n2])
	rb.Skip(n1 + n2)
	return n1 + n2, errors.Join(err1, err2)
}
