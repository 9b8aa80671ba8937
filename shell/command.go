// SPDX-License-Identifier: GPL-3.0-or-later

package shell

import "strings"

// Flags modifies how the [*Shell] runs a [*Command].
type Flags uint32

// FlagRedirectInput sends the raw input to the running command through
// its input [*RingBuffer] instead of parsing it as command lines.
const FlagRedirectInput Flags = 1 << 0

// Event is a bitmask of runtime events delivered to a running command.
type Event uint32

const (
	// EventInputData means that the input ring buffer has new data.
	EventInputData Event = 1 << iota

	// EventInterrupt means that the user asked to stop the command.
	EventInterrupt

	// EventExit means that the shell is shutting down.
	EventExit
)

// String implements [fmt.Stringer].
func (ev Event) String() string {
	var names []string
	if ev&EventInputData != 0 {
		names = append(names, "input")
	}
	if ev&EventInterrupt != 0 {
		names = append(names, "interrupt")
	}
	if ev&EventExit != 0 {
		names = append(names, "exit")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Command is an entry of the dispatch table.
type Command struct {
	// Name is the name used to invoke the command.
	Name string

	// Description is the one-line description printed by help.
	Description string

	// Usage is printed verbatim by [*Context.PrintUsage].
	Usage string

	// Flags modifies how the shell runs the command.
	Flags Flags

	// Do runs once per command line with the arguments, where args[0]
	// is the command name. It must either call [*Context.Finish] before
	// returning or leave the command waiting for events.
	Do func(cc *Context, args []string)

	// OnEvent runs for each event delivered while the command has not
	// finished. It may be nil, in which case the shell finishes the
	// command on [EventInterrupt] and [EventExit].
	OnEvent func(cc *Context, ev Event)
}

// Session is the state of a command waiting for events.
//
// A [*Context] owns at most one Session, attached with [*Context.Attach],
// and closes it exactly once when the command finishes.
type Session interface {
	// Close cancels every subscription first and then releases the
	// engine resources owned by the session.
	Close()
}
