// SPDX-License-Identifier: GPL-3.0-or-later

// Package tools contains the nslookup, ping, and telnet shell commands.
//
// Commands never block the shell event loop. A command that must wait
// attaches a session to its [*shell.Context] and subscribes it to the
// channels it cares about. The session is closed exactly once, by
// [*shell.Context.Finish], when a result arrives, when the engine fails,
// or when the user or the shell stops the command. Closing a session
// cancels its subscriptions before releasing its engine handle.
package tools
