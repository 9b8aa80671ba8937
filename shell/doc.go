// SPDX-License-Identifier: GPL-3.0-or-later

// Package shell is a cooperative, single-goroutine command runtime.
//
// A [*Shell] owns a dispatch table of [*Command]. Running a command creates
// a [*Context]. The command either finishes right away or attaches a
// [Session] and subscribes it to one or more [*Channel], returning control
// to the event loop. Later, a channel callback or an [Event] delivered to
// the command decides to call [*Context.Finish], which closes the session
// exactly once and makes the shell ready for the next command.
//
// Everything runs on the goroutine calling [*Shell.Run]. Network code
// running on other goroutines uses [*Shell.Post] to get back on it.
package shell
