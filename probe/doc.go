// SPDX-License-Identifier: GPL-3.0-or-later

// Package probe is the ICMP echo engine used by the ping tool.
//
// An [*Engine] creates [*Probe] handles. Each probe owns an [EchoConn] and
// sends at most one echo request at a time. Replies are read on a
// background goroutine and handed back to the shell event loop through a
// [shell.Poster], so the probe callbacks always run on the loop. The
// engine counts down the timeout budget of outstanding requests on a
// tick channel, usually the shell's 100 ms timer.
package probe
