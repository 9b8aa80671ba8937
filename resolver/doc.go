// SPDX-License-Identifier: GPL-3.0-or-later

// Package resolver is a caching, asynchronous DNS resolver for the shell.
//
// A [*Resolver] keeps a table of A and CNAME entries. [*Resolver.QueryAsync]
// returns a descriptor immediately and, when the table has no usable entry,
// starts a network exchange on a background goroutine. The exchange result
// gets back on the shell event loop through a [shell.Poster], updates the
// table, and is announced on [*Resolver.TableChanged]. Callers then use
// [*Resolver.Find] with their descriptor to read the outcome.
//
// The [*UDPExchanger] performs exchanges over a [*netsim.Dialer] and the
// [*Server] answers queries from a static zone, which is handy to build a
// self-contained lab.
package resolver
