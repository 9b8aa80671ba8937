// SPDX-License-Identifier: GPL-3.0-or-later

package tools

import (
	"errors"
	"fmt"

	"github.com/bassosimone/uishell/resolver"
	"github.com/bassosimone/uishell/shell"
)

func newNslookupCommand(r Resolver) *shell.Command {
	return &shell.Command{
		Name:        "nslookup",
		Description: "Resolve a domain name.",
		Usage:       "nslookup <domain> [A|CNAME]",
		Do: func(cc *shell.Context, args []string) {
			nslookup(cc, r, args)
		},
		OnEvent: finishOnStop,
	}
}

func nslookup(cc *shell.Context, r Resolver, args []string) {
	typ := resolver.TypeA
	switch len(args) {
	case 2:
	case 3:
		var ok bool
		if typ, ok = resolver.ParseType(args[2]); !ok {
			cc.PrintUsage()
			cc.Finish()
			return
		}
	default:
		cc.PrintUsage()
		cc.Finish()
		return
	}
	name := args[1]

	// 1. serve from the cache when possible
	if entry, err := r.Lookup(name, typ); err == nil {
		printEntry(cc, entry, name, typ)
		cc.Finish()
		return
	}

	// 2. issue the query
	desc, err := r.QueryAsync(name, typ)
	if err != nil {
		printLookupError(cc, err)
		cc.Finish()
		return
	}

	// 3. the query may complete right away
	if entry, err := r.Find(desc, name, typ); !errors.Is(err, resolver.ErrAgain) {
		r.Release(desc)
		reportLookup(cc, entry, err, name, typ)
		cc.Finish()
		return
	}

	// 4. wait for the table to change
	sess, err := newLookupSession(cc, r, desc, name, typ)
	if err != nil {
		cc.Printf("nslookup: %s\n", err)
		cc.Finish()
		return
	}
	cc.Attach(sess)
}

// lookupSession waits for a pending query.
type lookupSession struct {
	// cc is the invocation context.
	cc *shell.Context

	// desc is the resolver descriptor, owned by the session.
	desc int

	// name is the queried name.
	name string

	// resolver is the resolver owning desc.
	resolver Resolver

	// sub is the table changed subscription.
	sub *shell.Subscription[struct{}]

	// typ is the queried type.
	typ resolver.Type
}

var _ shell.Session = &lookupSession{}

// newLookupSession takes ownership of desc and releases it on failure.
func newLookupSession(cc *shell.Context, r Resolver, desc int, name string, typ resolver.Type) (*lookupSession, error) {
	sess := &lookupSession{
		cc:       cc,
		desc:     desc,
		name:     name,
		resolver: r,
		typ:      typ,
	}
	sub, err := r.TableChanged().Subscribe(sess.onTableChanged)
	if err != nil {
		r.Release(desc)
		return nil, fmt.Errorf("cannot watch the DNS table: %w", err)
	}
	sess.sub = sub
	return sess, nil
}

func (s *lookupSession) onTableChanged(struct{}) {
	entry, err := s.resolver.Find(s.desc, s.name, s.typ)
	if errors.Is(err, resolver.ErrAgain) {
		return
	}
	reportLookup(s.cc, entry, err, s.name, s.typ)
	s.cc.Finish()
}

// Close implements [shell.Session].
func (s *lookupSession) Close() {
	s.sub.Cancel()
	s.resolver.Release(s.desc)
	s.cc.Logger().Debug().Int("desc", s.desc).Msg("nslookup: session closed")
}

func reportLookup(cc *shell.Context, entry *resolver.Entry, err error, name string, typ resolver.Type) {
	if err != nil {
		printLookupError(cc, err)
		return
	}
	printEntry(cc, entry, name, typ)
}

func printEntry(cc *shell.Context, entry *resolver.Entry, name string, typ resolver.Type) {
	cc.Printf("%s:\n", name)
	switch typ {
	case resolver.TypeA:
		for _, addr := range entry.Addrs {
			cc.Printf("\t%s\n", addr)
		}
	case resolver.TypeCNAME:
		cc.Printf("\t%s\n", entry.CNAME)
	}
}

func printLookupError(cc *shell.Context, err error) {
	var codeErr *resolver.CodeError
	switch {
	case errors.Is(err, resolver.ErrFault):
		cc.Printf("The DNS query failed (resolver fault).\n")
	case errors.As(err, &codeErr):
		cc.Printf("The DNS query failed. Error code: %d\n", codeErr.Code)
	default:
		cc.Printf("The DNS query failed: %s\n", err)
	}
	cc.Logger().Debug().Err(err).Msg("nslookup: query failed")
}

// finishOnStop finishes the command on interrupt and on shell exit.
func finishOnStop(cc *shell.Context, ev shell.Event) {
	if ev&(shell.EventInterrupt|shell.EventExit) != 0 {
		cc.Finish()
	}
}
