// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/bassosimone/uishell/shell"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"
)

// Exchanger sends a query and returns the matching response.
//
// The [*UDPExchanger] implements this interface.
type Exchanger interface {
	Exchange(ctx context.Context, query *layers.DNS) (*layers.DNS, error)
}

// DefaultQueryTimeout is the default timeout of a single exchange.
const DefaultQueryTimeout = 5 * time.Second

// DefaultMaxDescriptors is the default maximum number of live descriptors.
const DefaultMaxDescriptors = 64

// CodeTooManyQueries means that all the descriptors are in use.
const CodeTooManyQueries = -24

// Option is an option for [New].
type Option func(cfg *config)

type config struct {
	logger   zerolog.Logger
	maxDescs int
	now      func() time.Time
	timeout  time.Duration
}

// OptionLogger sets the logger.
func OptionLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// OptionQueryTimeout sets the timeout of a single exchange, after which
// the query fails with [ErrFault].
func OptionQueryTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

// OptionMaxDescriptors sets the maximum number of live descriptors.
func OptionMaxDescriptors(count int) Option {
	return func(cfg *config) {
		cfg.maxDescs = count
	}
}

// OptionClock overrides the function returning the current time.
func OptionClock(fn func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = fn
	}
}

// key identifies a table entry.
type key struct {
	name string
	typ  Type
}

type recordState int

const (
	statePending = recordState(iota)
	stateResolved
	stateFailed
)

// record is the table entry for a key.
type record struct {
	entry *Entry
	err   error
	state recordState
}

// Resolver is an asynchronous caching DNS resolver.
//
// All methods must be called from the shell event loop.
//
// Construct using [New].
type Resolver struct {
	// changed is published when a query completes.
	changed *shell.Channel[struct{}]

	// descs maps live descriptors to keys.
	descs map[int]key

	// exchanger performs the network exchanges.
	exchanger Exchanger

	// logger is the logger to use.
	logger zerolog.Logger

	// maxDescs is the maximum number of live descriptors.
	maxDescs int

	// nextDesc is the next descriptor to allocate.
	nextDesc int

	// nextID is the next query ID.
	nextID uint16

	// now returns the current time.
	now func() time.Time

	// poster gets completions back on the event loop.
	poster shell.Poster

	// table contains the cached records.
	table map[key]*record

	// timeout is the timeout of a single exchange.
	timeout time.Duration
}

// New creates a new [*Resolver].
func New(poster shell.Poster, exchanger Exchanger, options ...Option) *Resolver {
	cfg := &config{
		logger:   zerolog.Nop(),
		maxDescs: DefaultMaxDescriptors,
		now:      time.Now,
		timeout:  DefaultQueryTimeout,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return &Resolver{
		changed:   shell.NewChannel[struct{}]("dns-table-changed"),
		descs:     make(map[int]key),
		exchanger: exchanger,
		logger:    cfg.logger,
		maxDescs:  cfg.maxDescs,
		now:       cfg.now,
		poster:    poster,
		table:     make(map[key]*record),
		timeout:   cfg.timeout,
	}
}

// TableChanged returns the channel published each time a query completes.
func (r *Resolver) TableChanged() *shell.Channel[struct{}] {
	return r.changed
}

// Lookup returns the cached entry for name and type without starting
// any query. It returns [ErrAgain] when there is no fresh entry.
func (r *Resolver) Lookup(name string, typ Type) (*Entry, error) {
	rec := r.table[key{name, typ}]
	if rec == nil || rec.state != stateResolved || !r.now().Before(rec.entry.Expires) {
		return nil, ErrAgain
	}
	return rec.entry, nil
}

// QueryAsync returns a descriptor for reading the outcome of resolving
// name and type with [*Resolver.Find]. Unless the table already contains a
// fresh or pending entry, it starts a new exchange. The descriptor stays
// valid until [*Resolver.Release].
func (r *Resolver) QueryAsync(name string, typ Type) (int, error) {
	if name == "" || len(name) > MaxNameLength || (typ != TypeA && typ != TypeCNAME) {
		return -1, &CodeError{Code: CodeInvalidRequest}
	}
	if len(r.descs) >= r.maxDescs {
		return -1, &CodeError{Code: CodeTooManyQueries}
	}

	k := key{name, typ}
	if rec := r.table[k]; rec == nil || r.stale(rec) {
		r.start(k)
	}

	desc := r.nextDesc
	r.nextDesc++
	r.descs[desc] = k
	return desc, nil
}

// Find returns the entry for the given descriptor, which must have been
// created for the same name and type. It returns [ErrAgain] while the
// query is pending, and the query error when it failed.
func (r *Resolver) Find(desc int, name string, typ Type) (*Entry, error) {
	k, found := r.descs[desc]
	if !found || k != (key{name, typ}) {
		return nil, ErrBadDescriptor
	}
	rec := r.table[k]
	switch {
	case rec == nil || rec.state == statePending:
		return nil, ErrAgain
	case rec.state == stateFailed:
		return nil, rec.err
	default:
		return rec.entry, nil
	}
}

// Release releases a descriptor. Releasing twice is a no-op.
func (r *Resolver) Release(desc int) {
	delete(r.descs, desc)
}

func (r *Resolver) stale(rec *record) bool {
	switch rec.state {
	case stateFailed:
		return true
	case stateResolved:
		return !r.now().Before(rec.entry.Expires)
	default:
		return false
	}
}

// start replaces the record for k with a pending one and starts the exchange.
func (r *Resolver) start(k key) {
	rec := &record{state: statePending}
	r.table[k] = rec

	id := r.nextID
	r.nextID++
	query := newQuery(id, k.name, k.typ)
	r.logger.Debug().Str("name", k.name).Stringer("type", k.typ).Uint16("id", id).Msg("resolver: query started")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		resp, err := r.exchanger.Exchange(ctx, query)
		if !r.poster.Post(func() { r.complete(k, rec, resp, err) }) {
			r.logger.Debug().Str("name", k.name).Msg("resolver: completion dropped")
		}
	}()
}

// complete stores the outcome of an exchange and publishes the change.
func (r *Resolver) complete(k key, rec *record, resp *layers.DNS, err error) {
	if r.table[k] != rec {
		return
	}
	if err == nil {
		rec.entry, err = parseResponse(resp, k.name, k.typ, r.now())
	} else {
		err = fmt.Errorf("%w: %w", ErrFault, err)
	}
	if err != nil {
		rec.state = stateFailed
		rec.err = err
		r.logger.Debug().Str("name", k.name).Err(err).Msg("resolver: query failed")
	} else {
		rec.state = stateResolved
		r.logger.Debug().Str("name", k.name).Time("expires", rec.entry.Expires).Msg("resolver: query resolved")
	}
	r.changed.Publish(struct{}{})
}
