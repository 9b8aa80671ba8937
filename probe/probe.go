// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/uishell/netsim"
	"github.com/bassosimone/uishell/shell"
	"github.com/rs/zerolog"
)

var (
	// ErrTimeout is passed to the error callback when an outstanding
	// request exhausts its timeout budget.
	ErrTimeout = errors.New("probe: request timed out")

	// ErrOutstanding is returned by [*Probe.Request] while a request is
	// outstanding.
	ErrOutstanding = errors.New("probe: request outstanding")

	// ErrDeleted is returned by [*Probe.Request] after [*Probe.Delete].
	ErrDeleted = errors.New("probe: deleted")
)

// EchoConn sends echo requests and reads echo replies.
//
// The [*netsim.PingConn] implements this interface.
type EchoConn interface {
	WriteEcho(seq uint16, payload []byte) error
	ReadEcho() (netsim.EchoReply, error)
	Close() error
}

var _ EchoConn = &netsim.PingConn{}

// DialFunc creates an [EchoConn] towards the given address.
type DialFunc func(addr netip.Addr) (EchoConn, error)

// DialNetsim returns a [DialFunc] using the given [*netsim.Dialer].
func DialNetsim(dialer *netsim.Dialer) DialFunc {
	return func(addr netip.Addr) (EchoConn, error) {
		conn, err := dialer.DialPing(addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Reply is a successful echo exchange.
type Reply struct {
	// Addr is the address that replied.
	Addr netip.Addr

	// Seq is the sequence number.
	Seq uint16

	// TTL is the time to live of the reply.
	TTL uint8

	// Elapsed is the round trip time.
	Elapsed time.Duration
}

// DefaultTimeoutTicks is the default timeout budget, in ticks.
const DefaultTimeoutTicks = 100

// Probe sends echo requests to a single address.
//
// All methods must be called from the shell event loop.
//
// Construct using [*Engine.NewProbe].
type Probe struct {
	// addr is the remote address.
	addr netip.Addr

	// conn is the echo conn.
	conn EchoConn

	// deleted indicates that Delete has run.
	deleted bool

	// engine is the engine owning the probe.
	engine *Engine

	// onError is the error callback.
	onError func(err error)

	// onReply is the reply callback.
	onReply func(reply Reply)

	// outstanding indicates that a request waits for its reply.
	outstanding bool

	// seq is the sequence number of the last request.
	seq uint16

	// sentAt is when the last request was sent.
	sentAt time.Time

	// ticksLeft is the budget left to the outstanding request.
	ticksLeft int

	// timeout is the budget of each request, in ticks.
	timeout int
}

// Addr returns the remote address.
func (p *Probe) Addr() netip.Addr {
	return p.addr
}

// SetCallbacks sets the callbacks invoked on the event loop when a reply
// arrives and when the request fails. A nil callback ignores the outcome.
func (p *Probe) SetCallbacks(onReply func(reply Reply), onError func(err error)) {
	p.onReply = onReply
	p.onError = onError
}

// SetTimeout sets the timeout budget of the next requests, in ticks.
func (p *Probe) SetTimeout(ticks int) {
	p.timeout = ticks
}

// Outstanding returns whether a request waits for its reply.
func (p *Probe) Outstanding() bool {
	return p.outstanding
}

// Request sends an echo request with a payload of the given size.
func (p *Probe) Request(size int) error {
	if p.deleted {
		return ErrDeleted
	}
	if p.outstanding {
		return ErrOutstanding
	}

	seq := p.seq + 1
	payload := make([]byte, size)
	for idx := range payload {
		payload[idx] = byte(idx)
	}
	if err := p.conn.WriteEcho(seq, payload); err != nil {
		return err
	}

	p.seq = seq
	p.outstanding = true
	p.sentAt = p.engine.now()
	p.ticksLeft = p.timeout
	p.engine.logger.Debug().Stringer("addr", p.addr).Uint16("seq", seq).Int("size", size).Msg("probe: request sent")
	return nil
}

// Delete releases the probe. The callbacks never run afterwards.
// Calling Delete again is a no-op.
func (p *Probe) Delete() {
	if p.deleted {
		return
	}
	p.deleted = true
	p.outstanding = false
	delete(p.engine.probes, p)
	p.conn.Close()
	p.engine.logger.Debug().Stringer("addr", p.addr).Msg("probe: deleted")
}

// readLoop reads replies until the conn fails and posts them to the loop.
func (p *Probe) readLoop(conn EchoConn) {
	for {
		reply, err := conn.ReadEcho()
		now := p.engine.now()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				p.engine.poster.Post(func() { p.handleError(err) })
			}
			return
		}
		if !p.engine.poster.Post(func() { p.handleReply(reply, now) }) {
			return
		}
	}
}

func (p *Probe) handleReply(reply netsim.EchoReply, now time.Time) {
	if p.deleted || !p.outstanding || reply.Seq != p.seq {
		p.engine.logger.Debug().Uint16("seq", reply.Seq).Msg("probe: ignoring reply")
		return
	}
	p.outstanding = false
	if p.onReply != nil {
		p.onReply(Reply{
			Addr:    reply.Addr,
			Seq:     reply.Seq,
			TTL:     reply.TTL,
			Elapsed: now.Sub(p.sentAt),
		})
	}
}

func (p *Probe) handleError(err error) {
	if p.deleted {
		return
	}
	p.outstanding = false
	if p.onError != nil {
		p.onError(err)
	}
}

// tick consumes one tick of the timeout budget.
func (p *Probe) tick() {
	if p.deleted || !p.outstanding {
		return
	}
	if p.ticksLeft--; p.ticksLeft > 0 {
		return
	}
	p.engine.logger.Debug().Stringer("addr", p.addr).Uint16("seq", p.seq).Msg("probe: request timed out")
	p.handleError(ErrTimeout)
}

// Option is an option for [New].
type Option func(cfg *config)

type config struct {
	logger zerolog.Logger
	now    func() time.Time
}

// OptionLogger sets the logger.
func OptionLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// OptionClock overrides the function returning the current time.
func OptionClock(fn func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = fn
	}
}

// Engine creates and drives [*Probe] handles.
//
// Construct using [New].
type Engine struct {
	// dial creates the echo conns.
	dial DialFunc

	// logger is the logger to use.
	logger zerolog.Logger

	// now returns the current time.
	now func() time.Time

	// poster gets replies back on the event loop.
	poster shell.Poster

	// probes contains the live probes.
	probes map[*Probe]struct{}

	// sub is the tick subscription.
	sub *shell.Subscription[time.Time]
}

// New creates a new [*Engine] counting timeouts on the given ticks.
func New(poster shell.Poster, dial DialFunc, ticks *shell.Channel[time.Time], options ...Option) (*Engine, error) {
	cfg := &config{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(cfg)
	}
	eng := &Engine{
		dial:   dial,
		logger: cfg.logger,
		now:    cfg.now,
		poster: poster,
		probes: make(map[*Probe]struct{}),
	}
	sub, err := ticks.Subscribe(eng.onTick)
	if err != nil {
		return nil, err
	}
	eng.sub = sub
	return eng, nil
}

// NewProbe creates a new [*Probe] towards the given address.
func (eng *Engine) NewProbe(addr netip.Addr) (*Probe, error) {
	conn, err := eng.dial(addr)
	if err != nil {
		return nil, err
	}
	p := &Probe{
		addr:    addr,
		conn:    conn,
		engine:  eng,
		timeout: DefaultTimeoutTicks,
	}
	eng.probes[p] = struct{}{}
	go p.readLoop(conn)
	eng.logger.Debug().Stringer("addr", addr).Msg("probe: created")
	return p, nil
}

// Len returns the number of live probes.
func (eng *Engine) Len() int {
	return len(eng.probes)
}

// Close deletes all the probes and stops counting ticks.
func (eng *Engine) Close() {
	eng.sub.Cancel()
	for p := range eng.probes {
		p.Delete()
	}
}

func (eng *Engine) onTick(time.Time) {
	snapshot := make([]*Probe, 0, len(eng.probes))
	for p := range eng.probes {
		snapshot = append(snapshot, p)
	}
	for _, p := range snapshot {
		p.tick()
	}
}
