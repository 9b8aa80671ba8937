// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/rs/zerolog"
)

// Internet routes raw IP packets between the [*Link] attached to it.
//
// Construct using [NewInternet].
type Internet struct {
	// inflight receives the frames sent by every attached link.
	inflight chan Frame

	// logger is the logger to use.
	logger zerolog.Logger

	// mu provides mutual exclusion for routes.
	mu sync.RWMutex

	// routes maps each claimed address to its link.
	routes map[netip.Addr]*Link

	// trace is the optional trace used by Route.
	trace *PCAPTrace
}

// InternetOption is an option for [NewInternet].
type InternetOption func(cfg *internetConfig)

type internetConfig struct {
	logger      zerolog.Logger
	maxInflight int
	trace       *PCAPTrace
}

// DefaultMaxInflight is the default maximum number of frames in flight.
const DefaultMaxInflight = 1024

// InternetOptionMaxInflight sets the maximum number of frames in flight.
//
// The default is [DefaultMaxInflight]. When the queue is full, the
// links silently drop the frames they would have sent.
func InternetOptionMaxInflight(max int) InternetOption {
	return func(cfg *internetConfig) {
		cfg.maxInflight = max
	}
}

// InternetOptionLogger sets the logger used by [*Internet.Route].
func InternetOptionLogger(logger zerolog.Logger) InternetOption {
	return func(cfg *internetConfig) {
		cfg.logger = logger
	}
}

// InternetOptionTrace makes [*Internet.Route] dump every routed frame.
//
// The caller retains ownership of the trace and must close it.
func InternetOptionTrace(trace *PCAPTrace) InternetOption {
	return func(cfg *internetConfig) {
		cfg.trace = trace
	}
}

// NewInternet creates a new [*Internet].
func NewInternet(options ...InternetOption) *Internet {
	cfg := &internetConfig{
		logger:      zerolog.Nop(),
		maxInflight: DefaultMaxInflight,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return &Internet{
		inflight: make(chan Frame, cfg.maxInflight),
		logger:   cfg.logger,
		mu:       sync.RWMutex{},
		routes:   make(map[netip.Addr]*Link),
		trace:    cfg.trace,
	}
}

// NewLink creates a [*Link] sending its frames to this [*Internet].
//
// The link cannot receive frames until [*Internet.AddRoute] is called.
func (ix *Internet) NewLink(mtu uint32) *Link {
	return NewLink(mtu, internetNetwork{ix})
}

// AddRoute routes the given addresses to the given [*Link].
//
// It fails if any of the addresses is already claimed.
func (ix *Internet) AddRoute(link *Link, addrs ...netip.Addr) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, addr := range addrs {
		if _, found := ix.routes[addr]; found {
			return fmt.Errorf("netsim: duplicate address: %s", addr)
		}
	}
	for _, addr := range addrs {
		ix.routes[addr] = link
	}
	return nil
}

// NewStack creates a [*Stack] attached to this [*Internet] using a new
// [*Link] with the given MTU and routes the given addresses to it.
func (ix *Internet) NewStack(mtu uint32, addrs ...netip.Addr) (*Stack, error) {
	link := ix.NewLink(mtu)
	if err := ix.AddRoute(link, addrs...); err != nil {
		return nil, err
	}
	stack, err := NewStack(link, addrs...)
	if err != nil {
		ix.removeRoutes(addrs...)
		return nil, err
	}
	return stack, nil
}

func (ix *Internet) removeRoutes(addrs ...netip.Addr) {
	ix.mu.Lock()
	for _, addr := range addrs {
		delete(ix.routes, addr)
	}
	ix.mu.Unlock()
}

// internetNetwork adapts [*Internet] to [Network].
type internetNetwork struct {
	ix *Internet
}

var _ Network = internetNetwork{}

// SendFrame implements [Network].
func (n internetNetwork) SendFrame(frame Frame) bool {
	select {
	case n.ix.inflight <- frame:
		return true
	default:
		return false
	}
}

// InFlight returns the channel where sent frames are posted.
func (ix *Internet) InFlight() <-chan Frame {
	return ix.inflight
}

// Deliver injects the frame into the link owning its destination address.
//
// It returns false when the destination cannot be parsed, when no link
// claims it, or when the link refuses the frame.
func (ix *Internet) Deliver(frame Frame) bool {
	dst, ok := parseDestination(frame.Packet)
	if !ok {
		return false
	}

	ix.mu.RLock()
	link := ix.routes[dst]
	ix.mu.RUnlock()

	if link == nil {
		return false
	}
	return link.InjectFrame(frame)
}

// Route delivers frames until the context is done.
//
// When configured using [InternetOptionTrace], every frame read from
// the in-flight queue is dumped before delivery, including the frames
// that cannot be delivered.
func (ix *Internet) Route(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-ix.inflight:
			if ix.trace != nil {
				ix.trace.Dump(frame.Packet)
			}
			if !ix.Deliver(frame) {
				ix.logger.Debug().Int("size", len(frame.Packet)).Msg("netsim: frame dropped")
			}
		}
	}
}

// parseDestination extracts the destination address of a raw IP packet.
func parseDestination(pkt []byte) (netip.Addr, bool) {
	if len(pkt) < 1 {
		return netip.Addr{}, false
	}
	switch pkt[0] >> 4 {
	case 4:
		if len(pkt) < 20 {
			return netip.Addr{}, false
		}
		return netip.AddrFrom4([4]byte(pkt[16:20])), true

	case 6:
		if len(pkt) < 40 {
			return netip.Addr{}, false
		}
		return netip.AddrFrom16([16]byte(pkt[24:40])), true

	default:
		return netip.Addr{}, false
	}
}
