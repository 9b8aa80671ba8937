// SPDX-License-Identifier: GPL-3.0-or-later

package shell

import "errors"

// ErrChannelClosed is returned when subscribing to a closed [*Channel].
var ErrChannelClosed = errors.New("shell: channel closed")

// ErrTooManySubscribers is returned when a [*Channel] is full.
var ErrTooManySubscribers = errors.New("shell: too many subscribers")

// Channel is a notification source. Publishing invokes every current
// subscriber synchronously, in subscription order.
//
// A Channel is not safe for concurrent use: it belongs to the goroutine
// running the event loop. Subscribing and cancelling from within a
// delivery is fine: delivery iterates over a snapshot, skips the
// subscriptions cancelled meanwhile, and does not invoke the
// subscriptions created meanwhile.
//
// Construct using [NewChannel].
type Channel[T any] struct {
	// closed indicates that subscribing is no longer possible.
	closed bool

	// maxSubs is the maximum number of subscribers, zero meaning unlimited.
	maxSubs int

	// name is the channel name used in logs.
	name string

	// subs contains the active subscriptions.
	subs []*Subscription[T]
}

// ChannelOption is an option for [NewChannel].
type ChannelOption func(cfg *channelConfig)

type channelConfig struct {
	maxSubs int
}

// ChannelOptionMaxSubscribers limits the number of subscribers.
func ChannelOptionMaxSubscribers(max int) ChannelOption {
	return func(cfg *channelConfig) {
		cfg.maxSubs = max
	}
}

// NewChannel creates a new [*Channel] with the given name.
func NewChannel[T any](name string, options ...ChannelOption) *Channel[T] {
	cfg := &channelConfig{}
	for _, opt := range options {
		opt(cfg)
	}
	return &Channel[T]{maxSubs: cfg.maxSubs, name: name}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string {
	return c.name
}

// Len returns the number of active subscriptions.
func (c *Channel[T]) Len() int {
	return len(c.subs)
}

// Subscription is an active (callback, channel) registration.
type Subscription[T any] struct {
	// active is false once cancelled.
	active bool

	// ch is the channel we are subscribed to.
	ch *Channel[T]

	// fn is the callback.
	fn func(T)
}

// Subscribe registers fn to be called on every [*Channel.Publish].
func (c *Channel[T]) Subscribe(fn func(T)) (*Subscription[T], error) {
	if c.closed {
		return nil, ErrChannelClosed
	}
	if c.maxSubs > 0 && len(c.subs) >= c.maxSubs {
		return nil, ErrTooManySubscribers
	}
	sub := &Subscription[T]{active: true, ch: c, fn: fn}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Publish invokes all the current subscribers with the given value.
func (c *Channel[T]) Publish(value T) {
	snapshot := append([]*Subscription[T](nil), c.subs...)
	for _, sub := range snapshot {
		if sub.active {
			sub.fn(value)
		}
	}
}

// Close prevents further subscriptions. Existing subscriptions stay
// active until cancelled.
func (c *Channel[T]) Close() {
	c.closed = true
}

// Active returns whether the subscription has not been cancelled.
func (s *Subscription[T]) Active() bool {
	return s != nil && s.active
}

// Cancel removes the subscription from its channel. It is idempotent
// and a nil subscription is a no-op.
func (s *Subscription[T]) Cancel() {
	if s == nil || !s.active {
		return
	}
	s.active = false
	subs := s.ch.subs
	for idx, entry := range subs {
		if entry == s {
			s.ch.subs = append(subs[:idx:idx], subs[idx+1:]...)
			break
		}
	}
}
