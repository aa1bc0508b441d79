// Package channel is the in-process event bus the instrumented host publishes
// runtime events on. Delivery is synchronous so subscribers observe the
// publisher's context.Context.
package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lcx/iast/log"
)

// Handler receives a message published on the named channel.
type Handler func(ctx context.Context, msg any, name string)

type subscriber struct {
	id uint64
	h  Handler
}

// Channel is a named event stream.
type Channel struct {
	name   string
	logger log.Logger

	mu     sync.RWMutex
	subs   []subscriber
	nextID atomic.Uint64
}

func newChannel(name string, logger log.Logger) *Channel {
	return &Channel{name: name, logger: logger}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Subscribe registers h and returns a function removing it. The returned
// function is idempotent.
func (c *Channel) Subscribe(h Handler) func() {
	if h == nil {
		return func() {}
	}

	id := c.nextID.Add(1)

	c.mu.Lock()
	c.subs = append(c.subs, subscriber{id: id, h: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// HasSubscribers reports whether at least one handler is subscribed.
func (c *Channel) HasSubscribers() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs) > 0
}

// Publish delivers msg to every subscriber in subscription order. A panicking
// subscriber is logged and skipped.
func (c *Channel) Publish(ctx context.Context, msg any) {
	c.mu.RLock()
	subs := c.subs
	c.mu.RUnlock()

	for _, s := range subs {
		c.deliver(ctx, s.h, msg)
	}
}

func (c *Channel) deliver(ctx context.Context, h Handler, msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("channel", c.name).Any("panic", r).Msg("channel subscriber panicked")
		}
	}()
	h(ctx, msg, c.name)
}
