package channel

import (
	"context"
	"sync"

	"github.com/lcx/iast/log"
)

// InstrumentationLoad carries ActivationEvent messages when an instrumented module becomes active.
const InstrumentationLoad = "iast:instrumentation:load"

// ActivationEvent reports that the named module was loaded and instrumented.
type ActivationEvent struct {
	Name string
}

// Registry holds channels by name.
type Registry struct {
	logger log.Logger

	mu       sync.RWMutex
	channels map[string]*Channel
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:   log.Default(),
		channels: make(map[string]*Channel),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Channel returns the channel with the given name, creating it if needed.
func (r *Registry) Channel(name string) *Channel {
	r.mu.RLock()
	c, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.channels[name]; !ok {
		c = newChannel(name, r.logger)
		r.channels[name] = c
	}
	return c
}

// Publish publishes msg on the named channel if it exists.
func (r *Registry) Publish(ctx context.Context, name string, msg any) {
	r.mu.RLock()
	c, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		c.Publish(ctx, msg)
	}
}

// Names returns the names of all channels created so far.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// NotifyActivation publishes an ActivationEvent for the named module.
func (r *Registry) NotifyActivation(ctx context.Context, name string) {
	r.Publish(ctx, InstrumentationLoad, ActivationEvent{Name: name})
}

// OnActivation calls fn with the module name of every ActivationEvent and
// returns a function detaching it.
func (r *Registry) OnActivation(fn func(name string)) func() {
	return r.Channel(InstrumentationLoad).Subscribe(func(_ context.Context, msg any, _ string) {
		if ev, ok := msg.(ActivationEvent); ok {
			fn(ev.Name)
		}
	})
}
