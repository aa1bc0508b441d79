package plugin

import (
	"sync"

	"github.com/lcx/iast/channel"
)

type channelSub struct {
	name        string
	handler     channel.Handler
	unsubscribe func()
}

// Plugin binds handlers to named channels. Handlers are attached while the
// plugin is enabled and detached while it is disabled; the handler list itself
// is kept for the plugin's lifetime.
type Plugin struct {
	registry *channel.Registry

	mu      sync.Mutex
	subs    []*channelSub
	enabled bool
}

// NewPlugin creates a disabled plugin subscribing on registry.
func NewPlugin(registry *channel.Registry) *Plugin {
	if registry == nil {
		registry = channel.NewRegistry()
	}
	return &Plugin{registry: registry}
}

// Registry returns the channel registry the plugin subscribes on.
func (p *Plugin) Registry() *channel.Registry {
	return p.registry
}

// AddSub records handler for channelName. It is attached immediately when the
// plugin is enabled.
func (p *Plugin) AddSub(channelName string, handler channel.Handler) {
	if channelName == "" || handler == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &channelSub{name: channelName, handler: handler}
	p.subs = append(p.subs, sub)
	if p.enabled {
		sub.unsubscribe = p.registry.Channel(channelName).Subscribe(handler)
	}
}

// Configure attaches every recorded handler when enabled and detaches them otherwise.
func (p *Plugin) Configure(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled == enabled {
		return
	}
	p.enabled = enabled

	for _, sub := range p.subs {
		switch {
		case enabled && sub.unsubscribe == nil:
			sub.unsubscribe = p.registry.Channel(sub.name).Subscribe(sub.handler)
		case !enabled && sub.unsubscribe != nil:
			sub.unsubscribe()
			sub.unsubscribe = nil
		}
	}
}

// Enabled reports whether handlers are attached.
func (p *Plugin) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Channels returns the channel name of every recorded handler, in registration order.
func (p *Plugin) Channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.subs))
	for i, sub := range p.subs {
		names[i] = sub.name
	}
	return names
}
