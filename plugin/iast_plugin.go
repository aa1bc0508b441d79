package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lcx/iast/channel"
	"github.com/lcx/iast/log"
	"github.com/lcx/iast/metrics"
	"github.com/lcx/iast/telemetry"
)

// Subscription describes what an analyzer callback observes and how its
// executions are counted.
type Subscription struct {
	// ModuleName is matched against module activation names. Derived from
	// ChannelName when empty.
	ModuleName string
	// ChannelName is the runtime event channel.
	ChannelName string
	// Tag is the metric tag value, such as "SQL_INJECTION" or "http.request.body".
	Tag string
	// TagDimension is telemetry.TagSourceType or telemetry.TagVulnerabilityType.
	// Defaults to telemetry.TagVulnerabilityType.
	TagDimension string
}

// ModuleNameFromChannel returns the second colon-delimited segment of a channel
// name, or the whole name when it has no colon.
//
//	"datadog:test:start" -> "test"
//	"a:b"                -> "b"
//	"test"               -> "test"
func ModuleNameFromChannel(channelName string) string {
	first := strings.IndexByte(channelName, ':')
	if first == -1 {
		return channelName
	}
	rest := channelName[first+1:]
	if next := strings.IndexByte(rest, ':'); next != -1 {
		return rest[:next]
	}
	return rest
}

// Context is handed to analyzer callbacks.
type Context struct {
	// Operation is the operation in flight when the event fired. May be nil.
	Operation *telemetry.Operation
	// Ctx is the publisher's context.
	Ctx context.Context
}

// Callback analyzes one runtime event. A returned error or a panic is logged
// and never reaches the publisher.
type Callback func(msg any, pctx Context, channelName string) error

// ActivationSource delivers the names of modules as they become active.
// channel.Registry implements it.
type ActivationSource interface {
	OnActivation(fn func(name string)) (detach func())
}

// IastPlugin is the base of every analyzer. It wraps analyzer callbacks so each
// firing is counted, resolved against the current operation and isolated from
// the host, and it counts module activations for its subscriptions.
type IastPlugin struct {
	*Plugin

	name       string
	dimension  string // fixed by source and sink plugins
	telemetry  *telemetry.Telemetry
	activation ActivationSource
	logger     log.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
	setup      func(*IastPlugin)
	setupOnce  sync.Once

	mu         sync.Mutex
	configured bool
	subs       []Subscription
	detach     func()
}

// IastOption configures an IastPlugin.
type IastOption func(*IastPlugin)

// WithSetup sets the routine registering the plugin's subscriptions. It runs
// once, on the first Configure call.
func WithSetup(fn func(p *IastPlugin)) IastOption {
	return func(p *IastPlugin) {
		p.setup = fn
	}
}

// WithActivationSource overrides the source of module activations.
func WithActivationSource(src ActivationSource) IastOption {
	return func(p *IastPlugin) {
		p.activation = src
	}
}

// WithPluginLogger sets the logger for callback failures.
func WithPluginLogger(l log.Logger) IastOption {
	return func(p *IastPlugin) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithFailureLogLimit limits how often callback failures are logged.
func WithFailureLogLimit(every time.Duration, burst int) IastOption {
	return func(p *IastPlugin) {
		p.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// NewIastPlugin creates an analyzer plugin. The dimension of each subscription
// is taken from the subscription itself.
func NewIastPlugin(name string, deps Deps, opts ...IastOption) *IastPlugin {
	p := &IastPlugin{
		Plugin:    NewPlugin(deps.Channels),
		name:      name,
		telemetry: deps.Telemetry,
		logger:    deps.logger(),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	p.activation = deps.activation(p.Plugin.Registry())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewSourcePlugin creates a plugin whose subscriptions are always counted
// under telemetry.TagSourceType.
func NewSourcePlugin(name string, deps Deps, opts ...IastOption) *IastPlugin {
	p := NewIastPlugin(name, deps, opts...)
	p.dimension = telemetry.TagSourceType
	return p
}

// NewSinkPlugin creates a plugin whose subscriptions are always counted
// under telemetry.TagVulnerabilityType.
func NewSinkPlugin(name string, deps Deps, opts ...IastOption) *IastPlugin {
	p := NewIastPlugin(name, deps, opts...)
	p.dimension = telemetry.TagVulnerabilityType
	return p
}

// Name implements Analyzer.
func (p *IastPlugin) Name() string {
	return p.name
}

// AddSub registers callback for sub.ChannelName and tracks sub for activation
// counting. It returns the normalized subscription, or nil when sub has no channel.
func (p *IastPlugin) AddSub(sub Subscription, callback Callback) *Subscription {
	if sub.ChannelName == "" || callback == nil {
		return nil
	}
	if sub.ModuleName == "" {
		sub.ModuleName = ModuleNameFromChannel(sub.ChannelName)
	}
	switch {
	case p.dimension != "":
		sub.TagDimension = p.dimension
	case sub.TagDimension == "":
		sub.TagDimension = telemetry.TagVulnerabilityType
	}

	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	p.Plugin.AddSub(sub.ChannelName, p.wrap(callback, telemetry.ExecutedMetric(sub.TagDimension), sub.Tag))
	return &sub
}

// AddChannelSub registers callback for channelName with failure isolation only:
// no executed counter and no activation tracking.
func (p *IastPlugin) AddChannelSub(channelName string, callback Callback) {
	if callback == nil {
		return
	}
	p.Plugin.AddSub(channelName, p.wrap(callback, nil, ""))
}

// Subscriptions returns the tracked subscriptions.
func (p *IastPlugin) Subscriptions() []Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Subscription, len(p.subs))
	copy(out, p.subs)
	return out
}

// Configure runs the setup routine on the first call, then enables or
// disables the plugin. The activation listener is attached only while both
// telemetry and the plugin are enabled.
func (p *IastPlugin) Configure(enabled bool) {
	p.setupOnce.Do(func() {
		if p.setup != nil {
			p.setup(p)
		}
		p.mu.Lock()
		p.configured = true
		p.mu.Unlock()
	})

	p.Plugin.Configure(enabled)

	if enabled && p.telemetry != nil && p.telemetry.IsEnabled() {
		p.EnableTelemetry()
	} else {
		p.DisableTelemetry()
	}
	if !enabled {
		p.flushSuppressed()
	}
}

// Configured reports whether Configure has been called.
func (p *IastPlugin) Configured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configured
}

// EnableTelemetry attaches the activation listener.
func (p *IastPlugin) EnableTelemetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detach != nil || p.activation == nil {
		return
	}
	p.detach = p.activation.OnActivation(p.onInstrumentationLoaded)
}

// DisableTelemetry detaches the activation listener. Wrapped callbacks stay registered.
func (p *IastPlugin) DisableTelemetry() {
	p.mu.Lock()
	detach := p.detach
	p.detach = nil
	p.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// TelemetryAttached reports whether the activation listener is attached.
func (p *IastPlugin) TelemetryAttached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detach != nil
}

// SuppressedFailures returns how many failures were suppressed since the last
// logged one.
func (p *IastPlugin) SuppressedFailures() int64 {
	return p.suppressed.Load()
}

// flushSuppressed logs the failures still counted as suppressed.
func (p *IastPlugin) flushSuppressed() {
	if n := p.suppressed.Swap(0); n > 0 {
		p.logger.Warn().
			Str("analyzer", p.name).
			Int64("suppressed", n).
			Msg("iast analyzer callback failures suppressed")
	}
}

func (p *IastPlugin) onInstrumentationLoaded(name string) {
	if name == "" || p.telemetry == nil {
		return
	}
	for _, sub := range p.Subscriptions() {
		if strings.Contains(sub.ModuleName, name) {
			p.telemetry.Increase(context.Background(), telemetry.InstrumentedMetric(sub.TagDimension), sub.Tag)
		}
	}
}

func (p *IastPlugin) wrap(callback Callback, executed *metrics.Metric, tag string) channel.Handler {
	return func(ctx context.Context, msg any, channelName string) {
		if ctx == nil {
			ctx = context.Background()
		}
		pctx := Context{
			Operation: telemetry.OperationFromContext(ctx),
			Ctx:       ctx,
		}

		if executed != nil && p.telemetry != nil && p.telemetry.IsEnabled() {
			p.telemetry.Increase(ctx, executed, tag)
		}

		p.invoke(callback, msg, pctx, channelName)
	}
}

func (p *IastPlugin) invoke(callback Callback, msg any, pctx Context, channelName string) {
	defer func() {
		if r := recover(); r != nil {
			p.reportFailure(channelName, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := callback(msg, pctx, channelName); err != nil {
		p.reportFailure(channelName, err)
	}
}

func (p *IastPlugin) reportFailure(channelName string, err error) {
	if !p.limiter.Allow() {
		p.suppressed.Add(1)
		return
	}
	p.logger.Error().
		Str("analyzer", p.name).
		Str("channel", channelName).
		Int64("suppressed", p.suppressed.Swap(0)).
		Err(err).
		Msg("iast analyzer callback failed")
}
