package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lcx/iast/config"
	"github.com/lcx/iast/log"
	"github.com/lcx/iast/metrics"
)

// ProviderName is the name under which Telemetry registers its drain function.
const ProviderName = "iast"

// Provider returns the series accumulated since its previous call.
type Provider func() []PayloadMetric

// ProviderRegistry is implemented by the reporter that periodically drains providers.
type ProviderRegistry interface {
	RegisterProvider(name string, provider Provider)
	UnregisterProvider(name string)
}

// Option configures a Telemetry.
type Option func(*Telemetry)

// WithProviderRegistry sets the registry Configure registers Drain with.
func WithProviderRegistry(r ProviderRegistry) Option {
	return func(t *Telemetry) {
		t.registry = r
	}
}

// WithLogger sets the logger used for configuration warnings and recovered failures.
func WithLogger(l log.Logger) Option {
	return func(t *Telemetry) {
		if l != nil {
			t.logger = l
		}
	}
}

// Telemetry owns the global collector and routes metric writes to it or to the
// current operation's collector.
//
// Writes never panic and never return errors: failures are logged and the
// write is dropped.
type Telemetry struct {
	enabled   atomic.Bool
	verbosity atomic.Int32
	missing   atomic.Int32

	global *metrics.Collector
	logger log.Logger

	regMu      sync.Mutex
	registry   ProviderRegistry
	registered bool
}

var _ config.ConfigChangeListener = (*Telemetry)(nil)

// New creates a disabled Telemetry at INFORMATION verbosity. Call Configure to enable it.
func New(opts ...Option) *Telemetry {
	t := &Telemetry{
		global: NewGlobalCollector(),
		logger: log.Default(),
	}
	t.verbosity.Store(int32(VerbosityInformation))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Configure applies cfg. A nil cfg applies DefaultCfg.
func (t *Telemetry) Configure(cfg *Cfg) {
	if cfg == nil {
		cfg = DefaultCfg()
	}

	v, err := ParseVerbosity(cfg.Verbosity)
	if err != nil {
		t.logger.Warn().Err(err).Str("fallback", v.String()).Msg("invalid iast telemetry verbosity")
	}
	policy, err := ParseMissingOperationPolicy(cfg.MissingOperation)
	if err != nil {
		t.logger.Warn().Err(err).Str("fallback", policy.String()).Msg("invalid iast telemetry missing operation policy")
	}

	t.verbosity.Store(int32(v))
	t.missing.Store(int32(policy))
	t.enabled.Store(cfg.Enabled)

	if cfg.DoNotRegisterProvider {
		t.unregister()
	} else {
		t.register()
	}
}

// Stop disables collection and unregisters the drain provider.
func (t *Telemetry) Stop() {
	t.enabled.Store(false)
	t.unregister()
}

// OnConfigChanged reapplies a reloaded "telemetry" configuration.
func (t *Telemetry) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "telemetry" {
		return nil
	}
	cfg, ok := newConfig.(*Cfg)
	if !ok {
		return fmt.Errorf("telemetry config has unexpected type %T", newConfig)
	}
	t.Configure(cfg)
	return nil
}

func (t *Telemetry) register() {
	t.regMu.Lock()
	defer t.regMu.Unlock()
	if t.registry == nil || t.registered {
		return
	}
	t.registry.RegisterProvider(ProviderName, t.Drain)
	t.registered = true
}

func (t *Telemetry) unregister() {
	t.regMu.Lock()
	defer t.regMu.Unlock()
	if t.registry == nil || !t.registered {
		return
	}
	t.registry.UnregisterProvider(ProviderName)
	t.registered = false
}

// IsEnabled reports whether telemetry is enabled.
func (t *Telemetry) IsEnabled() bool {
	return t.enabled.Load()
}

// IsInformationEnabled reports whether telemetry is enabled at INFORMATION or above.
func (t *Telemetry) IsInformationEnabled() bool {
	return t.IsEnabled() && IsInfoAllowed(t.Verbosity())
}

// IsDebugEnabled reports whether telemetry is enabled at DEBUG.
func (t *Telemetry) IsDebugEnabled() bool {
	return t.IsEnabled() && IsDebugAllowed(t.Verbosity())
}

// Verbosity returns the configured level.
func (t *Telemetry) Verbosity() Verbosity {
	return Verbosity(t.verbosity.Load())
}

// VerbosityName returns the configured level name.
func (t *Telemetry) VerbosityName() string {
	return t.Verbosity().String()
}

// MissingOperationPolicy returns the configured policy.
func (t *Telemetry) MissingOperationPolicy() MissingOperationPolicy {
	return MissingOperationPolicy(t.missing.Load())
}

// Global returns the process-wide collector.
func (t *Telemetry) Global() *metrics.Collector {
	return t.global
}

func (t *Telemetry) collecting() bool {
	return t.IsEnabled() && t.Verbosity() != VerbosityOff
}

// StartOperation returns ctx carrying a new operation. The operation collects
// only when telemetry is enabled and verbosity is not OFF.
func (t *Telemetry) StartOperation(ctx context.Context) (context.Context, *Operation) {
	op := newOperation(t.collecting(), t.global)
	return WithOperation(ctx, op), op
}

// Increase adds 1 to metric under tag.
func (t *Telemetry) Increase(ctx context.Context, metric *metrics.Metric, tag string) {
	t.Add(ctx, metric, 1, tag)
}

// Add records value for metric under tag through the operation carried by ctx.
// A nil metric is a no-op.
func (t *Telemetry) Add(ctx context.Context, metric *metrics.Metric, value float64, tag string) {
	if metric == nil || !t.collecting() {
		return
	}
	defer t.recoverWrite(metric.Name)

	if c := t.collectorFor(ctx, metric); c != nil {
		c.AddMetric(metric, metrics.Value(value), tag)
	}
}

// AddByName records value for the catalog metric name. Unknown names are ignored.
func (t *Telemetry) AddByName(ctx context.Context, name string, value float64, tag string) {
	metric, ok := Lookup(name)
	if !ok {
		return
	}
	t.Add(ctx, metric, value, tag)
}

// collectorFor routes every write through a collecting operation's collector,
// which delegates global metrics to the global collector. Without an operation,
// global metrics go to the global collector and operation-scoped ones follow
// the missing-operation policy.
func (t *Telemetry) collectorFor(ctx context.Context, metric *metrics.Metric) *metrics.Collector {
	if op := OperationFromContext(ctx); op.IsCollecting() {
		if c := op.collectorForWrite(); c != nil {
			return c
		}
		// ended: operation-scoped writes are discarded
		if metric.HasOperationScope() {
			return nil
		}
		return t.global
	}
	if !metric.HasOperationScope() {
		return t.global
	}
	if t.MissingOperationPolicy() == MissingOperationDrop {
		return nil
	}
	return t.global
}

// EndOperation drains op's collector, tags span with the operation summary and
// merges the drained data into the global collector. Only the first call for an
// operation has any effect. The drained data is returned.
func (t *Telemetry) EndOperation(op *Operation, span SpanTagger) []metrics.MetricData {
	if op == nil {
		return nil
	}
	defer t.recoverWrite("end_operation")

	data, ok := op.end()
	if !ok || len(data) == 0 || !t.IsEnabled() {
		return nil
	}

	TagSpan(span, data)
	t.global.Merge(data)
	return data
}

// Drain empties the global collector into payload records.
func (t *Telemetry) Drain() []PayloadMetric {
	return ToPayload(t.global.DrainMetrics())
}

func (t *Telemetry) recoverWrite(what string) {
	if r := recover(); r != nil {
		t.logger.Error().Str("metric", what).Any("panic", r).Msg("iast telemetry write failed")
	}
}
