package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lcx/iast/config"
	"github.com/lcx/iast/log"
)

// ErrFactoryNotFound is returned when the configuration names an unregistered analyzer.
var ErrFactoryNotFound = errors.New("analyzer factory not found")

// PluginError reports a failed lifecycle step of one analyzer.
type PluginError struct { //nolint:revive
	Type Type
	Name string
	Op   string
	Err  error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("analyzer [%s/%s] %s failed: %v", e.Type, e.Name, e.Op, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// PluginConfig is the "plugin" configuration document.
// Structure: map[analyzer_type][analyzer_name] = config_items
// Example YAML:
//
//	sink:
//	  sql_injection:
//	    enabled: true
//	source:
//	  http_request:
//	    enabled: false
type PluginConfig map[string]map[string]map[string]any //nolint:revive

// GetName implements config.Config.
func (c *PluginConfig) GetName() string {
	return "plugin"
}

// Validate implements config.Config.
func (c *PluginConfig) Validate() error {
	if c == nil || len(*c) == 0 {
		return fmt.Errorf("plugin config is empty")
	}
	for pluginType, analyzers := range *c {
		if len(analyzers) == 0 {
			return fmt.Errorf("plugin type %s has no analyzer config", pluginType)
		}
	}
	return nil
}

// AnalyzerEnabled reads the optional "enabled" key of an analyzer block. It defaults to true.
func AnalyzerEnabled(cfg map[string]any) bool {
	v, ok := cfg["enabled"].(bool)
	return !ok || v
}

type entry struct {
	ft       Type
	fn       string
	factory  Factory
	analyzer Analyzer
	cfg      map[string]any
}

func (e *entry) key() string {
	return fmt.Sprintf("%s/%s", e.ft, e.fn)
}

// Manager owns the analyzers created from a PluginConfig.
type Manager struct {
	deps Deps

	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string
	configured bool
	enabled    bool
}

var _ config.ConfigChangeListener = (*Manager)(nil)

// InitPlugins sets up every analyzer named by cfg. On partial failure every
// analyzer created so far is destroyed and the error is returned.
func InitPlugins(deps Deps, cfg PluginConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		deps:    deps,
		entries: make(map[string]*entry),
	}
	logger := deps.logger()

	var initialized []*entry
	for _, item := range sortedItems(cfg) {
		e, err := m.setup(item.ft, item.fn, item.cfg)
		if err != nil {
			rollback(logger, initialized)
			return nil, err
		}
		initialized = append(initialized, e)
		m.add(e)
	}

	logger.Info().Int("count", len(initialized)).Msg("InitPlugins success")
	return m, nil
}

// InitPluginsWithConfigManager loads the "plugin" configuration from cm, sets up
// the analyzers and registers the manager for hot reload.
func InitPluginsWithConfigManager(deps Deps, cm config.ConfigManager) (*Manager, error) {
	var cfg PluginConfig
	if err := cm.LoadConfig(cfg.GetName(), &cfg); err != nil {
		return nil, fmt.Errorf("load plugin config failed: %w", err)
	}

	m, err := InitPlugins(deps, cfg)
	if err != nil {
		return nil, err
	}
	cm.AddChangeListener(m)
	return m, nil
}

type configItem struct {
	ft  Type
	fn  string
	cfg map[string]any
}

func sortedItems(cfg PluginConfig) []configItem {
	var items []configItem
	for ft, analyzers := range cfg {
		for fn, c := range analyzers {
			if c == nil {
				c = map[string]any{}
			}
			items = append(items, configItem{ft: Type(ft), fn: fn, cfg: c})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ft != items[j].ft {
			return items[i].ft < items[j].ft
		}
		return items[i].fn < items[j].fn
	})
	return items
}

func (m *Manager) setup(ft Type, fn string, cfg map[string]any) (*entry, error) {
	f := getFactory(ft, fn)
	if f == nil {
		return nil, &PluginError{Type: ft, Name: fn, Op: "lookup",
			Err: fmt.Errorf("%w, available: %v", ErrFactoryNotFound, ListFactories(ft))}
	}

	logger := m.deps.logger()
	logger.Info().Str("type", string(ft)).Str("name", fn).Msg("analyzer setup begin")

	a, err := f.Setup(m.deps, cfg)
	if err != nil {
		return nil, &PluginError{Type: ft, Name: fn, Op: "setup", Err: err}
	}
	if a == nil {
		return nil, &PluginError{Type: ft, Name: fn, Op: "setup", Err: errors.New("factory returned nil analyzer")}
	}

	logger.Info().Str("type", string(ft)).Str("name", fn).Msg("analyzer setup success")
	return &entry{ft: ft, fn: fn, factory: f, analyzer: a, cfg: cfg}, nil
}

// add must be called with m.mu held or before m is shared.
func (m *Manager) add(e *entry) {
	key := e.key()
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = e
}

// remove must be called with m.mu held.
func (m *Manager) remove(key string) {
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func rollback(logger log.Logger, entries []*entry) {
	if len(entries) == 0 {
		return
	}
	logger.Warn().Int("count", len(entries)).Msg("rolling back initialized analyzers...")
	for i := len(entries) - 1; i >= 0; i-- {
		destroy(logger, entries[i])
	}
}

func destroy(logger log.Logger, e *entry) {
	e.analyzer.Configure(false)
	if err := e.factory.Destroy(e.analyzer); err != nil {
		logger.Error().Err(err).Str("type", string(e.ft)).Str("name", e.fn).Msg("destroy analyzer failed")
	}
}

// ConfigureAll configures every analyzer. An analyzer whose block sets
// enabled: false stays disabled.
func (m *Manager) ConfigureAll(enabled bool) {
	m.mu.Lock()
	m.configured = true
	m.enabled = enabled
	entries := m.snapshot()
	m.mu.Unlock()

	for _, e := range entries {
		e.analyzer.Configure(enabled && AnalyzerEnabled(e.cfg))
	}
}

// snapshot must be called with m.mu held.
func (m *Manager) snapshot() []*entry {
	out := make([]*entry, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.entries[key])
	}
	return out
}

// Get returns the analyzer set up from the ft/name block.
func (m *Manager) Get(ft Type, name string) (Analyzer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[fmt.Sprintf("%s/%s", ft, name)]
	if !ok {
		return nil, false
	}
	return e.analyzer, true
}

// List returns "type/name" for every analyzer in setup order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// DestroyAll disables and destroys every analyzer.
func (m *Manager) DestroyAll() error {
	m.mu.Lock()
	entries := m.snapshot()
	m.entries = make(map[string]*entry)
	m.order = nil
	m.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		e.analyzer.Configure(false)
		if err := e.factory.Destroy(e.analyzer); err != nil {
			errs = append(errs, &PluginError{Type: e.ft, Name: e.fn, Op: "destroy", Err: err})
		}
	}
	return errors.Join(errs...)
}

// OnConfigChanged applies a reloaded "plugin" configuration.
//
// Analyzers present in both configurations are reloaded in place, falling
// back to destroy and setup when Reload fails. Removed analyzers are
// destroyed and new ones are set up. Unknown analyzer names reject the whole
// change before anything is touched.
func (m *Manager) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "plugin" {
		return nil
	}
	newCfg, ok := newConfig.(*PluginConfig)
	if !ok {
		return fmt.Errorf("invalid config type: expected *PluginConfig, got %T", newConfig)
	}

	items := sortedItems(*newCfg)
	for _, item := range items {
		if getFactory(item.ft, item.fn) == nil {
			return &PluginError{Type: item.ft, Name: item.fn, Op: "lookup", Err: ErrFactoryNotFound}
		}
	}

	logger := m.deps.logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(items))
	var errs []error
	reloaded, recreated := 0, 0

	for _, item := range items {
		key := fmt.Sprintf("%s/%s", item.ft, item.fn)
		keep[key] = true

		if e, exists := m.entries[key]; exists {
			err := e.factory.Reload(e.analyzer, item.cfg)
			if err == nil {
				e.cfg = item.cfg
				m.apply(e)
				reloaded++
				continue
			}
			logger.Warn().Err(err).Str("analyzer", key).Msg("hot reload failed, will recreate analyzer")
			destroy(logger, e)
			m.remove(key)
		}

		e, err := m.setup(item.ft, item.fn, item.cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.add(e)
		m.apply(e)
		recreated++
	}

	for _, key := range append([]string(nil), m.order...) {
		if !keep[key] {
			destroy(logger, m.entries[key])
			m.remove(key)
		}
	}

	logger.Info().Int("reloaded", reloaded).Int("recreated", recreated).Msg("analyzer hot reload completed")
	return errors.Join(errs...)
}

// apply must be called with m.mu held.
func (m *Manager) apply(e *entry) {
	if m.configured {
		e.analyzer.Configure(m.enabled && AnalyzerEnabled(e.cfg))
	}
}
