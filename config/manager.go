package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrConfigNotFound is returned by GetConfig for names that were never loaded.
	ErrConfigNotFound = errors.New("config not found")
	// ErrEmptyConfig is returned by Reload when the file holds no keys, as seen
	// between the truncate and the write of an in-place save.
	ErrEmptyConfig = errors.New("config document is empty")
)

// reloadDebounce coalesces the burst of watcher events produced by one save.
const reloadDebounce = 100 * time.Millisecond

// ConfigManager interface for configuration management
type ConfigManager interface {
	LoadConfig(configName string, config Config) error
	LoadRemoteConfig(ctx context.Context, configName string, src RemoteSource, config Config) error
	Reload(configName string) error
	GetConfig(configName string) (Config, error)
	RegisterValidator(configName string, validator ValidatorFunc)
	RegisterHook(configName string, hook HookFunc)
	AddChangeListener(listener ConfigChangeListener)
	RemoveChangeListener(listener ConfigChangeListener)
	SetBasePath(path string)
	SetEnvironment(env string)
	Close() error
}

// ValidatorFunc configuration validation function
type ValidatorFunc func(Config) error

// HookFunc configuration change hook function
type HookFunc func(oldVal, newVal Config) error

// configManager implementation of ConfigManager interface
type configManager struct {
	mu         sync.RWMutex
	configs    map[string]Config
	watchers   map[string]*fsnotify.Watcher
	validators map[string]ValidatorFunc
	hooks      map[string][]HookFunc
	listeners  []ConfigChangeListener
	basePath   string
	env        string
	debounce   time.Duration
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() ConfigManager {
	return &configManager{
		configs:    make(map[string]Config),
		watchers:   make(map[string]*fsnotify.Watcher),
		validators: make(map[string]ValidatorFunc),
		hooks:      make(map[string][]HookFunc),
		basePath:   "./configs",
		env:        "development",
		debounce:   reloadDebounce,
	}
}

// LoadConfig loads configuration from <basePath>/<name>.yaml or <basePath>/<env>/<name>.yaml.
// Environment variables prefixed with the upper-cased name override file values.
func (cm *configManager) LoadConfig(configName string, config Config) error {
	cm.mu.Lock()

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("read config failed: %w", err)
	}

	if err := cm.decode(configName, v, config); err != nil {
		cm.mu.Unlock()
		return err
	}

	old := cm.configs[configName]
	cm.configs[configName] = config

	if err := cm.watchConfigFile(configName, v); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("watch config file failed: %w", err)
	}
	cm.mu.Unlock()

	if old != nil {
		cm.notify(configName, config, old)
	}
	return nil
}

// LoadRemoteConfig loads a YAML document fetched from src.
// A later call for the same name notifies listeners like a file reload does.
func (cm *configManager) LoadRemoteConfig(ctx context.Context, configName string, src RemoteSource, config Config) error {
	if src == nil {
		return fmt.Errorf("remote source for %s is nil", configName)
	}

	data, err := src.Fetch(ctx, configName)
	if err != nil {
		return fmt.Errorf("fetch remote config failed: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("read remote config failed: %w", err)
	}

	cm.mu.Lock()
	if err := cm.decode(configName, v, config); err != nil {
		cm.mu.Unlock()
		return err
	}
	old := cm.configs[configName]
	cm.configs[configName] = config
	cm.mu.Unlock()

	if old != nil {
		cm.notify(configName, config, old)
	}
	return nil
}

// GetConfig returns the last successfully loaded configuration.
func (cm *configManager) GetConfig(configName string) (Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	config, exists := cm.configs[configName]
	if !exists {
		return nil, fmt.Errorf("config %s: %w", configName, ErrConfigNotFound)
	}

	return config, nil
}

// RegisterValidator registers configuration validator
func (cm *configManager) RegisterValidator(configName string, validator ValidatorFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.validators[configName] = validator
}

// RegisterHook registers configuration change hook
func (cm *configManager) RegisterHook(configName string, hook HookFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hooks[configName] = append(cm.hooks[configName], hook)
}

// AddChangeListener registers a listener for every configuration name.
func (cm *configManager) AddChangeListener(listener ConfigChangeListener) {
	if listener == nil {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, l := range cm.listeners {
		if l == listener {
			return
		}
	}
	cm.listeners = append(cm.listeners, listener)
}

// RemoveChangeListener unregisters a listener.
func (cm *configManager) RemoveChangeListener(listener ConfigChangeListener) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, l := range cm.listeners {
		if l == listener {
			cm.listeners = append(cm.listeners[:i], cm.listeners[i+1:]...)
			return
		}
	}
}

// SetBasePath sets base path for configuration files
func (cm *configManager) SetBasePath(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.basePath = path
}

// SetEnvironment sets environment for configuration
func (cm *configManager) SetEnvironment(env string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.env = env
}

// Reload re-reads a file-backed configuration. On any failure, including an
// empty document, the old configuration is kept.
func (cm *configManager) Reload(configName string) error {
	cm.mu.Lock()

	oldConfig, exists := cm.configs[configName]
	if !exists {
		cm.mu.Unlock()
		return fmt.Errorf("config %s: %w", configName, ErrConfigNotFound)
	}

	// Create new config instance (preserve original type via reflection)
	newConfig := reflect.New(reflect.TypeOf(oldConfig).Elem()).Interface().(Config)

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("reload config %s failed: %w", configName, err)
	}
	if len(v.AllKeys()) == 0 {
		cm.mu.Unlock()
		return fmt.Errorf("reload config %s failed: %w", configName, ErrEmptyConfig)
	}
	if err := cm.decode(configName, v, newConfig); err != nil {
		cm.mu.Unlock()
		return err
	}

	for _, hook := range cm.hooks[configName] {
		if err := hook(oldConfig, newConfig); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("hook failed for config %s: %w", configName, err)
		}
	}

	cm.configs[configName] = newConfig
	cm.mu.Unlock()

	cm.notify(configName, newConfig, oldConfig)
	return nil
}

// Close closes the configuration manager
func (cm *configManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []error
	for name, watcher := range cm.watchers {
		if err := watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(cm.watchers, name)
	}

	return errors.Join(errs...)
}

// newViper must be called with cm.mu held.
func (cm *configManager) newViper(configName string) *viper.Viper {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.AddConfigPath(fmt.Sprintf("%s/%s", cm.basePath, cm.env))

	// Read environment variables for override
	v.AutomaticEnv()
	v.SetEnvPrefix(strings.ToUpper(configName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// decode must be called with cm.mu held.
func (cm *configManager) decode(configName string, v *viper.Viper, config Config) error {
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("validate config failed: %w", err)
	}

	if validator, exists := cm.validators[configName]; exists {
		if err := validator(config); err != nil {
			return fmt.Errorf("validate config failed: %w", err)
		}
	}
	return nil
}

func (cm *configManager) notify(configName string, newConfig, oldConfig Config) {
	cm.mu.RLock()
	listeners := make([]ConfigChangeListener, len(cm.listeners))
	copy(listeners, cm.listeners)
	cm.mu.RUnlock()

	for _, l := range listeners {
		if err := l.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
			fmt.Printf("config listener failed for %s: %v\n", configName, err)
		}
	}
}

// watchConfigFile must be called with cm.mu held.
func (cm *configManager) watchConfigFile(configName string, v *viper.Viper) error {
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		return nil
	}
	if _, exists := cm.watchers[configName]; exists {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	cm.watchers[configName] = watcher
	go cm.watchLoop(configName, watcher, cm.debounce)

	return watcher.Add(configFile)
}

// watchLoop reloads configName once the watcher has been quiet for debounce.
func (cm *configManager) watchLoop(configName string, watcher *fsnotify.Watcher, debounce time.Duration) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := cm.Reload(configName); err != nil {
				// Keep using the old config.
				fmt.Printf("config reload failed: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Printf("config watcher error: %v\n", err)
		}
	}
}

// ConfigManagerProvider provides configuration manager
type ConfigManagerProvider struct {
	configManager ConfigManager
}

// NewConfigManagerProvider creates a new configuration manager provider
func NewConfigManagerProvider(cm ConfigManager) *ConfigManagerProvider {
	return &ConfigManagerProvider{
		configManager: cm,
	}
}

// GetConfigManager gets the configuration manager
func (p *ConfigManagerProvider) GetConfigManager() ConfigManager {
	return p.configManager
}

// SetConfigManager sets the configuration manager
func (p *ConfigManagerProvider) SetConfigManager(cm ConfigManager) {
	p.configManager = cm
}
