package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig test configuration structure
type TestConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Verbosity string        `mapstructure:"verbosity"`
	Interval  time.Duration `mapstructure:"interval"`
	Limit     int           `mapstructure:"limit"`
}

func (c *TestConfig) GetName() string {
	return "test"
}

func (c *TestConfig) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// TestChangeListener test configuration change listener
type TestChangeListener struct {
	mu             sync.Mutex
	ChangeCount    int32
	LastConfig     Config
	LastOldConfig  Config
	LastConfigName string
}

// OnConfigChanged implements ConfigChangeListener interface
func (l *TestChangeListener) OnConfigChanged(configName string, newConfig, oldConfig Config) error {
	atomic.AddInt32(&l.ChangeCount, 1)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.LastConfig = newConfig
	l.LastOldConfig = oldConfig
	l.LastConfigName = configName
	return nil
}

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfigManager(t *testing.T) {
	cm := NewConfigManager()
	require.NotNil(t, cm)
	require.NoError(t, cm.Close())
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "telemetry", `
enabled: true
verbosity: DEBUG
interval: 250ms
limit: 10
`)

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	cfg := &TestConfig{}
	require.NoError(t, cm.LoadConfig("telemetry", cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "DEBUG", cfg.Verbosity)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, 10, cfg.Limit)

	got, err := cm.GetConfig("telemetry")
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "telemetry", `
enabled: true
verbosity: INFORMATION
`)
	t.Setenv("TELEMETRY_VERBOSITY", "OFF")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	cfg := &TestConfig{}
	require.NoError(t, cm.LoadConfig("telemetry", cfg))
	assert.Equal(t, "OFF", cfg.Verbosity)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(t.TempDir())

	err := cm.LoadConfig("absent", &TestConfig{})
	assert.Error(t, err)
}

func TestGetConfigNotFound(t *testing.T) {
	cm := NewConfigManager()

	_, err := cm.GetConfig("nonexistent")
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestConfigValidation(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "invalid", "limit: -1\n")
	writeConfig(t, tmpDir, "custom", "limit: 5\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	assert.Error(t, cm.LoadConfig("invalid", &TestConfig{}), "Validate() must reject negative limit")

	cm.RegisterValidator("custom", func(c Config) error {
		if c.(*TestConfig).Limit > 3 {
			return fmt.Errorf("limit too high")
		}
		return nil
	})
	assert.Error(t, cm.LoadConfig("custom", &TestConfig{}))
}

func TestEnvironmentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	envDir := filepath.Join(tmpDir, "production")
	require.NoError(t, os.MkdirAll(envDir, 0o755))
	writeConfig(t, envDir, "env", "verbosity: MANDATORY\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)
	cm.SetEnvironment("production")

	cfg := &TestConfig{}
	require.NoError(t, cm.LoadConfig("env", cfg))
	assert.Equal(t, "MANDATORY", cfg.Verbosity)
}

func TestReload_NotifiesListeners(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "hook", "verbosity: INFORMATION\nlimit: 1\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	listener := &TestChangeListener{}
	cm.AddChangeListener(listener)
	cm.AddChangeListener(listener) // duplicates are ignored

	var hookCalls int32
	cm.RegisterHook("hook", func(oldVal, newVal Config) error {
		atomic.AddInt32(&hookCalls, 1)
		return nil
	})

	require.NoError(t, cm.LoadConfig("hook", &TestConfig{}))

	writeConfig(t, tmpDir, "hook", "verbosity: DEBUG\nlimit: 2\n")
	require.NoError(t, cm.Reload("hook"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&hookCalls))

	listener.mu.Lock()
	assert.Equal(t, "hook", listener.LastConfigName)
	assert.Equal(t, "DEBUG", listener.LastConfig.(*TestConfig).Verbosity)
	assert.Equal(t, "INFORMATION", listener.LastOldConfig.(*TestConfig).Verbosity)
	listener.mu.Unlock()

	cm.RemoveChangeListener(listener)
	require.NoError(t, cm.Reload("hook"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&listener.ChangeCount))
}

func TestReload_KeepsOldConfigOnFailure(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "keep", "limit: 1\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	original := &TestConfig{}
	require.NoError(t, cm.LoadConfig("keep", original))

	writeConfig(t, tmpDir, "keep", "limit: -5\n")
	assert.Error(t, cm.Reload("keep"))

	cm.RegisterHook("keep", func(oldVal, newVal Config) error { return errors.New("rejected") })
	writeConfig(t, tmpDir, "keep", "limit: 9\n")
	assert.Error(t, cm.Reload("keep"))

	got, err := cm.GetConfig("keep")
	require.NoError(t, err)
	assert.Same(t, original, got)

	assert.True(t, errors.Is(cm.Reload("never-loaded"), ErrConfigNotFound))
}

func TestFileWatcherReload(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "watched", "verbosity: INFORMATION\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	listener := &TestChangeListener{}
	cm.AddChangeListener(listener)
	require.NoError(t, cm.LoadConfig("watched", &TestConfig{}))

	writeConfig(t, tmpDir, "watched", "verbosity: DEBUG\n")

	require.Eventually(t, func() bool {
		got, err := cm.GetConfig("watched")
		return err == nil && got.(*TestConfig).Verbosity == "DEBUG"
	}, 5*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&listener.ChangeCount), int32(1))
}

func TestReload_RejectsEmptyDocument(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "truncated", "verbosity: DEBUG\nlimit: 3\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	listener := &TestChangeListener{}
	cm.AddChangeListener(listener)
	original := &TestConfig{}
	require.NoError(t, cm.LoadConfig("truncated", original))

	writeConfig(t, tmpDir, "truncated", "")
	assert.ErrorIs(t, cm.Reload("truncated"), ErrEmptyConfig)

	got, err := cm.GetConfig("truncated")
	require.NoError(t, err)
	assert.Same(t, original, got)
	assert.Equal(t, int32(0), atomic.LoadInt32(&listener.ChangeCount))
}

func TestFileWatcherCoalescesSave(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "saved", "verbosity: INFORMATION\nlimit: 1\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)

	listener := &TestChangeListener{}
	cm.AddChangeListener(listener)
	require.NoError(t, cm.LoadConfig("saved", &TestConfig{}))

	// an editor saving in place: truncate, then the new content
	writeConfig(t, tmpDir, "saved", "")
	writeConfig(t, tmpDir, "saved", "verbosity: DEBUG\nlimit: 2\n")

	require.Eventually(t, func() bool {
		got, err := cm.GetConfig("saved")
		return err == nil && got.(*TestConfig).Limit == 2
	}, 5*time.Second, 20*time.Millisecond)

	listener.mu.Lock()
	last := listener.LastConfig.(*TestConfig)
	listener.mu.Unlock()
	assert.Equal(t, "DEBUG", last.Verbosity)

	assert.Never(t, func() bool {
		got, err := cm.GetConfig("saved")
		return err != nil || got.(*TestConfig).Limit != 2
	}, 3*reloadDebounce, 20*time.Millisecond)
}

func TestConcurrentGetConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "shared", "limit: 3\n")

	cm := NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(tmpDir)
	require.NoError(t, cm.LoadConfig("shared", &TestConfig{}))

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := cm.GetConfig("shared"); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if err := cm.Reload("shared"); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&failures))
}

func TestConfigManagerProvider(t *testing.T) {
	cm := NewConfigManager()
	provider := NewConfigManagerProvider(cm)
	assert.Same(t, cm, provider.GetConfigManager())

	other := NewConfigManager()
	provider.SetConfigManager(other)
	assert.Same(t, other, provider.GetConfigManager())
}
