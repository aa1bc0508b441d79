package log

import (
	"sync/atomic"

	"github.com/lcx/iast/config"
)

// Logger is the fluent logging front end used across the module.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	Enabled(level Level) bool
	SetLevel(level Level)
	Sync() error
}

var _defaultLogger atomic.Pointer[ZapLogger]

func init() {
	_defaultLogger.Store(NewLogger(nil))
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *ZapLogger) {
	if logger == nil {
		return
	}
	_defaultLogger.Store(logger)
}

// Default returns the logger behind the package-level functions.
func Default() *ZapLogger {
	return _defaultLogger.Load()
}

// InitializeWithConfigManager loads the "logger" configuration, installs the
// resulting logger as the default and registers it for level hot-reload.
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	logCfg := &LogCfg{}
	if err := configManager.LoadConfig(logCfg.GetName(), logCfg); err != nil {
		return err
	}

	logger := NewLogger(logCfg)
	configManager.AddChangeListener(logger)
	SetDefaultLogger(logger)

	return nil
}

// Initialize initializes the default logger from the process-wide ConfigManager.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

// Debug creates a debug-level event on the default logger.
func Debug() *LogEvent {
	return Default().Debug()
}

// Info creates an info-level event on the default logger.
func Info() *LogEvent {
	return Default().Info()
}

// Warn creates a warn-level event on the default logger.
func Warn() *LogEvent {
	return Default().Warn()
}

// Error creates an error-level event on the default logger.
func Error() *LogEvent {
	return Default().Error()
}

// Fatal creates a fatal-level event on the default logger. Writing it panics.
func Fatal() *LogEvent {
	return Default().Fatal()
}
