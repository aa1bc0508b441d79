package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lcx/iast/config"
)

// ZapLogger implements Logger on top of a zap core. Events are pooled and the
// minimum level is held in a zap.AtomicLevel so it can be changed at runtime.
//
// Example:
//
//	logger := NewLogger(&LogCfg{Level: "debug", Console: true})
//	logger.Info().Str("module", "sqli").Int("sinks", 3).Msg("analyzer enabled")
type ZapLogger struct {
	zl        *zap.Logger
	level     zap.AtomicLevel
	eventPool sync.Pool
}

var _ Logger = (*ZapLogger)(nil)
var _ config.ConfigChangeListener = (*ZapLogger)(nil)

// NewLogger builds a logger from cfg. A nil cfg uses stderr JSON output at info level.
func NewLogger(cfg *LogCfg) *ZapLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	level := zap.NewAtomicLevelAt(cfg.MinLevel().zap())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Encoding == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level))
	}
	if cfg.Path != "" {
		if f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), level))
		}
	}

	opts := []zap.Option{zap.WithFatalHook(zapcore.WriteThenPanic)}
	if cfg.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	return newZapLogger(zap.New(zapcore.NewTee(cores...), opts...), level)
}

// NewLoggerWithCore wraps an existing core, typically zaptest/observer in tests.
func NewLoggerWithCore(core zapcore.Core, minLevel Level) *ZapLogger {
	level := zap.NewAtomicLevelAt(minLevel.zap())
	return newZapLogger(zap.New(core, zap.WithFatalHook(zapcore.WriteThenPanic)), level)
}

func newZapLogger(zl *zap.Logger, level zap.AtomicLevel) *ZapLogger {
	logger := &ZapLogger{zl: zl, level: level}
	logger.eventPool.New = func() any {
		return newEvent(logger)
	}
	return logger
}

// Enabled reports whether events at level are written.
func (x *ZapLogger) Enabled(level Level) bool {
	return x.level.Enabled(level.zap())
}

// SetLevel changes the minimum level.
func (x *ZapLogger) SetLevel(level Level) {
	x.level.SetLevel(level.zap())
}

// Sync flushes buffered output.
func (x *ZapLogger) Sync() error {
	return x.zl.Sync()
}

// Zap exposes the underlying zap logger.
func (x *ZapLogger) Zap() *zap.Logger {
	return x.zl
}

// OnConfigChanged applies a new "logger" configuration's level.
func (x *ZapLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}
	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}
	x.SetLevel(newLogCfg.MinLevel())
	return nil
}

func (x *ZapLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

func (x *ZapLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

func (x *ZapLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

func (x *ZapLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal creates a fatal-level event. Writing it panics after the entry is flushed.
func (x *ZapLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// log returns nil when level is disabled.
func (x *ZapLogger) log(level Level) *LogEvent {
	if !x.Enabled(level) {
		return nil
	}
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.level = level
	return e
}

func (x *ZapLogger) write(e *LogEvent, msg string) {
	fields := e.fields
	ce := x.zl.Check(e.zapLevel(), msg)
	if e.level != FatalLevel {
		defer x.eventPool.Put(e)
	}
	if ce != nil {
		ce.Write(fields...)
	}
}
