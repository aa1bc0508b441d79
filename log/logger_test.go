package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lcx/iast/config"
)

func newObserved(t *testing.T, level Level) (*ZapLogger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggerWithCore(core, level), logs
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"TRACE":   DebugLevel,
		" info ":  InfoLevel,
		"Warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
		"":        InfoLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "warn", WarnLevel.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestLogEvent_Fields(t *testing.T) {
	logger, logs := newObserved(t, DebugLevel)

	logger.Info().
		Str("module", "sqli").
		Int("count", 3).
		Int64("ts", 1700000000000).
		Uint64("seq", 9).
		Float64("value", 2.5).
		Bool("enabled", true).
		Dur("elapsed", 150*time.Millisecond).
		Err(errors.New("boom")).
		Any("tags", []string{"a", "b"}).
		Msg("analyzer enabled")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "analyzer enabled", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "sqli", ctx["module"])
	assert.Equal(t, int64(3), ctx["count"])
	assert.Equal(t, int64(1700000000000), ctx["ts"])
	assert.Equal(t, uint64(9), ctx["seq"])
	assert.Equal(t, 2.5, ctx["value"])
	assert.Equal(t, true, ctx["enabled"])
	assert.Equal(t, 150*time.Millisecond, ctx["elapsed"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, []interface{}{"a", "b"}, ctx["tags"])
}

func TestLogEvent_NilIsSafe(t *testing.T) {
	logger, logs := newObserved(t, WarnLevel)

	e := logger.Debug()
	assert.Nil(t, e)

	assert.NotPanics(t, func() {
		e.Str("k", "v").Int("n", 1).Err(errors.New("x")).Msg("dropped")
		e.Msgf("dropped %d", 1)
	})
	assert.Zero(t, logs.Len())
}

func TestLogger_SetLevel(t *testing.T) {
	logger, logs := newObserved(t, InfoLevel)

	logger.Debug().Msg("hidden")
	assert.False(t, logger.Enabled(DebugLevel))

	logger.SetLevel(DebugLevel)
	logger.Debug().Msgf("shown %s", "now")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown now", logs.All()[0].Message)
}

func TestLogger_FatalPanics(t *testing.T) {
	logger, logs := newObserved(t, InfoLevel)

	assert.Panics(t, func() {
		logger.Fatal().Str("reason", "test").Msg("fatal")
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.FatalLevel, logs.All()[0].Level)
}

func TestLogger_OnConfigChanged(t *testing.T) {
	logger, _ := newObserved(t, InfoLevel)

	require.NoError(t, logger.OnConfigChanged("telemetry", &LogCfg{Level: "debug"}, nil))
	assert.False(t, logger.Enabled(DebugLevel), "other config names are ignored")

	require.NoError(t, logger.OnConfigChanged("logger", &LogCfg{Level: "debug"}, &LogCfg{Level: "info"}))
	assert.True(t, logger.Enabled(DebugLevel))

	require.NoError(t, logger.OnConfigChanged("logger", &LogCfg{Level: "error"}, nil))
	assert.False(t, logger.Enabled(WarnLevel))
}

func TestLogCfg_Validate(t *testing.T) {
	assert.NoError(t, (&LogCfg{}).Validate())
	assert.NoError(t, (&LogCfg{Encoding: "console"}).Validate())
	assert.Error(t, (&LogCfg{Encoding: "xml"}).Validate())
	assert.Equal(t, "logger", (&LogCfg{}).GetName())
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iast.log")

	logger := NewLogger(&LogCfg{Path: path, Level: "info", Encoding: "json", Caller: true})
	logger.Info().Str("metric", "executed.source").Msg("flushed")
	logger.Debug().Msg("not written")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"msg":"flushed"`)
	assert.Contains(t, content, `"metric":"executed.source"`)
	assert.Contains(t, content, "logger_test.go")
	assert.NotContains(t, content, "not written")
}

func TestDefaultLogger(t *testing.T) {
	prev := Default()
	defer SetDefaultLogger(prev)

	logger, logs := newObserved(t, DebugLevel)
	SetDefaultLogger(logger)
	SetDefaultLogger(nil)

	Debug().Msg("d")
	Info().Msg("i")
	Warn().Msg("w")
	Error().Msg("e")

	require.Equal(t, 4, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[3].Level)
}

func TestInitializeWithConfigManager(t *testing.T) {
	prev := Default()
	defer SetDefaultLogger(prev)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logger.yaml"), []byte("level: warn\nencoding: console\n"), 0o644))

	cm := config.NewConfigManager()
	defer cm.Close()
	cm.SetBasePath(dir)

	require.NoError(t, InitializeWithConfigManager(cm))
	assert.False(t, Default().Enabled(InfoLevel))
	assert.True(t, Default().Enabled(WarnLevel))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "logger.yaml"), []byte("level: debug\nencoding: console\n"), 0o644))
	require.NoError(t, cm.Reload("logger"))
	assert.True(t, Default().Enabled(DebugLevel))

	assert.NoError(t, InitializeWithConfigManager(nil))
}

func TestLogger_Concurrent(t *testing.T) {
	logger, logs := newObserved(t, DebugLevel)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info().Int("worker", id).Int("n", j).Msg("tick")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, logs.Len())
	for _, entry := range logs.All() {
		assert.True(t, strings.HasPrefix(entry.Message, "tick"))
		assert.Len(t, entry.Context, 2)
	}
}

func BenchmarkLogEvent(b *testing.B) {
	logger := NewLoggerWithCore(zapcore.NewNopCore(), InfoLevel)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info().Str("metric", "executed.sink").Int("value", i).Msg("bench")
	}
}

func BenchmarkLogEvent_Disabled(b *testing.B) {
	logger := NewLoggerWithCore(zapcore.NewNopCore(), WarnLevel)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug().Str("metric", "executed.sink").Int("value", i).Msg("bench")
	}
}
