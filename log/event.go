package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEvent accumulates fields for a single entry. A nil *LogEvent is valid and
// discards everything, so disabled levels cost one comparison.
type LogEvent struct {
	logger *ZapLogger
	level  Level
	fields []zap.Field
}

func newEvent(logger *ZapLogger) *LogEvent {
	return &LogEvent{
		logger: logger,
		fields: make([]zap.Field, 0, 8),
	}
}

// Reset clears the event for reuse.
func (e *LogEvent) Reset() {
	e.fields = e.fields[:0]
}

// Str adds a string field.
func (e *LogEvent) Str(key, val string) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.String(key, val))
	return e
}

// Int adds an int field.
func (e *LogEvent) Int(key string, val int) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Int(key, val))
	return e
}

// Int64 adds an int64 field.
func (e *LogEvent) Int64(key string, val int64) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Int64(key, val))
	return e
}

// Uint64 adds a uint64 field.
func (e *LogEvent) Uint64(key string, val uint64) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Uint64(key, val))
	return e
}

// Float64 adds a float64 field.
func (e *LogEvent) Float64(key string, val float64) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Float64(key, val))
	return e
}

// Bool adds a bool field.
func (e *LogEvent) Bool(key string, val bool) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Bool(key, val))
	return e
}

// Dur adds a duration field.
func (e *LogEvent) Dur(key string, val time.Duration) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Duration(key, val))
	return e
}

// Err adds the error under the "error" key. A nil error is skipped.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	e.fields = append(e.fields, zap.Error(err))
	return e
}

// Any adds a field of arbitrary type.
func (e *LogEvent) Any(key string, val any) *LogEvent {
	if e == nil {
		return e
	}
	e.fields = append(e.fields, zap.Any(key, val))
	return e
}

// Msg writes the entry and releases the event.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.logger.write(e, msg)
}

// Msgf writes a formatted entry and releases the event.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.logger.write(e, fmt.Sprintf(format, args...))
}

func (e *LogEvent) zapLevel() zapcore.Level {
	return e.level.zap()
}
