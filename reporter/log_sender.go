package reporter

import (
	"context"

	"github.com/lcx/iast/log"
)

// LogSender writes a debug line per request.
type LogSender struct {
	logger log.Logger
}

// NewLogSender creates a sender logging on l, or on the default logger when l is nil.
func NewLogSender(l log.Logger) *LogSender {
	if l == nil {
		l = log.Default()
	}
	return &LogSender{logger: l}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, req *Request) error {
	var points int
	for _, series := range req.Payload.Series {
		points += len(series.Points)
	}
	s.logger.Debug().
		Uint64("seq_id", req.SeqID).
		Str("runtime_id", req.RuntimeID).
		Int("series", len(req.Payload.Series)).
		Int("points", points).
		Msg("telemetry request")
	return nil
}
