package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lcx/iast/log"
	"github.com/lcx/iast/telemetry"
)

type recordingSender struct {
	name string
	err  error

	mu   sync.Mutex
	reqs []*Request
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.err
}

func (s *recordingSender) requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.reqs...)
}

func series(n int) []telemetry.PayloadMetric {
	out := make([]telemetry.PayloadMetric, n)
	for i := range out {
		out[i] = telemetry.PayloadMetric{
			Metric:    "executed.sink",
			Type:      "count",
			Points:    []telemetry.PayloadPoint{{Timestamp: 1700000000000, Value: float64(i + 1)}},
			Tag:       fmt.Sprintf("vulnerability_type:V%d", i),
			Namespace: telemetry.Namespace,
		}
	}
	return out
}

func newTestReporter(t *testing.T, cfg *Cfg, opts ...Option) *Reporter {
	t.Helper()
	opts = append([]Option{
		WithHost(Host{Hostname: "test-host", OS: "linux", Architecture: "amd64"}),
		WithRuntimeID("runtime-1"),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	}, opts...)
	r, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCfg_Validate(t *testing.T) {
	assert.NoError(t, (&Cfg{}).Validate())
	assert.Error(t, (&Cfg{Interval: -time.Second}).Validate())
	assert.Error(t, (&Cfg{MaxSeriesPerRequest: -1}).Validate())
	assert.Error(t, (&Cfg{ChunksPerSecond: -1}).Validate())
	assert.Error(t, (&Cfg{Codec: "msgpack"}).Validate())
	assert.NoError(t, (&Cfg{Codec: "proto"}).Validate())
	assert.Equal(t, "reporter", (&Cfg{}).GetName())

	c := Cfg{}.withDefaults()
	assert.Equal(t, DefaultInterval, c.Interval)
	assert.Equal(t, DefaultMaxSeriesPerRequest, c.MaxSeriesPerRequest)
	assert.Equal(t, DefaultNATSSubject, c.NATSSubject)
	assert.Equal(t, "json", c.Codec)

	_, err := New(&Cfg{Interval: -1})
	assert.Error(t, err)
}

func TestReporter_FlushBuildsEnvelope(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, &Cfg{Service: "shop", Env: "prod", Version: "1.2.3"}, WithSenders(sender))

	r.RegisterProvider("iast", func() []telemetry.PayloadMetric { return series(2) })
	require.NoError(t, r.Flush(context.Background()))

	reqs := sender.requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "v1", req.APIVersion)
	assert.Equal(t, "generate-metrics", req.RequestType)
	assert.Equal(t, int64(1700000000), req.TracerTime)
	assert.Equal(t, "runtime-1", req.RuntimeID)
	assert.Equal(t, uint64(1), req.SeqID)
	assert.Equal(t, "tracers", req.Payload.Namespace)
	assert.Equal(t, series(2), req.Payload.Series)
	assert.Equal(t, "shop", req.Application.ServiceName)
	assert.Equal(t, "prod", req.Application.Env)
	assert.Equal(t, "1.2.3", req.Application.ServiceVersion)
	assert.Equal(t, "go", req.Application.LanguageName)
	assert.Equal(t, "test-host", req.Host.Hostname)

	require.NoError(t, r.Flush(context.Background()))
	reqs = sender.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, uint64(2), reqs[1].SeqID)
}

func TestReporter_FlushSkipsEmpty(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, nil, WithSenders(sender))

	require.NoError(t, r.Flush(context.Background()))
	r.RegisterProvider("empty", func() []telemetry.PayloadMetric { return nil })
	require.NoError(t, r.Flush(context.Background()))

	assert.Empty(t, sender.requests())
}

func TestReporter_FlushChunks(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, &Cfg{MaxSeriesPerRequest: 2, ChunksPerSecond: 1000}, WithSenders(sender))

	r.RegisterProvider("a", func() []telemetry.PayloadMetric { return series(3) })
	r.RegisterProvider("b", func() []telemetry.PayloadMetric { return series(2) })
	require.NoError(t, r.Flush(context.Background()))

	reqs := sender.requests()
	require.Len(t, reqs, 3)
	var total int
	for i, req := range reqs {
		assert.Equal(t, uint64(i+1), req.SeqID)
		assert.LessOrEqual(t, len(req.Payload.Series), 2)
		total += len(req.Payload.Series)
	}
	assert.Equal(t, 5, total)
}

func TestReporter_SenderFailureIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	failing := &recordingSender{name: "down", err: errors.New("connection refused")}
	ok := &recordingSender{name: "up"}
	r := newTestReporter(t, nil,
		WithSenders(failing, ok),
		WithLogger(log.NewLoggerWithCore(core, log.DebugLevel)))

	r.RegisterProvider("iast", func() []telemetry.PayloadMetric { return series(1) })
	err := r.Flush(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, failing.requests(), 1)
	assert.Len(t, ok.requests(), 1)
	assert.Equal(t, 1, logs.FilterMessage("telemetry send failed").Len())
}

func TestReporter_ProviderPanicIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, nil,
		WithSenders(sender),
		WithLogger(log.NewLoggerWithCore(core, log.DebugLevel)))

	r.RegisterProvider("bad", func() []telemetry.PayloadMetric { panic("boom") })
	r.RegisterProvider("good", func() []telemetry.PayloadMetric { return series(1) })

	require.NotPanics(t, func() { _ = r.Flush(context.Background()) })
	require.Len(t, sender.requests(), 1)
	assert.Len(t, sender.requests()[0].Payload.Series, 1)
	assert.Equal(t, 1, logs.FilterMessage("telemetry provider panicked").Len())
}

func TestReporter_FlushCanceledDrainsNothing(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, nil, WithSenders(sender))

	var drained int
	r.RegisterProvider("iast", func() []telemetry.PayloadMetric {
		drained++
		return series(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Flush(ctx), context.Canceled)
	assert.Equal(t, 0, drained)
	assert.Empty(t, sender.requests())

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 1, drained)
	require.Len(t, sender.requests(), 1)
	assert.Len(t, sender.requests()[0].Payload.Series, 1)
}

// cancelingSender cancels the flush context after its first request.
type cancelingSender struct {
	recordingSender
	cancel context.CancelFunc
}

func (s *cancelingSender) Send(ctx context.Context, req *Request) error {
	err := s.recordingSender.Send(ctx, req)
	s.cancel()
	return err
}

func TestReporter_FlushInterruptedKeepsRemainingChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &cancelingSender{recordingSender: recordingSender{name: "rec"}, cancel: cancel}
	r := newTestReporter(t, &Cfg{MaxSeriesPerRequest: 2, ChunksPerSecond: 1000}, WithSenders(sender))
	r.RegisterProvider("iast", func() []telemetry.PayloadMetric { return series(5) })

	assert.ErrorIs(t, r.Flush(ctx), context.Canceled)
	require.Len(t, sender.requests(), 1)
	assert.Equal(t, 3, r.Pending())

	r.UnregisterProvider("iast")
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 0, r.Pending())

	var total int
	for _, req := range sender.requests() {
		total += len(req.Payload.Series)
	}
	assert.Equal(t, 5, total)
}

func TestReporter_HeartbeatLifecycle(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, &Cfg{Interval: 20 * time.Millisecond}, WithSenders(sender))

	assert.False(t, r.Running())
	r.RegisterProvider("nil", nil)
	assert.False(t, r.Running())

	r.RegisterProvider("iast", func() []telemetry.PayloadMetric { return series(1) })
	r.RegisterProvider("other", func() []telemetry.PayloadMetric { return nil })
	assert.True(t, r.Running())

	assert.Eventually(t, func() bool {
		return len(sender.requests()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	r.UnregisterProvider("iast")
	assert.True(t, r.Running(), "one provider left")
	r.UnregisterProvider("other")
	assert.False(t, r.Running())
	r.UnregisterProvider("missing")

	require.NoError(t, r.Close())
	r.RegisterProvider("late", func() []telemetry.PayloadMetric { return series(1) })
	assert.False(t, r.Running(), "closed reporters do not restart")
	assert.NoError(t, r.Close())
}

func TestReporter_TelemetryRegistersDrain(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	r := newTestReporter(t, nil, WithSenders(sender))

	tel := telemetry.New(telemetry.WithProviderRegistry(r))
	tel.Configure(&telemetry.Cfg{Enabled: true})
	assert.True(t, r.Running())

	tel.Increase(context.Background(), telemetry.InstrumentedSink, "SQL_INJECTION")
	require.NoError(t, r.Flush(context.Background()))

	reqs := sender.requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Payload.Series, 1)
	assert.Equal(t, "instrumented.sink", reqs[0].Payload.Series[0].Metric)
	assert.Equal(t, "vulnerability_type:SQL_INJECTION", reqs[0].Payload.Series[0].Tag)

	tel.Stop()
	assert.False(t, r.Running())
}

func TestReporter_OnConfigChanged(t *testing.T) {
	r := newTestReporter(t, &Cfg{Interval: time.Hour})
	r.RegisterProvider("iast", func() []telemetry.PayloadMetric { return nil })

	require.NoError(t, r.OnConfigChanged("reporter", &Cfg{Interval: time.Minute, Service: "renamed", MaxSeriesPerRequest: 5}, nil))
	assert.True(t, r.Running())

	r.mu.Lock()
	assert.Equal(t, time.Minute, r.cfg.Interval)
	assert.Equal(t, 5, r.cfg.MaxSeriesPerRequest)
	assert.Equal(t, "renamed", r.app.ServiceName)
	r.mu.Unlock()

	assert.NoError(t, r.OnConfigChanged("logger", nil, nil))
	assert.Error(t, r.OnConfigChanged("reporter", &telemetry.Cfg{}, nil))
}

func TestReporter_RuntimeIDIsGenerated(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(nil)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEmpty(t, a.RuntimeID())
	assert.NotEqual(t, a.RuntimeID(), b.RuntimeID())
}
