// Package reporter periodically drains telemetry providers and ships the
// series to one or more backends.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"

	"github.com/lcx/iast/config"
	"github.com/lcx/iast/log"
	"github.com/lcx/iast/telemetry"
)

const heartbeatJobName = "iast-telemetry-heartbeat"

// Sender delivers one request to a backend.
type Sender interface {
	Name() string
	Send(ctx context.Context, req *Request) error
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithSenders adds senders.
func WithSenders(senders ...Sender) Option {
	return func(r *Reporter) {
		for _, s := range senders {
			if s != nil {
				r.senders = append(r.senders, s)
			}
		}
	}
}

// WithLogger sets the reporter logger.
func WithLogger(l log.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHost overrides the detected host description.
func WithHost(h Host) Option {
	return func(r *Reporter) {
		r.host = h
	}
}

// WithRuntimeID overrides the generated runtime id.
func WithRuntimeID(id string) Option {
	return func(r *Reporter) {
		r.runtimeID = id
	}
}

// WithClock overrides the clock stamping tracer_time.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// Reporter keeps the registered metric providers and drains them on a
// heartbeat. The heartbeat runs only while at least one provider is registered.
type Reporter struct {
	runtimeID string
	host      Host
	now       func() time.Time
	logger    log.Logger
	senders   []Sender
	seq       atomic.Uint64
	scheduler gocron.Scheduler

	mu        sync.Mutex
	cfg       Cfg
	app       Application
	limiter   ratelimit.Limiter
	providers map[string]telemetry.Provider
	pending   []telemetry.PayloadMetric // drained but not yet sent
	job       gocron.Job
	closed    bool
}

var (
	_ telemetry.ProviderRegistry  = (*Reporter)(nil)
	_ config.ConfigChangeListener = (*Reporter)(nil)
)

// New creates a reporter. A nil cfg uses the defaults.
func New(cfg *Cfg, opts ...Option) (*Reporter, error) {
	if cfg == nil {
		cfg = &Cfg{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	c := cfg.withDefaults()
	r := &Reporter{
		runtimeID: uuid.NewString(),
		host:      currentHost(),
		now:       time.Now,
		logger:    log.Default(),
		scheduler: s,
		cfg:       c,
		app:       applicationFromCfg(c),
		limiter:   newLimiter(c.ChunksPerSecond),
		providers: make(map[string]telemetry.Provider),
	}
	for _, opt := range opts {
		opt(r)
	}

	s.Start()
	return r, nil
}

func newLimiter(perSecond int) ratelimit.Limiter {
	if perSecond <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(perSecond)
}

// RuntimeID returns the id sent with every request.
func (r *Reporter) RuntimeID() string {
	return r.runtimeID
}

// RegisterProvider adds provider under name, replacing any provider of the
// same name. The first provider starts the heartbeat.
func (r *Reporter) RegisterProvider(name string, provider telemetry.Provider) {
	if provider == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.providers[name] = provider
	if r.job == nil {
		r.startHeartbeat()
	}
}

// UnregisterProvider removes the named provider. Removing the last one stops the heartbeat.
func (r *Reporter) UnregisterProvider(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
	if len(r.providers) == 0 {
		r.stopHeartbeat()
	}
}

// Running reports whether the heartbeat job is scheduled.
func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job != nil
}

// startHeartbeat must be called with r.mu held.
func (r *Reporter) startHeartbeat() {
	job, err := r.scheduler.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(r.heartbeat),
		gocron.WithName(heartbeatJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to schedule telemetry heartbeat")
		return
	}
	r.job = job
	r.logger.Debug().Dur("interval", r.cfg.Interval).Msg("telemetry heartbeat started")
}

// stopHeartbeat must be called with r.mu held.
func (r *Reporter) stopHeartbeat() {
	if r.job == nil {
		return
	}
	if err := r.scheduler.RemoveJob(r.job.ID()); err != nil {
		r.logger.Warn().Err(err).Msg("failed to remove telemetry heartbeat")
	}
	r.job = nil
	r.logger.Debug().Msg("telemetry heartbeat stopped")
}

func (r *Reporter) heartbeat() {
	r.mu.Lock()
	timeout := r.cfg.Interval
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("telemetry flush failed")
	}
}

// collect returns the series left over from an interrupted flush followed by
// the series of every provider, called in name order.
func (r *Reporter) collect() []telemetry.PayloadMetric {
	r.mu.Lock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	providers := make([]telemetry.Provider, len(names))
	for i, name := range names {
		providers[i] = r.providers[name]
	}
	series := r.pending
	r.pending = nil
	r.mu.Unlock()

	for i, p := range providers {
		series = append(series, r.drain(names[i], p)...)
	}
	return series
}

func (r *Reporter) drain(name string, p telemetry.Provider) (out []telemetry.PayloadMetric) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("provider", name).Any("panic", rec).Msg("telemetry provider panicked")
			out = nil
		}
	}()
	return p()
}

// Flush drains every provider and sends the series. Nothing is drained when
// ctx is already done. Large drains are split into several requests, each with
// its own sequence id, and every request goes to every sender. Chunks not
// attempted because ctx ended are kept for the next Flush.
func (r *Reporter) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	series := r.collect()
	if len(series) == 0 {
		return nil
	}

	r.mu.Lock()
	chunkSize := r.cfg.MaxSeriesPerRequest
	limiter := r.limiter
	app := r.app
	r.mu.Unlock()

	var errs []error
	for start := 0; start < len(series); start += chunkSize {
		if err := ctx.Err(); err != nil {
			r.requeue(series[start:])
			errs = append(errs, err)
			break
		}
		limiter.Take()

		end := min(start+chunkSize, len(series))
		req := r.newRequest(app, series[start:end])
		if err := r.send(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) requeue(series []telemetry.PayloadMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(append([]telemetry.PayloadMetric(nil), series...), r.pending...)
}

// Pending returns how many drained series wait for the next Flush.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reporter) newRequest(app Application, series []telemetry.PayloadMetric) *Request {
	return &Request{
		APIVersion:  APIVersion,
		RequestType: RequestType,
		TracerTime:  r.now().Unix(),
		RuntimeID:   r.runtimeID,
		SeqID:       r.seq.Add(1),
		Payload: Payload{
			Namespace: PayloadNamespace,
			Series:    series,
		},
		Application: app,
		Host:        r.host,
	}
}

func (r *Reporter) send(ctx context.Context, req *Request) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.senders {
		g.Go(func() error {
			if err := s.Send(gctx, req); err != nil {
				r.logger.Warn().Err(err).Str("sender", s.Name()).Uint64("seq_id", req.SeqID).Msg("telemetry send failed")
				return fmt.Errorf("sender %s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// OnConfigChanged applies a reloaded "reporter" configuration. Senders are
// fixed at construction; interval, pacing and chunking follow the new config.
func (r *Reporter) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "reporter" {
		return nil
	}
	cfg, ok := newConfig.(*Cfg)
	if !ok {
		return fmt.Errorf("reporter config has unexpected type %T", newConfig)
	}
	c := cfg.withDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	intervalChanged := c.Interval != r.cfg.Interval
	r.cfg = c
	r.app = applicationFromCfg(c)
	r.limiter = newLimiter(c.ChunksPerSecond)

	if intervalChanged && r.job != nil {
		r.stopHeartbeat()
		r.startHeartbeat()
	}
	return nil
}

// Close stops the heartbeat, forgets every provider and closes the senders
// that hold connections.
func (r *Reporter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.stopHeartbeat()
	r.providers = make(map[string]telemetry.Provider)
	r.mu.Unlock()

	var errs []error
	if err := r.scheduler.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	for _, s := range r.senders {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sender %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
