package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lcx/iast/analyzer"
	"github.com/lcx/iast/codec"
	"github.com/lcx/iast/plugin"
	"github.com/lcx/iast/tracing"
)

var injections = []string{
	"1 OR 1=1",
	"'; DROP TABLE users; --",
	"admin'--",
}

// Run executes the simulated workload.
func (c *SimulateCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	var srv *http.Server
	if c.Listen != "" {
		srv = c.serveMetrics(a)
		defer srv.Close()
	}

	for _, module := range []string{"http", "string", "pg", "mysql2"} {
		a.channels.NotifyActivation(ctx, module)
	}

	start := time.Now()
	if err := c.runWorkload(ctx, a); err != nil {
		return err
	}
	a.logger.Info().Int("requests", c.Requests).Dur("elapsed", time.Since(start)).Msg("workload finished")

	// with format none the reporter flushes the drain on Close
	if c.Format != "none" {
		if err := c.printDrain(a); err != nil {
			return err
		}
	}
	c.logFindings(a)
	c.logOTel(ctx, a)

	if srv != nil && c.Linger > 0 {
		a.logger.Info().Str("addr", c.Listen).Dur("linger", c.Linger).Msg("serving metrics")
		select {
		case <-ctx.Done():
		case <-time.After(c.Linger):
		}
	}
	return nil
}

func (c *SimulateCmd) serveMetrics(a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Addr: c.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func (c *SimulateCmd) runWorkload(ctx context.Context, a *app) error {
	tracer := a.tracers.Tracer("github.com/lcx/iast/cmd/iastsim")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))
	for i := 0; i < c.Requests; i++ {
		if gctx.Err() != nil {
			break
		}
		tainted := rand.Float64() < c.TaintedRatio
		g.Go(func() error {
			simulateRequest(gctx, a, tracer, i, tainted)
			return nil
		})
	}
	return g.Wait()
}

func simulateRequest(ctx context.Context, a *app, tracer trace.Tracer, i int, tainted bool) {
	// incoming requests carry a remote parent
	headers := http.Header{}
	parentCtx, parent := tracer.Start(ctx, "client")
	tracing.InjectHeaders(parentCtx, headers)
	parent.End()

	ctx, req := tracing.StartRequest(tracing.ExtractHeaders(ctx, headers), tracer, a.telemetry, "GET /users")
	defer req.End()
	ctx = analyzer.WithTaint(ctx)

	id := fmt.Sprint(i)
	if tainted {
		id = injections[i%len(injections)]
	}
	a.channels.Publish(ctx, analyzer.ChannelHTTPRequest, analyzer.HTTPRequest{
		Params: map[string]string{"id": id, "trace": uuid.NewString()},
	})

	prefix := "SELECT * FROM users WHERE id = "
	sql := prefix + id
	a.channels.Publish(ctx, analyzer.ChannelStringConcat, analyzer.Concat{Parts: []string{prefix, id}, Result: sql})

	queryChannel := analyzer.ChannelPGQuery
	if i%2 == 1 {
		queryChannel = analyzer.ChannelMySQLQuery
	}
	a.channels.Publish(ctx, queryChannel, analyzer.Query{SQL: sql})
}

func (c *SimulateCmd) printDrain(a *app) error {
	var (
		out []byte
		err error
	)
	if c.Format == "default" {
		out, err = codec.Encode(a.telemetry.Drain())
	} else {
		var cd codec.Codec
		if cd, err = codec.Get(c.Format); err != nil {
			return err
		}
		out, err = cd.Marshal(a.telemetry.Drain())
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func (c *SimulateCmd) logFindings(a *app) {
	an, ok := a.plugins.Get(plugin.TypeSink, "sql_injection")
	if !ok {
		return
	}
	if sqli, ok := an.(*analyzer.SQLInjection); ok {
		a.logger.Info().Int("findings", len(sqli.Findings())).Msg("sql injection sink")
	}
}

func (c *SimulateCmd) logOTel(ctx context.Context, a *app) {
	var rm metricdata.ResourceMetrics
	if err := a.otelRead.Collect(ctx, &rm); err != nil {
		a.logger.Warn().Err(err).Msg("collect otel metrics failed")
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[float64])
			if !ok {
				continue
			}
			var total float64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			a.logger.Info().Str("metric", m.Name).Float64("total", total).Msg("otel counter")
		}
	}
}
