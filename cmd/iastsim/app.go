package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/lcx/iast/channel"
	"github.com/lcx/iast/config"
	"github.com/lcx/iast/log"
	"github.com/lcx/iast/plugin"
	"github.com/lcx/iast/reporter"
	"github.com/lcx/iast/telemetry"
)

// app is the wired pipeline.
type app struct {
	cm        config.ConfigManager
	logger    log.Logger
	promReg   *prometheus.Registry
	meters    *sdkmetric.MeterProvider
	otelRead  *sdkmetric.ManualReader
	tracers   *sdktrace.TracerProvider
	reporter  *reporter.Reporter
	telemetry *telemetry.Telemetry
	channels  *channel.Registry
	plugins   *plugin.Manager
}

func newApp(ctx context.Context) (*app, error) {
	cm := config.GetInstance()
	cm.SetBasePath(CLI.ConfigDir)
	cm.SetEnvironment(CLI.Env)

	if err := log.InitializeWithConfigManager(cm); err != nil {
		log.Warn().Err(err).Msg("logger config not loaded, using defaults")
	}
	a := &app{
		cm:       cm,
		logger:   log.Default(),
		promReg:  prometheus.NewRegistry(),
		otelRead: sdkmetric.NewManualReader(),
		tracers:  sdktrace.NewTracerProvider(),
		channels: channel.NewRegistry(channel.WithLogger(log.Default())),
	}
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.meters = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.otelRead))

	if err := a.initReporter(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.initTelemetry(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.initPlugins(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) initReporter() error {
	cfg := &reporter.Cfg{}
	if err := a.cm.LoadConfig(cfg.GetName(), cfg); err != nil {
		a.logger.Warn().Err(err).Msg("reporter config not loaded, using defaults")
		cfg = &reporter.Cfg{Prometheus: true, Log: true}
	}

	senders, err := reporter.BuildSenders(cfg, reporter.Backends{
		Registerer: a.promReg,
		Meter:      a.meters.Meter("github.com/lcx/iast"),
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("build senders: %w", err)
	}

	rep, err := reporter.New(cfg, reporter.WithSenders(senders...), reporter.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("create reporter: %w", err)
	}
	a.reporter = rep
	a.cm.AddChangeListener(rep)
	return nil
}

func (a *app) initTelemetry(ctx context.Context) error {
	a.telemetry = telemetry.New(
		telemetry.WithProviderRegistry(a.reporter),
		telemetry.WithLogger(a.logger),
	)

	cfg := &telemetry.Cfg{}
	var err error
	if CLI.Consul != "" {
		var src *config.ConsulSource
		src, err = config.NewConsulSource(CLI.Consul, CLI.Prefix)
		if err != nil {
			return err
		}
		err = a.cm.LoadRemoteConfig(ctx, cfg.GetName(), src, cfg)
	} else {
		err = a.cm.LoadConfig(cfg.GetName(), cfg)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("telemetry config not loaded, using defaults")
		cfg = telemetry.DefaultCfg()
	}

	a.telemetry.Configure(cfg)
	a.cm.AddChangeListener(a.telemetry)
	a.logger.Info().
		Bool("enabled", a.telemetry.IsEnabled()).
		Str("verbosity", a.telemetry.VerbosityName()).
		Str("missing_operation", a.telemetry.MissingOperationPolicy().String()).
		Msg("iast telemetry configured")
	return nil
}

func (a *app) initPlugins() error {
	m, err := plugin.InitPluginsWithConfigManager(plugin.Deps{
		Channels:  a.channels,
		Telemetry: a.telemetry,
		Logger:    a.logger,
	}, a.cm)
	if err != nil {
		return fmt.Errorf("init analyzers: %w", err)
	}
	m.ConfigureAll(true)
	a.plugins = m
	a.logger.Info().Any("analyzers", m.List()).Msg("iast analyzers ready")
	return nil
}

// finalFlushTimeout bounds the flush on Close independently of the caller's context.
const finalFlushTimeout = 5 * time.Second

// Close flushes what is left and releases every component.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.plugins != nil {
		errs = append(errs, a.plugins.DestroyAll())
	}
	if a.reporter != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
		if err := a.reporter.Flush(flushCtx); err != nil {
			errs = append(errs, fmt.Errorf("final flush: %w", err))
		}
		cancel()
	}
	if a.telemetry != nil {
		a.telemetry.Stop()
	}
	if a.reporter != nil {
		errs = append(errs, a.reporter.Close())
	}
	errs = append(errs,
		a.tracers.Shutdown(ctx),
		a.meters.Shutdown(ctx),
		a.cm.Close(),
	)
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
