package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fydai/cmd/internal/app"
	"fydai/config"
	"fydai/observability"
	"fydai/observability/logging"
	telemetry "fydai/observability/otel"
	"fydai/services/queryapi"
	"fydai/services/series"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fydaid: %v", err)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "fydai.yaml", "path to the fydaid config (yaml or toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.Service, cfg.Environment, logging.WithLevel(cfg.LogLevel))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Deployment: telemetry.Deployment{
			ChainID:  cfg.Chain.ChainID,
			Proxy:    cfg.Contracts.Proxy,
			Strategy: cfg.Strategy().String(),
			Series:   len(cfg.Series),
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(stopCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() { _ = services.Close() }()

	scheduler := series.NewScheduler(stopCtx, services.Aggregator, cfg.Refresh.Timeout.Duration, logger.With("component", "scheduler"))
	if err := scheduler.Register(cfg.Refresh.Schedule); err != nil {
		return err
	}
	go scheduler.RunNow()
	scheduler.Start()
	defer scheduler.Stop()

	apiOpts := []queryapi.Option{
		queryapi.WithLogger(logger.With("component", "queryapi")),
		queryapi.WithMetrics(observability.HTTP()),
		queryapi.WithActions(services.Pipeline.Tracker()),
		queryapi.WithEvents(services.Aggregator),
	}
	if services.Journal != nil {
		apiOpts = append(apiOpts, queryapi.WithHistory(services.Journal))
	}
	api := queryapi.New(services.Aggregator, queryapi.Config{
		RateLimit:      cfg.HTTP.RateLimit,
		Burst:          cfg.HTTP.Burst,
		RefreshTimeout: cfg.Refresh.Timeout.Duration,
		OriginPatterns: cfg.HTTP.WSOrigins,
		Auth: queryapi.AuthConfig{
			HMACSecret: cfg.AuthSecret(),
			Issuer:     cfg.HTTP.AuthIssuer,
			Audience:   cfg.HTTP.AuthAudience,
		},
	}, apiOpts...)
	if cfg.AuthSecret() == "" {
		logger.Warn("refresh endpoint is unauthenticated; set http.auth_secret_env to guard it")
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("fydaid listening", "addr", cfg.Listen, "series", len(cfg.Series), "strategy", cfg.Strategy().String())
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
