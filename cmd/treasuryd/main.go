package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundtreasury/config"
	"fundtreasury/gateway/middleware"
	"fundtreasury/gateway/routes"
	"fundtreasury/ledger"
	"fundtreasury/observability"
	"fundtreasury/observability/logging"
	telemetry "fundtreasury/observability/otel"
	"fundtreasury/storage"
	"fundtreasury/storage/audit"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "treasuryd.toml", "path to treasuryd configuration (TOML or YAML)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("treasuryd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Options{
		Service:    "treasuryd",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "treasuryd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,

		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval.Duration,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	genesis, err := cfg.Genesis()
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger db: %w", err)
	}
	defer db.Close()

	auditStore, err := audit.Open(cfg.Audit.DSN)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer func() { _ = auditStore.Close() }()

	led, err := ledger.Open(db, genesis, params,
		ledger.WithLogger(logger),
		ledger.WithMetrics(observability.Treasury()),
		ledger.WithSink(auditStore))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()
	if verified, err := led.VerifyJournal(); err != nil {
		return fmt.Errorf("journal verification failed after %d entries: %w", verified, err)
	}
	seq, head := led.Head()
	logger.Info("ledger ready", "sequence", seq, "head", head.Hex())

	idem, err := middleware.OpenIdempotencyStore(filepath.Join(cfg.DataDir, "idempotency.db"), cfg.Gateway.IdempotencyTTL.Duration, logger)
	if err != nil {
		return err
	}
	defer func() { _ = idem.Close() }()

	handler, err := routes.New(routes.Config{
		Ledger:      led,
		Audit:       auditStore,
		ExportDir:   cfg.Audit.ExportDir,
		MaxPageSize: cfg.Audit.MaxPageSize,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			HMACSecret: cfg.Auth.JWTSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.RateLimitKey: {RatePerSecond: cfg.RateLimit.RatePerSecond, Burst: cfg.RateLimit.Burst},
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.Gateway.LogRequests}, logger),
		Idempotency:   idem,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(handler, "treasuryd"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := listen(cfg.ListenAddress, cfg.Gateway.MaxConnections)
	if err != nil {
		return err
	}
	errs := make(chan error, 1)
	go func() {
		logger.Info("treasuryd listening",
			"address", listener.Addr().String(),
			"max_connections", cfg.Gateway.MaxConnections)
		errs <- httpServer.Serve(listener)
	}()

	select {
	case <-stopCtx.Done():
		logger.Info("shutdown requested")
		led.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
