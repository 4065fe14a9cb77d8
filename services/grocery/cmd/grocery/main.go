package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"groceryapp/internal/metrics"
	"groceryapp/internal/ratelimit"
	"groceryapp/internal/util"
	"groceryapp/pkg/store"
	"groceryapp/services/grocery/internal/app"
	"groceryapp/services/grocery/internal/audit"
	"groceryapp/services/grocery/internal/authz"
	"groceryapp/services/grocery/internal/config"
	"groceryapp/services/grocery/internal/identity"
	"groceryapp/services/grocery/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		log.Fatalf("failed to load env files: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	durations, err := config.ParseDurations(cfg)
	if err != nil {
		log.Fatalf("failed to parse durations: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer dataStore.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimitPerMinute > 0 {
		opts := []ratelimit.Option{ratelimit.WithPrefix("grocery:ratelimit:api")}
		if cfg.RateLimitFailOpen {
			opts = append(opts, ratelimit.WithFailOpen())
		}
		limiter, err = ratelimit.NewFixedWindowLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, opts...)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	recorder := audit.NewRecorder(dataStore,
		audit.WithAlerter(audit.NewDenialAlerter(rdb, "grocery:alerts:denied", cfg.AlertThreshold(), durations.DenialAlertWindow)),
		audit.WithMetrics(m),
		audit.WithLogger(logger),
		audit.WithWriteTimeout(durations.AuditTimeout),
	)

	appCore, err := app.New(app.Config{Store: dataStore, Auditor: recorder, Metrics: m})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Resolver:       identity.NewResolver(identity.NewGitHubClient(cfg.IdentityBaseURL, durations.IdentityTimeout), dataStore),
		Gate:           authz.NewGate(authz.NewAuthorizer(dataStore, m), recorder),
		Auditor:        recorder,
		Limiter:        limiter,
		Metrics:        m,
		TrustedProxies: trusted,
		Ping:           dataStore.Ping,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grocery server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), durations.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Warn("audit writes still pending at shutdown", "err", err)
	}
}
