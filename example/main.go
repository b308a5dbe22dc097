package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aadithya-v/bifrost"
	"github.com/aadithya-v/bifrost/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bifrost example: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bifrost example: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}

	locker, err := openLocker(cfg.Lock, logger)
	if err != nil {
		backend.Close()
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessions, err := bifrost.New(ctx, bifrost.Config{
		TTL:           cfg.Session.TTL,
		Backend:       backend,
		Locker:        locker,
		SweepSchedule: cfg.Session.SweepSchedule,
		QueryTimeout:  cfg.Session.QueryTimeout,
		Logger:        logger,
		Registerer:    reg,
	})
	if err != nil {
		locker.Close()
		backend.Close()
		return err
	}
	defer sessions.Close()

	geo, err := openCountryLookup(cfg.GeoIP.Path)
	if err != nil {
		logger.Warn("country lookup disabled", zap.Error(err))
	}
	defer geo.Close()

	srv := &server{
		sessions:     sessions,
		geo:          geo,
		logger:       logger,
		ttl:          cfg.Session.TTL,
		secureCookie: cfg.Session.SecureCookie,
	}

	mux := srv.routes()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bifrost example server running",
			zap.String("addr", cfg.Addr),
			zap.String("backend", cfg.Backend.Driver),
			zap.String("lock", cfg.Lock.Driver),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg logConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func openBackend(ctx context.Context, cfg backendConfig) (store.Backend, error) {
	switch cfg.Driver {
	case "mysql":
		b, err := store.NewMySQLFromDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "postgres":
		b, err := store.NewPostgresFromDSN(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		b, err := store.NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func openLocker(cfg lockConfig, logger *zap.Logger) (store.Locker, error) {
	if cfg.Driver != "redis" {
		return store.NewKeyMutex(), nil
	}

	l, err := store.NewRedisLockerFromConfig(store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		LockTTL:  cfg.TTL,
		Logger:   logger.Named("lock"),
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}
