package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/capture"
	"github.com/PipeOpsHQ/livehook/internal/config"
	"github.com/PipeOpsHQ/livehook/internal/geo"
	"github.com/PipeOpsHQ/livehook/internal/handler"
	"github.com/PipeOpsHQ/livehook/internal/hub"
	"github.com/PipeOpsHQ/livehook/internal/logger"
	"github.com/PipeOpsHQ/livehook/internal/metrics"
	"github.com/PipeOpsHQ/livehook/internal/netx"
	"github.com/PipeOpsHQ/livehook/internal/retention"
	"github.com/PipeOpsHQ/livehook/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("LIVEHOOK_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "livehook:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	s, err := store.NewSQLiteStore(cfg.Database.Path, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	trusted, err := netx.ParseCIDRSet(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	cache, closeCache := newGeoCache(cfg.Geo, log)
	defer closeCache()
	locator := geo.NewLocator(cfg.Geo, cache, log.Named("geo"), m)

	hb := hub.New(hub.Options{
		Heartbeat: cfg.Hub.HeartbeatInterval,
		QueueSize: cfg.Hub.QueueSize,
		Logger:    log.Named("hub"),
		Metrics:   m,
	})

	pipeline := capture.New(capture.Options{
		Configs:   s,
		Requests:  s,
		Locator:   locator,
		Publisher: hb,
		MaxDelay:  cfg.Capture.MaxDelay,
		Logger:    log.Named("capture"),
		Metrics:   m,
	})

	h := handler.NewHandler(handler.Options{
		Store:        s,
		Hub:          hb,
		Pipeline:     pipeline,
		IPs:          netx.IPResolver{Trusted: trusted},
		Logger:       log.Named("http"),
		Metrics:      m,
		Gatherer:     reg,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		DefaultLimit: cfg.API.DefaultLimit,
		MaxLimit:     cfg.API.MaxLimit,
		PublicURL:    cfg.ReplayURL(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cleanup worker
	sweeper := &retention.Worker{
		Store:    s,
		MaxAge:   cfg.Retention.MaxAge,
		Interval: cfg.Retention.CleanupInterval,
		Logger:   log.Named("retention"),
		Metrics:  m,
	}
	go sweeper.Run(ctx)

	// No WriteTimeout: event streams and delayed responses are long-lived.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		hb.Close()
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	// Streams never finish on their own; release them first so Shutdown can drain.
	hb.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func newGeoCache(cfg config.GeoConfig, log *zap.Logger) (geo.Cache, func()) {
	switch strings.ToLower(cfg.CacheBackend) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, using in-memory geo cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			rdb.Close()
			return geo.NewMemoryCache(cfg.CacheTTL), func() {}
		}
		log.Info("geo cache backed by redis", zap.String("addr", cfg.Redis.Addr))
		return geo.NewRedisCache(rdb, cfg.CacheTTL, log.Named("geo")), func() { rdb.Close() }
	case "none":
		return nil, func() {}
	default:
		return geo.NewMemoryCache(cfg.CacheTTL), func() {}
	}
}
