package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hperssn/cadence/internal/config"
	"github.com/hperssn/cadence/internal/domain"
	httpapi "github.com/hperssn/cadence/internal/http"
	"github.com/hperssn/cadence/internal/stats"
	"github.com/hperssn/cadence/internal/storage"
	"github.com/hperssn/cadence/internal/tracker"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		glog.Infof("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		glog.Exitf("failed to load configuration: %v", err)
	}

	repo, err := storage.Open(storage.Options{
		Driver:      cfg.StorageDriver,
		DataFile:    cfg.DataFile,
		SQLitePath:  cfg.SQLitePath,
		PostgresURL: cfg.PostgresURL,
		BadgerDir:   cfg.BadgerDir,
	})
	if err != nil {
		glog.Exitf("failed to open %s store: %v", cfg.StorageDriver, err)
	}
	defer repo.Close()
	glog.Infof("using %s session store", cfg.StorageDriver)

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer cache.Close()
		if err := cache.Ping(ctx).Err(); err != nil {
			glog.Warningf("redis at %s unreachable, summaries will be recomputed: %v", cfg.RedisAddr, err)
		}
	}
	statsSvc := stats.NewService(repo, cache, cfg.StatsCacheTTL)

	manager := tracker.NewManager(
		invalidatingSaver{repo: repo, stats: statsSvc},
		cfg.TrackerIdleTimeout,
		tracker.WithSaveTimeout(cfg.SaveTimeout),
	)
	defer manager.Close()

	router := httpapi.NewRouter(
		httpapi.NewSessionHandler(repo, statsSvc),
		httpapi.NewTrackerHandler(manager),
		cfg.AllowedOrigins(),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	glog.Infof("cadence api listening on %s", cfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		glog.Errorf("server error: %v", err)
	}
}

// invalidatingSaver drops the cached summary whenever a tracker saves a
// session.
type invalidatingSaver struct {
	repo  storage.Repository
	stats *stats.Service
}

func (s invalidatingSaver) Create(ctx context.Context, in domain.SessionInput) (domain.SessionRecord, error) {
	rec, err := s.repo.Create(ctx, in)
	if err == nil {
		s.stats.Invalidate(ctx)
	}
	return rec, err
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
