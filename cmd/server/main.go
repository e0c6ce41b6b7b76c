package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"deployassist/internal/analysis"
	analysismetrics "deployassist/internal/analysis/metrics"
	"deployassist/internal/ghost"
	"deployassist/internal/platform/config"
	"deployassist/internal/platform/httpserver"
	"deployassist/internal/platform/logger"
	platformredis "deployassist/internal/platform/redis"
	"deployassist/internal/provisioning"
	"deployassist/internal/rollup"
	"deployassist/internal/snapshot"
	httptransport "deployassist/internal/transport/http"
	"deployassist/pkg/platform/middleware/auth"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	source, err := buildSource(cfg)
	if err != nil {
		log.Error("source setup failed", "error", err)
		os.Exit(1)
	}

	snapshots, ghosts, db, err := buildStores(cfg, log)
	if err != nil {
		log.Error("store setup failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	var captureOpts []snapshot.Option
	captureOpts = append(captureOpts, snapshot.WithLogger(log))
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := snapshot.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka publisher setup failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		captureOpts = append(captureOpts, snapshot.WithPublisher(publisher))
	}

	capture, err := snapshot.New(snapshots, captureOpts...)
	if err != nil {
		log.Error("capture service setup failed", "error", err)
		os.Exit(1)
	}

	analysisSvc, err := analysis.New(source, capture, snapshots, ghosts,
		analysis.Config{
			Window:      cfg.LookaheadWindow,
			Workers:     cfg.WorkerLimit,
			SoftTimeout: cfg.SoftTimeout,
			PageSize:    cfg.SourcePageSize,
			MatchPolicy: rollup.MatchPolicy(cfg.ExtensionMatch),
		},
		analysis.WithLogger(log),
		analysis.WithMetrics(analysismetrics.New()),
	)
	if err != nil {
		log.Error("analysis service setup failed", "error", err)
		os.Exit(1)
	}

	reviewSvc, err := ghost.NewService(ghosts, ghost.WithLogger(log))
	if err != nil {
		log.Error("review service setup failed", "error", err)
		os.Exit(1)
	}

	validator, err := auth.NewHMACValidator([]byte(cfg.JWTSigningKey))
	if err != nil {
		log.Error("auth setup failed", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(
		httptransport.New(analysisSvc, reviewSvc, capture, log),
		validator,
	)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := analysis.NewScheduler(analysisSvc, cfg.Interval, analysis.WithSchedulerLogger(log))
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped", "error", err)
		}
	}()

	go func() {
		log.Info("starting deployassist", "addr", cfg.Addr, "interval", cfg.Interval.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-schedulerDone
}

func buildSource(cfg config.Config) (provisioning.RecordSource, error) {
	if cfg.SourceURL == "" {
		// Development mode: empty source, records arrive only via seeding.
		return provisioning.NewInMemorySource(), nil
	}
	return provisioning.NewHTTPSource(cfg.SourceURL, nil)
}

// buildStores picks postgres when a DSN is configured and falls back to the
// in-memory stores otherwise. The redis cache layers on top when configured.
func buildStores(cfg config.Config, log *slog.Logger) (snapshot.Store, ghost.Store, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return snapshot.NewInMemoryStore(), ghost.NewInMemoryStore(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	var snapshots snapshot.Store = snapshot.NewPostgres(db)

	cache, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	if cache != nil {
		snapshots = snapshot.NewCachedStore(snapshots, cache.Client, 15*time.Minute, log)
	}

	return snapshots, ghost.NewPostgres(db), db, nil
}
