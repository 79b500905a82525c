package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/config"
	"campusattend/internal/directory"
	"campusattend/internal/logging"
	"campusattend/internal/queue"
	"campusattend/internal/stats"
	"campusattend/internal/store"
)

// Worker consumes attendance.marked events and keeps the daily stats
// gauges current for the metrics scraper.
func main() {
	cfg := config.Load()
	log := logging.New(logging.Options{Level: cfg.LogLevel, Path: cfg.LogPath}).Named("worker")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" || cfg.DBDriver == "memory" {
		log.Fatal("worker needs a shared queue and database; the api refreshes stats in-process in memory mode")
	}

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	ledger := attendance.NewLedger(attendance.NewSQLRepository(db.Client), clockwork.NewRealClock(), cfg.Location(), log)
	refresher := stats.NewRefresher(
		stats.NewAggregator(directory.NewSQL(db.Client), ledger),
		queue.NewRedisQueue(redisClient.Client, ""),
		log,
	)

	// Gauges start from today's numbers rather than zero.
	if _, err := refresher.Refresh(ctx, ledger.Today()); err != nil {
		log.Warn("initial stats refresh failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	if err := refresher.Run(ctx); err != nil {
		log.Error("queue consume failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("worker stopped")
}
