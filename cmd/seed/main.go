package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/config"
	"campusattend/internal/directory"
	"campusattend/internal/logging"
	"campusattend/internal/seed"
	"campusattend/internal/store"
)

// Seed loads the demo roster and backfills past attendance. Running it
// twice leaves existing rows untouched.
func main() {
	cfg := config.Load()
	log := logging.New(logging.Options{Level: cfg.LogLevel}).Named("seed")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.DBDriver == "memory" {
		log.Fatal("nothing to seed: the in-memory api seeds its own roster")
	}

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	dir := directory.NewSQL(db.Client)
	users := seed.Roster(cfg.YearPrefix)
	for _, u := range users {
		if err := dir.Upsert(ctx, u); err != nil {
			log.Fatal("upsert user failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}

	ledger := attendance.NewLedger(attendance.NewSQLRepository(db.Client), clockwork.NewRealClock(), cfg.Location(), log)
	n, err := seed.Backfill(ctx, ledger, users, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.Fatal("backfill failed", zap.Error(err))
	}
	log.Info("seed complete", zap.Int("users", len(users)), zap.Int("records", n))
}
