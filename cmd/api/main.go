package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/capture"
	"campusattend/internal/config"
	"campusattend/internal/device"
	"campusattend/internal/directory"
	"campusattend/internal/geofence"
	"campusattend/internal/httpapi"
	"campusattend/internal/logging"
	"campusattend/internal/notify"
	"campusattend/internal/queue"
	"campusattend/internal/seed"
	"campusattend/internal/stats"
	"campusattend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpapi.HealthCheck{}

	var (
		repo attendance.Repository
		dir  directory.Directory
	)
	if cfg.DBDriver == "memory" {
		log.Warn("using in-memory storage; records are lost on restart")
		repo = attendance.NewMemoryRepository()
		dir = directory.NewMemory(seed.Roster(cfg.YearPrefix)...)
	} else {
		db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		repo = attendance.NewSQLRepository(db.Client)
		dir = directory.NewSQL(db.Client)
		checks["db"] = db.Healthy
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, "")
		checks["redis"] = redisClient.Healthy
	}

	clock := clockwork.NewRealClock()
	ledger := attendance.NewLedger(repo, clock, cfg.Location(), log.Named("ledger"))
	aggregator := stats.NewAggregator(dir, ledger)

	// With the in-process queue nobody else can consume the events.
	if cfg.QueueBackend == "memory" {
		refresher := stats.NewRefresher(aggregator, q, log.Named("stats"))
		go func() { _ = refresher.Run(ctx) }()
	}

	agent := device.NewAgentClient(cfg.DeviceAgentURL, cfg.DeviceSkip)
	agent.SkipPosition = geofence.Coordinate{Latitude: cfg.CampusLat, Longitude: cfg.CampusLon}
	if !cfg.DeviceSkip {
		if err := agent.Health(ctx); err != nil {
			log.Warn("device agent not reachable", zap.Error(err))
		}
		checks["device_agent"] = func(ctx context.Context) bool { return agent.Health(ctx) == nil }
	}

	sessions := capture.NewRegistry(&capture.Pipeline{
		Camera:  agent,
		Locator: agent,
		Fence: geofence.Fence{
			Center:   geofence.Coordinate{Latitude: cfg.CampusLat, Longitude: cfg.CampusLon},
			RadiusKm: cfg.CampusRadiusKm,
		},
		Ledger:        ledger,
		Dispatcher:    notify.NewDispatcher(emailSender(cfg, log), notify.NewLogOpener(log.Named("messaging")), cfg.OperatorNumber, log.Named("notify")),
		Events:        q,
		Clock:         clock,
		Log:           log.Named("capture"),
		AlignDelay:    cfg.AlignDelay,
		LivenessDelay: cfg.LivenessDelay,
		GeoTimeout:    cfg.GeoTimeout,
	}, dir)

	router := httpapi.NewRouter(&httpapi.Server{
		Sessions:  sessions,
		Ledger:    ledger,
		Stats:     aggregator,
		Directory: dir,
		Signer:    auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Log:       log.Named("http"),
		Checks:    checks,
	}, httpapi.Options{CORSOrigins: cfg.CORSOrigins, RateLimitPerMin: cfg.RateLimitPerMin})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	// Waits for in-flight verifications and their notifications.
	sessions.Shutdown()

	log.Info("server exited")
	return nil
}

func emailSender(cfg config.App, log *zap.Logger) notify.EmailSender {
	switch cfg.EmailBackend {
	case "smtp":
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
			StartTLS: cfg.SMTPStartTLS,
		})
	case "sendgrid":
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom)
	default:
		return notify.NewConsoleSender(log.Named("email"))
	}
}
