package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/tablebook/libs/auth"
	"github.com/md-rashed-zaman/tablebook/libs/config"
	"github.com/md-rashed-zaman/tablebook/libs/db"
	"github.com/md-rashed-zaman/tablebook/libs/httpx"
	"github.com/md-rashed-zaman/tablebook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tablebook/libs/otel"
	"github.com/md-rashed-zaman/tablebook/libs/runtime"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/booking"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/clock"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/handlers"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/notify"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/storage"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "reservation-service")
	logger := runtime.NewLogger(service)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, cfg.Policy.Location)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// The commit path hands off to this and returns; the outbox row is the durable record.
	notifier := notify.NewDetached(notify.NewOutboxDispatcher(outboxRepo), cfg.NotifyTimeout, logger)

	clk := clock.NewSystem()
	availabilityService := availability.NewService(scheduleRepo, bookingRepo, clk, cfg.Policy)
	committer := booking.NewCommitter(scheduleRepo, bookingRepo, notifier, clk, cfg.Policy, logger)
	bookingHandler := handlers.NewBookingHandler(availabilityService, committer, logger)
	adminHandler := handlers.NewAdminHandler(scheduleRepo, bookingRepo, clk, cfg.Policy.Location, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Optional: true, Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}

	var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:bookings")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddr)
	} else {
		logger.Info("rate limiting enabled (memory)", "per_minute", cfg.RateLimitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/availability", bookingHandler.Availability)
	mux.Handle("/api/v1/bookings", httpx.Chain(http.HandlerFunc(bookingHandler.Create),
		httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
	))

	if cfg.AdminSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes will reject every request")
	}
	admin := auth.RequireRole(cfg.AdminSecret, "admin", "manager")
	mux.Handle("/api/v1/admin/windows", admin(http.HandlerFunc(adminHandler.Windows)))
	mux.Handle("/api/v1/admin/windows/deactivate", admin(http.HandlerFunc(adminHandler.DeactivateWindow)))
	mux.Handle("/api/v1/admin/closures", admin(http.HandlerFunc(adminHandler.Closures)))
	mux.Handle("/api/v1/admin/closures/delete", admin(http.HandlerFunc(adminHandler.DeleteClosure)))
	mux.Handle("/api/v1/admin/bookings", admin(http.HandlerFunc(adminHandler.Bookings)))
	mux.Handle("/api/v1/admin/bookings/status", admin(http.HandlerFunc(adminHandler.UpdateBookingStatus)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(cfg.CORSOrigins)),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reservation")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", cfg.Policy.Location.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	if err := notifier.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notifications abandoned", "err", err)
	}
	logger.Info("http server stopped")
}
