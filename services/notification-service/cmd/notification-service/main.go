package main

import (
	"context"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/tablebook/libs/config"
	"github.com/md-rashed-zaman/tablebook/libs/db"
	"github.com/md-rashed-zaman/tablebook/libs/events"
	"github.com/md-rashed-zaman/tablebook/libs/httpx"
	"github.com/md-rashed-zaman/tablebook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tablebook/libs/otel"
	"github.com/md-rashed-zaman/tablebook/libs/runtime"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/message"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	loc, err := config.Location("RESTAURANT_TIMEZONE", "Europe/Paris")
	if err != nil {
		panic(err)
	}
	maxAttempts, err := config.Int("DELIVERY_MAX_ATTEMPTS", 5)
	if err != nil {
		panic(err)
	}
	backoff, err := config.Duration("DELIVERY_BACKOFF", time.Minute)
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, 0)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", false) {
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	restaurant := config.String("RESTAURANT_NAME", "TableBook")
	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@tablebook.local"),
		restaurant,
	)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	worker := delivery.NewWorker(notificationsRepo, emailSender, smsSender,
		message.Renderer{Restaurant: restaurant, Location: loc}, logger,
		delivery.WorkerConfig{Interval: 2 * time.Second, BatchSize: 50, Backoff: backoff})
	go worker.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	if len(kafkax.SplitBrokers(brokers)) == 0 {
		logger.Warn("booking consumer disabled (no kafka brokers configured)")
	} else {
		reader := consumer.NewReader(consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", events.TopicBookingConfirmed),
		})
		eventConsumer := consumer.New(logger, reader, pool, inboxRepo,
			consumer.BookingConfirmed(notificationsRepo, maxAttempts, logger))
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
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
	logger.Info("http server stopped")
}
