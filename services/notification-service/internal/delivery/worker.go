package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/tablebook/libs/otel"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/message"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/notification"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/sms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchDue(ctx context.Context, limit int) ([]notification.Notification, error)
	MarkSent(ctx context.Context, id int64, providerID string) error
	MarkFailed(ctx context.Context, id int64, attempts int, maxAttempts int, nextAttemptAt time.Time, lastError string) error
}

type Worker struct {
	store     Store
	email     email.Sender
	sms       sms.Sender
	renderer  message.Renderer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(store Store, emailSender email.Sender, smsSender sms.Sender, renderer message.Renderer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		store:     store,
		email:     emailSender,
		sms:       smsSender,
		renderer:  renderer,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("delivery batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch sends every due notification once and returns how many were attempted.
// Rows stay locked for the duration of the batch so concurrent workers skip them.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	attempted := 0
	err := w.store.WithTx(ctx, func(ctx context.Context) error {
		due, err := w.store.FetchDue(ctx, w.batchSize)
		if err != nil {
			return err
		}
		for _, n := range due {
			attempted++
			nCtx := otelx.ContextWithTraceContext(ctx, n.Traceparent, n.Tracestate)
			providerID, sendErr := w.deliver(nCtx, n)
			if sendErr == nil {
				if err := w.store.MarkSent(ctx, n.ID, providerID); err != nil {
					return err
				}
				w.logger.Info("notification sent", "notification_id", n.ID, "booking_id", n.BookingID, "channel", string(n.Channel))
				continue
			}

			attempts := n.Attempts + 1
			next := notification.NextAttempt(w.now().UTC(), attempts, w.backoff)
			if err := w.store.MarkFailed(ctx, n.ID, attempts, n.MaxAttempts, next, sendErr.Error()); err != nil {
				return err
			}
			if attempts >= n.MaxAttempts {
				w.logger.Error("notification failed permanently",
					"notification_id", n.ID, "booking_id", n.BookingID, "channel", string(n.Channel), "err", sendErr)
			} else {
				w.logger.Warn("notification attempt failed",
					"notification_id", n.ID, "attempts", attempts, "next_attempt_at", next, "err", sendErr)
			}
		}
		return nil
	})
	return attempted, err
}

func (w *Worker) deliver(ctx context.Context, n notification.Notification) (string, error) {
	ctx, span := otel.Tracer("notification-service/delivery").Start(ctx, "notification.deliver",
		trace.WithAttributes(
			attribute.String("notification.channel", string(n.Channel)),
			attribute.String("booking.id", n.BookingID),
		),
	)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch n.Channel {
	case notification.ChannelEmail:
		msg, err := w.renderer.Email(n.Booking)
		if err != nil {
			return "", err
		}
		if err := w.email.Send(sendCtx, n.Recipient, msg.Subject, msg.Body); err != nil {
			span.RecordError(err)
			return "", err
		}
		return w.email.ProviderID(), nil
	case notification.ChannelSMS:
		msg, err := w.renderer.SMS(n.Booking)
		if err != nil {
			return "", err
		}
		if err := w.sms.Send(sendCtx, n.Recipient, msg.Body); err != nil {
			span.RecordError(err)
			return "", err
		}
		return w.sms.ProviderID(), nil
	default:
		return "", fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}
