package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/md-rashed-zaman/tablebook/libs/events"
	"github.com/md-rashed-zaman/tablebook/libs/kafkax"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/notification"
	"github.com/segmentio/kafka-go"
)

type NotificationWriter interface {
	Insert(ctx context.Context, n notification.Notification) error
}

// BookingConfirmed queues one pending notification per channel for each booking.confirmed event.
// Malformed payloads are logged and dropped.
func BookingConfirmed(store NotificationWriter, maxAttempts int, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload events.BookingConfirmed
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if !payload.Valid() {
			logger.Error("missing booking fields", "booking_id", payload.BookingID)
			return nil
		}

		eventID := kafkax.ExtractEventMeta(msg).EventID
		for _, n := range notification.Expand(eventID, payload, maxAttempts) {
			if err := store.Insert(ctx, n); err != nil {
				return err
			}
		}
		logger.Info("booking confirmation queued", "booking_id", payload.BookingID, "event_id", eventID)
		return nil
	}
}
