package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/events"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/outbox"
)

type OutboxWriter interface {
	Insert(ctx context.Context, evt outbox.Event) (string, error)
}

// OutboxDispatcher records a booking.confirmed.v1 event; delivery happens downstream.
type OutboxDispatcher struct {
	outbox OutboxWriter
}

func NewOutboxDispatcher(w OutboxWriter) *OutboxDispatcher {
	return &OutboxDispatcher{outbox: w}
}

func (d *OutboxDispatcher) Notify(ctx context.Context, b model.Booking) error {
	payload, err := json.Marshal(ConfirmedEvent(b))
	if err != nil {
		return err
	}
	_, err = d.outbox.Insert(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     events.TopicBookingConfirmed,
		Payload:       payload,
	})
	return err
}

func ConfirmedEvent(b model.Booking) events.BookingConfirmed {
	return events.BookingConfirmed{
		BookingID:        b.ID,
		ConfirmationCode: b.ConfirmationCode,
		ServiceName:      b.ServiceName,
		StartAt:          b.StartAt.Format(time.RFC3339),
		EndAt:            b.EndAt.Format(time.RFC3339),
		PartySize:        b.PartySize,
		Name:             b.Name,
		Phone:            b.Phone,
		Email:            b.Email,
	}
}
