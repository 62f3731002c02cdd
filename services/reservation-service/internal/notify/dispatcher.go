package notify

import (
	"context"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
)

// Dispatcher triggers the confirmation for a committed booking.
type Dispatcher interface {
	Notify(ctx context.Context, b model.Booking) error
}

type DispatcherFunc func(ctx context.Context, b model.Booking) error

func (f DispatcherFunc) Notify(ctx context.Context, b model.Booking) error { return f(ctx, b) }
