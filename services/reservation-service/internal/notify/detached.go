package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
)

const DefaultTimeout = 5 * time.Second

// Detached runs the wrapped dispatcher in the background. Notify returns immediately and
// never reports the outcome; failures are logged.
type Detached struct {
	next    Dispatcher
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewDetached(next Dispatcher, timeout time.Duration, logger *slog.Logger) *Detached {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detached{next: next, timeout: timeout, logger: logger}
}

func (d *Detached) Notify(ctx context.Context, b model.Booking) error {
	// Keep trace and request values but not the request's cancellation.
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("notification dispatcher panic", "panic", rec, "booking_id", b.ID)
			}
		}()

		ctx, cancel := context.WithTimeout(bg, d.timeout)
		defer cancel()
		if err := d.next.Notify(ctx, b); err != nil {
			d.logger.Error("booking notification failed",
				"err", err,
				"booking_id", b.ID,
				"confirmation_code", b.ConfirmationCode,
			)
			return
		}
		d.logger.Debug("booking notification queued", "booking_id", b.ID)
	}()
	return nil
}

// Wait blocks until in-flight notifications finish or ctx ends.
func (d *Detached) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
