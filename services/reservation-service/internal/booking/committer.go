package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/clock"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/notify"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Schedule interface {
	ClosureOn(ctx context.Context, date time.Time) (*model.Closure, error)
	ActiveWindow(ctx context.Context, name string, day time.Weekday) (*model.ServiceWindow, error)
}

// Ledger is the booking store. InsertBooking is only valid inside WithSlotLock for the
// booking's own day and service.
type Ledger interface {
	WithSlotLock(ctx context.Context, date time.Time, service string, fn func(ctx context.Context) error) error
	SumOverlappingPartySize(ctx context.Context, service string, start, end time.Time) (int, error)
	ConfirmationCodeExists(ctx context.Context, code string) (bool, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
}

var ErrCodeSpaceExhausted = errors.New("could not allocate a unique confirmation code")

const maxCodeAttempts = 10

type Committer struct {
	schedule Schedule
	ledger   Ledger
	notifier notify.Dispatcher
	clock    clock.Clock
	policy   policy.Booking
	logger   *slog.Logger
	genCode  CodeGenerator
	newID    func() string
}

type Option func(*Committer)

func WithCodeGenerator(g CodeGenerator) Option {
	return func(c *Committer) {
		if g != nil {
			c.genCode = g
		}
	}
}

func WithIDGenerator(f func() string) Option {
	return func(c *Committer) {
		if f != nil {
			c.newID = f
		}
	}
}

func NewCommitter(schedule Schedule, ledger Ledger, notifier notify.Dispatcher, clk clock.Clock, p policy.Booking, logger *slog.Logger, opts ...Option) *Committer {
	c := &Committer{
		schedule: schedule,
		ledger:   ledger,
		notifier: notifier,
		clock:    clk,
		policy:   p,
		logger:   logger,
		genCode:  RandomCode,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var tracer = otel.Tracer("reservation-service/booking")

// Commit validates req, re-checks capacity under the (date, service) lock and records the
// booking. Rejections come back in Result; the error is reserved for storage faults.
func (c *Committer) Commit(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "booking.commit", trace.WithAttributes(
		attribute.String("booking.service", req.ServiceName),
		attribute.Int("booking.party_size", req.PartySize),
	))
	defer span.End()

	res, err := c.commit(ctx, req)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "commit failed")
	case res.Rejection != nil:
		span.SetAttributes(attribute.String("booking.rejection", res.Rejection.Code))
	default:
		span.SetAttributes(attribute.String("booking.id", res.Booking.ID))
	}
	return res, err
}

func (c *Committer) commit(ctx context.Context, req Request) (Result, error) {
	now := c.clock.Now()

	start, err := c.policy.ParseStart(req.StartAt)
	if err != nil {
		return violation(err), nil
	}
	if err := c.policy.CheckStart(now, start); err != nil {
		return violation(err), nil
	}
	if err := c.policy.CheckPartySize(req.PartySize); err != nil {
		return violation(err), nil
	}
	contact, rej := validateContact(req)
	if rej != nil {
		return Result{Rejection: rej}, nil
	}

	start = start.In(c.policy.Location)
	day := model.At(start, 0)

	closure, err := c.schedule.ClosureOn(ctx, day)
	if err != nil {
		return Result{}, fmt.Errorf("load closure: %w", err)
	}
	if closure != nil {
		return rejected(CodeDateClosed, "start_at", "the restaurant is closed on "+day.Format(model.DateLayout)), nil
	}

	window, err := c.schedule.ActiveWindow(ctx, contact.service, start.Weekday())
	if err != nil {
		return Result{}, fmt.Errorf("load service window: %w", err)
	}
	if window == nil {
		return rejected(CodeServiceUnavailable, "service_name", "service "+contact.service+" is not available on that day"), nil
	}
	if start.Before(model.At(day, window.StartMinute)) || start.After(model.At(day, window.LastBookingMinute)) {
		return rejected(CodeOutsideWindow, "start_at", fmt.Sprintf("bookings for %s start between %s and %s",
			window.Name, model.FormatClock(window.StartMinute), model.FormatClock(window.LastBookingMinute))), nil
	}

	b := model.Booking{
		ID:          c.newID(),
		ServiceName: window.Name,
		StartAt:     start,
		EndAt:       start.Add(window.Meal()),
		PartySize:   req.PartySize,
		Name:        contact.name,
		Phone:       contact.phone,
		Email:       contact.email,
		Notes:       contact.notes,
		Status:      model.StatusConfirmed,
	}

	var full bool
	err = c.ledger.WithSlotLock(ctx, day, b.ServiceName, func(ctx context.Context) error {
		used, err := c.ledger.SumOverlappingPartySize(ctx, b.ServiceName, b.StartAt, b.EndAt)
		if err != nil {
			return err
		}
		if used+b.PartySize > window.Capacity {
			full = true
			return nil
		}
		return c.insertWithCode(ctx, &b)
	})
	if err != nil {
		return Result{}, fmt.Errorf("commit booking: %w", err)
	}
	if full {
		return rejected(CodeInsufficientCapacity, "party_size", "insufficient capacity"), nil
	}

	c.dispatch(ctx, b)
	return Result{OK: true, Booking: b}, nil
}

func (c *Committer) insertWithCode(ctx context.Context, b *model.Booking) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := c.genCode()
		if err != nil {
			return fmt.Errorf("generate confirmation code: %w", err)
		}
		taken, err := c.ledger.ConfirmationCodeExists(ctx, code)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		b.ConfirmationCode = code
		err = c.ledger.InsertBooking(ctx, b)
		if errors.Is(err, model.ErrDuplicateCode) {
			continue
		}
		return err
	}
	return ErrCodeSpaceExhausted
}

// dispatch hands the committed booking to the notifier. Its outcome is only logged.
func (c *Committer) dispatch(ctx context.Context, b model.Booking) {
	if c.notifier == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("notifier panic", "panic", rec, "booking_id", b.ID)
		}
	}()
	if err := c.notifier.Notify(ctx, b); err != nil {
		c.logger.Warn("booking notification not dispatched", "err", err, "booking_id", b.ID)
	}
}

func violation(err error) Result {
	var v *policy.Violation
	if errors.As(err, &v) {
		return Result{Rejection: &Rejection{Code: v.Code, Field: v.Field, Message: v.Message}}
	}
	return rejected("invalid_request", "", err.Error())
}
