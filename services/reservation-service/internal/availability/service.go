package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/clock"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
)

type ScheduleReader interface {
	ActiveWindows(ctx context.Context, day time.Weekday) ([]model.ServiceWindow, error)
	ClosureOn(ctx context.Context, date time.Time) (*model.Closure, error)
}

type BookingReader interface {
	ListConfirmedOverlapping(ctx context.Context, start, end time.Time) ([]model.Booking, error)
}

type Service struct {
	schedule ScheduleReader
	bookings BookingReader
	clock    clock.Clock
	policy   policy.Booking
}

func NewService(schedule ScheduleReader, bookings BookingReader, clk clock.Clock, p policy.Booking) *Service {
	return &Service{schedule: schedule, bookings: bookings, clock: clk, policy: p}
}

// ForDate validates the request and computes availability from the store. Invalid input is
// returned as a *policy.Violation; any other error is a storage fault.
func (s *Service) ForDate(ctx context.Context, rawDate string, partySize int) (model.DayAvailability, error) {
	now := s.clock.Now()
	date, err := s.policy.ParseDate(rawDate)
	if err != nil {
		return model.DayAvailability{}, err
	}
	if err := s.policy.CheckDate(now, date); err != nil {
		return model.DayAvailability{}, err
	}
	if err := s.policy.CheckPartySize(partySize); err != nil {
		return model.DayAvailability{}, err
	}

	in := Input{Date: date, PartySize: partySize, Now: now, Policy: s.policy}

	in.Closure, err = s.schedule.ClosureOn(ctx, date)
	if err != nil {
		return model.DayAvailability{}, fmt.Errorf("load closure: %w", err)
	}
	if in.Closure == nil {
		in.Windows, err = s.schedule.ActiveWindows(ctx, date.Weekday())
		if err != nil {
			return model.DayAvailability{}, fmt.Errorf("load windows: %w", err)
		}
		if span, ok := Span(in.Windows, date); ok {
			in.Bookings, err = s.bookings.ListConfirmedOverlapping(ctx, span.Start, span.End)
			if err != nil {
				return model.DayAvailability{}, fmt.Errorf("load bookings: %w", err)
			}
		}
	}
	return Calculate(in), nil
}
