package policy

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
)

// Violation is a rule failure reported back to the caller with a stable code.
type Violation struct {
	Code    string
	Field   string
	Message string
}

func (v *Violation) Error() string { return v.Message }

var (
	ErrInvalidDate        = &Violation{Code: "invalid_date", Field: "date", Message: "date must be YYYY-MM-DD"}
	ErrDateInPast         = &Violation{Code: "date_in_past", Field: "date", Message: "date is in the past"}
	ErrDateBeyondHorizon  = &Violation{Code: "date_beyond_horizon", Field: "date", Message: "date is too far in the future"}
	ErrInvalidPartySize   = &Violation{Code: "invalid_party_size", Field: "party_size", Message: "party size is out of range"}
	ErrInvalidStart       = &Violation{Code: "invalid_start_at", Field: "start_at", Message: "start_at must be an ISO 8601 date-time"}
	ErrStartInPast        = &Violation{Code: "start_at_in_past", Field: "start_at", Message: "start_at is in the past"}
	ErrStartTooSoon       = &Violation{Code: "start_at_too_soon", Field: "start_at", Message: "start_at is inside the advance notice period"}
	ErrStartBeyondHorizon = &Violation{Code: "start_at_beyond_horizon", Field: "start_at", Message: "start_at is beyond the booking horizon"}
)

// Booking holds the time rules shared by the availability and commit paths.
type Booking struct {
	Location     *time.Location
	MinAdvance   time.Duration
	Horizon      time.Duration
	MinPartySize int
	MaxPartySize int
}

func Default(loc *time.Location) Booking {
	if loc == nil {
		loc = time.UTC
	}
	return Booking{
		Location:     loc,
		MinAdvance:   time.Hour,
		Horizon:      30 * 24 * time.Hour,
		MinPartySize: 1,
		MaxPartySize: 20,
	}
}

// Today is local midnight of the restaurant's current day.
func (p Booking) Today(now time.Time) time.Time {
	y, m, d := now.In(p.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.Location)
}

// Cutoff is the earliest bookable start.
func (p Booking) Cutoff(now time.Time) time.Time {
	return now.Add(p.MinAdvance)
}

// Latest is the last bookable start.
func (p Booking) Latest(now time.Time) time.Time {
	return now.Add(p.Horizon)
}

func (p Booking) HorizonDays() int {
	return int(p.Horizon / (24 * time.Hour))
}

// Bookable reports whether a slot starting at start passes both the notice and horizon rules.
func (p Booking) Bookable(now, start time.Time) bool {
	return !start.Before(p.Cutoff(now)) && !start.After(p.Latest(now))
}

// ParseDate reads YYYY-MM-DD as a local calendar day.
func (p Booking) ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(raw), p.Location)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func (p Booking) CheckDate(now, date time.Time) error {
	today := p.Today(now)
	if date.Before(today) {
		return ErrDateInPast
	}
	if date.After(today.AddDate(0, 0, p.HorizonDays())) {
		return ErrDateBeyondHorizon
	}
	return nil
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseStart accepts RFC 3339. A value without an offset is read as restaurant wall time.
func (p Booking) ParseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidStart
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(p.Location), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, p.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidStart
}

func (p Booking) CheckStart(now, start time.Time) error {
	switch {
	case start.Before(now):
		return ErrStartInPast
	case start.Before(p.Cutoff(now)):
		return ErrStartTooSoon
	case start.After(p.Latest(now)):
		return ErrStartBeyondHorizon
	}
	return nil
}

func (p Booking) CheckPartySize(n int) error {
	if n < p.MinPartySize || n > p.MaxPartySize {
		return ErrInvalidPartySize
	}
	return nil
}
