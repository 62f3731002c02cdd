package model

import (
	"errors"
	"time"
)

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
	StatusNoShow    BookingStatus = "no_show"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateCode     = errors.New("confirmation code already in use")
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next. Only confirmed bookings move, and
// every other status is terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != StatusConfirmed {
		return false
	}
	switch next {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

type Booking struct {
	ID               string
	ConfirmationCode string
	ServiceName      string
	StartAt          time.Time
	EndAt            time.Time
	PartySize        int
	Name             string
	Phone            string
	Email            string
	Notes            string
	Status           BookingStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Overlaps uses half-open intervals: [StartAt, EndAt) against [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartAt.Before(end) && start.Before(b.EndAt)
}
