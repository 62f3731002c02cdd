package notification

import (
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/events"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one confirmation message to one recipient over one channel.
type Notification struct {
	ID            int64
	BookingID     string
	EventID       string
	Channel       Channel
	Recipient     string
	Booking       events.BookingConfirmed
	Status        Status
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	ProviderID    string
	Traceparent   string
	Tracestate    string
	SentAt        *time.Time
}

// Expand turns a confirmed booking into the notifications it needs: SMS always, email when an
// address was given.
func Expand(eventID string, b events.BookingConfirmed, maxAttempts int) []Notification {
	base := Notification{
		BookingID:   b.BookingID,
		EventID:     eventID,
		Booking:     b,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
	}
	out := make([]Notification, 0, 2)
	if b.Email != "" {
		n := base
		n.Channel, n.Recipient = ChannelEmail, b.Email
		out = append(out, n)
	}
	n := base
	n.Channel, n.Recipient = ChannelSMS, b.Phone
	return append(out, n)
}

// NextAttempt doubles the delay per attempt, capped at an hour.
func NextAttempt(now time.Time, attempts int, backoff time.Duration) time.Time {
	delay := backoff
	for i := 1; i < attempts && delay < time.Hour; i++ {
		delay *= 2
	}
	if delay > time.Hour {
		delay = time.Hour
	}
	return now.Add(delay)
}
