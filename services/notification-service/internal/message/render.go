package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/events"
)

// Renderer formats confirmation messages in the restaurant's time zone.
type Renderer struct {
	Restaurant string
	Location   *time.Location
}

type Message struct {
	Subject string
	Body    string
}

func (r Renderer) start(b events.BookingConfirmed) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, b.StartAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_at %q: %w", b.StartAt, err)
	}
	if r.Location != nil {
		t = t.In(r.Location)
	}
	return t, nil
}

func guests(n int) string {
	if n == 1 {
		return "1 guest"
	}
	return fmt.Sprintf("%d guests", n)
}

func (r Renderer) Email(b events.BookingConfirmed) (Message, error) {
	start, err := r.start(b)
	if err != nil {
		return Message{}, err
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", b.Name)
	fmt.Fprintf(&body, "Your table at %s is confirmed for %s at %s, %s.\n",
		r.Restaurant, start.Format("Monday 2 January 2006"), start.Format("15:04"), guests(b.PartySize))
	fmt.Fprintf(&body, "Confirmation code: %s\n\n", b.ConfirmationCode)
	body.WriteString("Please quote this code if you need to change or cancel your booking.\n")
	return Message{
		Subject: fmt.Sprintf("%s: booking %s confirmed", r.Restaurant, b.ConfirmationCode),
		Body:    body.String(),
	}, nil
}

// SMS stays within a single 160 character segment for typical names.
func (r Renderer) SMS(b events.BookingConfirmed) (Message, error) {
	start, err := r.start(b)
	if err != nil {
		return Message{}, err
	}
	return Message{Body: fmt.Sprintf("%s: table confirmed %s %s, %s. Code %s",
		r.Restaurant, start.Format("Mon 02/01"), start.Format("15:04"), guests(b.PartySize), b.ConfirmationCode)}, nil
}
