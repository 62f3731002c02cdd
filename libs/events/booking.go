// Package events holds the payloads exchanged between services over Kafka.
package events

const TopicBookingConfirmed = "booking.confirmed.v1"

// BookingConfirmed is published once per committed booking.
type BookingConfirmed struct {
	BookingID        string `json:"booking_id"`
	ConfirmationCode string `json:"confirmation_code"`
	ServiceName      string `json:"service_name"`
	StartAt          string `json:"start_at"` // RFC 3339 with the restaurant's offset
	EndAt            string `json:"end_at"`
	PartySize        int    `json:"party_size"`
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email,omitempty"`
}

func (e BookingConfirmed) Valid() bool {
	return e.BookingID != "" && e.ConfirmationCode != "" && e.StartAt != "" && e.Phone != ""
}
