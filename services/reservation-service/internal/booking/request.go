package booking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
)

const (
	maxNameLen  = 100
	maxNotesLen = 500
	maxEmailLen = 254
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,20}$`)
)

type Request struct {
	ServiceName string
	StartAt     string
	PartySize   int
	Name        string
	Phone       string
	Email       string
	Notes       string
}

// Rejection is a validation failure or a business-rule refusal. It is a normal outcome.
type Rejection struct {
	Code    string
	Field   string
	Message string
}

func (r Rejection) Error() string { return r.Message }

// Business reports whether the rejection came from a schedule or capacity rule rather than
// from malformed input.
func (r Rejection) Business() bool {
	switch r.Code {
	case CodeDateClosed, CodeServiceUnavailable, CodeOutsideWindow, CodeInsufficientCapacity:
		return true
	}
	return false
}

const (
	CodeDateClosed           = "date_closed"
	CodeServiceUnavailable   = "service_unavailable"
	CodeOutsideWindow        = "outside_service_window"
	CodeInsufficientCapacity = "insufficient_capacity"
)

// Result is either a committed booking or a rejection.
type Result struct {
	OK        bool
	Booking   model.Booking
	Rejection *Rejection
}

func rejected(code, field, msg string) Result {
	return Result{Rejection: &Rejection{Code: code, Field: field, Message: msg}}
}

// NormalizePhone removes whitespace (any Unicode space), dashes, dots and parentheses.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		switch r {
		case '-', '.', '(', ')':
			return -1
		}
		return r
	}, raw)
}

type contact struct {
	name, phone, email, notes, service string
}

// validateContact checks the non-time fields in order and returns the normalised values.
func validateContact(req Request) (contact, *Rejection) {
	c := contact{
		name:    strings.TrimSpace(req.Name),
		email:   strings.TrimSpace(req.Email),
		notes:   strings.TrimSpace(req.Notes),
		service: strings.TrimSpace(req.ServiceName),
	}
	if c.name == "" || utf8.RuneCountInString(c.name) > maxNameLen {
		return c, &Rejection{Code: "invalid_name", Field: "name", Message: "name is required (max 100 characters)"}
	}
	if strings.TrimSpace(req.Phone) == "" {
		return c, &Rejection{Code: "missing_phone", Field: "phone", Message: "phone is required"}
	}
	c.phone = NormalizePhone(req.Phone)
	if !phonePattern.MatchString(c.phone) {
		return c, &Rejection{Code: "invalid_phone", Field: "phone", Message: "phone must contain at least 10 digits"}
	}
	if c.email != "" && (len(c.email) > maxEmailLen || !emailPattern.MatchString(c.email)) {
		return c, &Rejection{Code: "invalid_email", Field: "email", Message: "email is not a valid address"}
	}
	if utf8.RuneCountInString(c.notes) > maxNotesLen {
		return c, &Rejection{Code: "invalid_notes", Field: "notes", Message: "notes must be at most 500 characters"}
	}
	if c.service == "" {
		return c, &Rejection{Code: "missing_service_name", Field: "service_name", Message: "service_name is required"}
	}
	return c, nil
}
