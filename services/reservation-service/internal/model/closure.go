package model

import "time"

const DateLayout = "2006-01-02"

// Closure marks a whole calendar day unavailable. Date is the civil date at UTC midnight.
type Closure struct {
	Date      time.Time
	Reason    string
	CreatedAt time.Time
}

// CivilDate normalises t to its calendar day at UTC midnight, the form DATE columns round-trip as.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
