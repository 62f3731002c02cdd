package model

import "time"

type Slot struct {
	StartAt           time.Time
	AvailableCapacity int
}

type ServiceAvailability struct {
	Name        string
	DisplayName string
	Slots       []Slot
}

// DayAvailability is the bookable view of one date. Message is set only when the day is closed.
type DayAvailability struct {
	Date     string
	Services []ServiceAvailability
	Message  string
}

func (d DayAvailability) Closed() bool { return d.Message != "" }
