package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServiceWindow is a recurring service period. Times are minutes after local midnight.
type ServiceWindow struct {
	ID                string
	Name              string
	DisplayName       string
	DayOfWeek         time.Weekday
	StartMinute       int
	EndMinute         int
	LastBookingMinute int
	Capacity          int
	SlotInterval      int // minutes
	MealDuration      int // minutes
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var ErrInvalidWindow = errors.New("invalid service window")

// MinutesPerDay is also the largest accepted end_time ("24:00").
const MinutesPerDay = 24 * 60

func (w ServiceWindow) Validate() error {
	switch {
	case strings.TrimSpace(w.Name) == "":
		return fmt.Errorf("%w: name required", ErrInvalidWindow)
	case w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday:
		return fmt.Errorf("%w: day_of_week must be 0-6", ErrInvalidWindow)
	case w.StartMinute < 0 || w.EndMinute > MinutesPerDay || w.StartMinute >= w.EndMinute:
		return fmt.Errorf("%w: start_time must be before end_time", ErrInvalidWindow)
	case w.LastBookingMinute < w.StartMinute || w.LastBookingMinute > w.EndMinute:
		return fmt.Errorf("%w: last_booking_time must lie within [start_time, end_time]", ErrInvalidWindow)
	case w.LastBookingMinute >= MinutesPerDay:
		return fmt.Errorf("%w: last_booking_time must be before 24:00", ErrInvalidWindow)
	case w.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidWindow)
	case w.SlotInterval <= 0:
		return fmt.Errorf("%w: slot_interval must be positive", ErrInvalidWindow)
	case w.MealDuration <= 0:
		return fmt.Errorf("%w: meal_duration must be positive", ErrInvalidWindow)
	}
	return nil
}

func (w ServiceWindow) Interval() time.Duration { return time.Duration(w.SlotInterval) * time.Minute }

func (w ServiceWindow) Meal() time.Duration { return time.Duration(w.MealDuration) * time.Minute }

// DefaultLastBooking is the last bookable start when none is given: the close time, or one
// interval before a midnight close so every slot starts on the window's own day.
func DefaultLastBooking(start, end, interval int) int {
	if end < MinutesPerDay {
		return end
	}
	if last := end - interval; last > start {
		return last
	}
	return start
}

// At returns the instant minute minutes after midnight on date's calendar day, in date's location.
func At(date time.Time, minute int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, date.Location())
}

// MinuteOfDay is the wall-clock minute of t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted as end of day;
// Validate keeps it out of last_booking_time.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return h*60 + m, nil
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
