package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
)

const (
	MessageNoService = "no service on this day"
	messageClosed    = "closed"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps treats both intervals as half-open.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Input is everything Calculate needs; it does no I/O.
type Input struct {
	Date      time.Time // local midnight of the requested day
	PartySize int
	Closure   *model.Closure
	Windows   []model.ServiceWindow
	Bookings  []model.Booking
	Now       time.Time
	Policy    policy.Booking
}

// Calculate derives the bookable slots for one day.
func Calculate(in Input) model.DayAvailability {
	out := model.DayAvailability{Date: in.Date.Format(model.DateLayout)}

	if in.Closure != nil {
		out.Services = []model.ServiceAvailability{}
		out.Message = ClosedMessage(in.Closure.Reason)
		return out
	}

	windows := activeOn(in.Windows, in.Date.Weekday())
	if len(windows) == 0 {
		out.Services = []model.ServiceAvailability{}
		out.Message = MessageNoService
		return out
	}

	out.Services = make([]model.ServiceAvailability, 0, len(windows))
	for _, w := range windows {
		svc := model.ServiceAvailability{Name: w.Name, DisplayName: w.DisplayName, Slots: []model.Slot{}}
		for _, start := range SlotStarts(w, in.Date) {
			if !in.Policy.Bookable(in.Now, start) {
				continue
			}
			slot := Interval{Start: start, End: start.Add(w.Meal())}
			remaining := w.Capacity - Occupancy(in.Bookings, w.Name, slot)
			if remaining < in.PartySize {
				continue
			}
			svc.Slots = append(svc.Slots, model.Slot{StartAt: start, AvailableCapacity: remaining})
		}
		out.Services = append(out.Services, svc)
	}
	return out
}

func ClosedMessage(reason string) string {
	if reason == "" {
		return messageClosed
	}
	return messageClosed + ": " + reason
}

// SlotStarts enumerates start, start+interval, ... up to and including last_booking_time.
func SlotStarts(w model.ServiceWindow, date time.Time) []time.Time {
	if w.SlotInterval <= 0 || w.LastBookingMinute < w.StartMinute {
		return nil
	}
	var starts []time.Time
	for m := w.StartMinute; m <= w.LastBookingMinute && m < model.MinutesPerDay; m += w.SlotInterval {
		starts = append(starts, model.At(date, m))
	}
	return starts
}

// Occupancy sums party sizes of confirmed bookings for service overlapping slot.
func Occupancy(bookings []model.Booking, service string, slot Interval) int {
	total := 0
	for _, b := range bookings {
		if b.ServiceName != service || b.Status != model.StatusConfirmed {
			continue
		}
		if slot.Overlaps(Interval{Start: b.StartAt, End: b.EndAt}) {
			total += b.PartySize
		}
	}
	return total
}

// Span is the interval covering every slot of windows on date, from the first start to the
// end of the last possible meal. ok is false when there are no windows.
func Span(windows []model.ServiceWindow, date time.Time) (span Interval, ok bool) {
	for _, w := range windows {
		start := model.At(date, w.StartMinute)
		end := model.At(date, w.LastBookingMinute).Add(w.Meal())
		if !ok || start.Before(span.Start) {
			span.Start = start
		}
		if !ok || end.After(span.End) {
			span.End = end
		}
		ok = true
	}
	return span, ok
}

func activeOn(windows []model.ServiceWindow, day time.Weekday) []model.ServiceWindow {
	var out []model.ServiceWindow
	for _, w := range windows {
		if w.IsActive && w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartMinute != out[j].StartMinute {
			return out[i].StartMinute < out[j].StartMinute
		}
		return out[i].Name < out[j].Name
	})
	return out
}
