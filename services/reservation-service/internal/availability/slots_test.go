package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
)

// 2026-03-06 is a Friday.
var friday = time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

func dinner() model.ServiceWindow {
	return model.ServiceWindow{
		Name:              "soir",
		DisplayName:       "Dîner",
		DayOfWeek:         time.Friday,
		StartMinute:       19 * 60,
		EndMinute:         23 * 60,
		LastBookingMinute: 21*60 + 30,
		Capacity:          10,
		SlotInterval:      30,
		MealDuration:      60,
		IsActive:          true,
	}
}

func lunch() model.ServiceWindow {
	w := dinner()
	w.Name, w.DisplayName = "midi", "Déjeuner"
	w.StartMinute, w.EndMinute, w.LastBookingMinute = 12*60, 15*60, 13*60+30
	return w
}

func confirmed(service string, start time.Time, minutes, party int) model.Booking {
	return model.Booking{
		ServiceName: service,
		StartAt:     start,
		EndAt:       start.Add(time.Duration(minutes) * time.Minute),
		PartySize:   party,
		Status:      model.StatusConfirmed,
	}
}

func baseInput() Input {
	return Input{
		Date:      friday,
		PartySize: 2,
		Windows:   []model.ServiceWindow{dinner()},
		Now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Policy:    policy.Default(time.UTC),
	}
}

func startsOf(svc model.ServiceAvailability) []string {
	out := make([]string, 0, len(svc.Slots))
	for _, s := range svc.Slots {
		out = append(out, s.StartAt.Format("15:04"))
	}
	return out
}

func TestCalculate_LastBookingTimeIsInclusive(t *testing.T) {
	got := Calculate(baseInput())
	if got.Closed() || len(got.Services) != 1 {
		t.Fatalf("expected one open service, got %+v", got)
	}
	want := []string{"19:00", "19:30", "20:00", "20:30", "21:00", "21:30"}
	if starts := startsOf(got.Services[0]); !reflect.DeepEqual(starts, want) {
		t.Fatalf("expected %v, got %v", want, starts)
	}
}

func TestSlotStarts_NeverSpillIntoNextDay(t *testing.T) {
	w := dinner()
	w.StartMinute, w.EndMinute, w.LastBookingMinute, w.SlotInterval = 22*60, model.MinutesPerDay, model.MinutesPerDay, 60

	starts := SlotStarts(w, friday)
	if len(starts) != 2 {
		t.Fatalf("expected 22:00 and 23:00, got %v", starts)
	}
	for _, s := range starts {
		if s.Day() != friday.Day() {
			t.Fatalf("slot %s is not on %s", s, friday.Format(model.DateLayout))
		}
	}
}

func TestCalculate_HalfOpenOverlap(t *testing.T) {
	in := baseInput()
	in.Bookings = []model.Booking{confirmed("soir", friday.Add(19*time.Hour), 60, 4)}

	got := Calculate(in).Services[0].Slots
	capacity := map[string]int{}
	for _, s := range got {
		capacity[s.StartAt.Format("15:04")] = s.AvailableCapacity
	}
	if capacity["19:00"] != 6 || capacity["19:30"] != 6 {
		t.Fatalf("19:00 booking should count against 19:00 and 19:30, got %v", capacity)
	}
	if capacity["20:00"] != 10 {
		t.Fatalf("19:00+60 must not count against 20:00, got %d", capacity["20:00"])
	}
}

func TestCalculate_OmitsSlotsTooSmallForParty(t *testing.T) {
	in := baseInput()
	in.PartySize = 7
	in.Bookings = []model.Booking{confirmed("soir", friday.Add(19*time.Hour), 60, 4)}

	want := []string{"20:00", "20:30", "21:00", "21:30"}
	if starts := startsOf(Calculate(in).Services[0]); !reflect.DeepEqual(starts, want) {
		t.Fatalf("expected %v, got %v", want, starts)
	}
}

func TestCalculate_IgnoresOtherServicesAndInactiveBookings(t *testing.T) {
	in := baseInput()
	cancelled := confirmed("soir", friday.Add(19*time.Hour), 60, 10)
	cancelled.Status = model.StatusCancelled
	in.Bookings = []model.Booking{
		cancelled,
		confirmed("midi", friday.Add(19*time.Hour), 60, 10),
	}

	for _, s := range Calculate(in).Services[0].Slots {
		if s.AvailableCapacity != 10 {
			t.Fatalf("slot %s should be untouched, got %d", s.StartAt.Format("15:04"), s.AvailableCapacity)
		}
	}
}

func TestCalculate_TodayBuffer(t *testing.T) {
	in := baseInput()
	in.Now = friday.Add(18*time.Hour + 10*time.Minute)

	starts := startsOf(Calculate(in).Services[0])
	if len(starts) == 0 || starts[0] != "19:30" {
		t.Fatalf("19:00 is inside the one hour notice; expected first slot 19:30, got %v", starts)
	}

	in.Now = friday.Add(18 * time.Hour)
	if starts := startsOf(Calculate(in).Services[0]); starts[0] != "19:00" {
		t.Fatalf("a slot exactly at the cutoff is bookable, got %v", starts)
	}
}

func TestCalculate_ClosurePrecedence(t *testing.T) {
	in := baseInput()
	in.Closure = &model.Closure{Date: friday, Reason: "private event"}

	got := Calculate(in)
	if len(got.Services) != 0 || got.Message != "closed: private event" {
		t.Fatalf("expected closed day, got %+v", got)
	}

	in.Closure.Reason = ""
	if got := Calculate(in); got.Message != "closed" {
		t.Fatalf("expected plain closed message, got %q", got.Message)
	}
}

func TestCalculate_NoServiceOnWeekday(t *testing.T) {
	in := baseInput()
	in.Date = friday.AddDate(0, 0, 1)

	got := Calculate(in)
	if got.Message != MessageNoService || got.Services == nil || len(got.Services) != 0 {
		t.Fatalf("expected no-service indicator, got %+v", got)
	}

	in = baseInput()
	w := dinner()
	w.IsActive = false
	in.Windows = []model.ServiceWindow{w}
	if got := Calculate(in); got.Message != MessageNoService {
		t.Fatalf("inactive windows must be ignored, got %+v", got)
	}
}

func TestCalculate_FullServiceStillListed(t *testing.T) {
	in := baseInput()
	in.Bookings = []model.Booking{confirmed("soir", friday.Add(18*time.Hour), 6*60, 10)}

	got := Calculate(in)
	if got.Closed() {
		t.Fatal("a fully booked day is not a closed day")
	}
	if len(got.Services) != 1 || len(got.Services[0].Slots) != 0 || got.Services[0].Slots == nil {
		t.Fatalf("expected service with empty slots, got %+v", got.Services)
	}
}

func TestCalculate_OrdersServicesByStart(t *testing.T) {
	in := baseInput()
	in.Windows = []model.ServiceWindow{dinner(), lunch()}

	got := Calculate(in)
	if len(got.Services) != 2 || got.Services[0].Name != "midi" || got.Services[1].Name != "soir" {
		t.Fatalf("expected midi then soir, got %+v", got.Services)
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	in := baseInput()
	in.Windows = []model.ServiceWindow{dinner(), lunch()}
	in.Bookings = []model.Booking{
		confirmed("soir", friday.Add(20*time.Hour), 60, 3),
		confirmed("midi", friday.Add(12*time.Hour+30*time.Minute), 60, 8),
	}

	first := Calculate(in)
	second := Calculate(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated calculation differs:\n%+v\n%+v", first, second)
	}
}

func TestCalculate_DropsSlotsBeyondHorizon(t *testing.T) {
	in := baseInput()
	// Horizon ends at 20:15 on the Friday.
	in.Now = friday.Add(20*time.Hour + 15*time.Minute).Add(-in.Policy.Horizon)

	want := []string{"19:00", "19:30", "20:00"}
	if starts := startsOf(Calculate(in).Services[0]); !reflect.DeepEqual(starts, want) {
		t.Fatalf("expected %v, got %v", want, starts)
	}
}

func TestSpan(t *testing.T) {
	span, ok := Span([]model.ServiceWindow{dinner(), lunch()}, friday)
	if !ok {
		t.Fatal("expected a span")
	}
	if !span.Start.Equal(friday.Add(12*time.Hour)) || !span.End.Equal(friday.Add(22*time.Hour+30*time.Minute)) {
		t.Fatalf("unexpected span %s - %s", span.Start, span.End)
	}
	if _, ok := Span(nil, friday); ok {
		t.Fatal("no windows, no span")
	}
}
