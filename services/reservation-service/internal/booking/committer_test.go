package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/clock"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/notify"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
)

// 2026-03-06 is a Friday; "now" is the Sunday before.
var (
	friday = time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	now    = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func dinner(capacity int) model.ServiceWindow {
	return model.ServiceWindow{
		ID:                "w-soir",
		Name:              "soir",
		DayOfWeek:         time.Friday,
		StartMinute:       19 * 60,
		EndMinute:         23 * 60,
		LastBookingMinute: 21*60 + 30,
		Capacity:          capacity,
		SlotInterval:      30,
		MealDuration:      60,
		IsActive:          true,
	}
}

type fakeSchedule struct {
	windows  []model.ServiceWindow
	closures map[string]string
	err      error
}

func (f *fakeSchedule) ClosureOn(_ context.Context, date time.Time) (*model.Closure, error) {
	if f.err != nil {
		return nil, f.err
	}
	if reason, ok := f.closures[date.Format(model.DateLayout)]; ok {
		return &model.Closure{Date: model.CivilDate(date), Reason: reason}, nil
	}
	return nil, nil
}

func (f *fakeSchedule) ActiveWindow(_ context.Context, name string, day time.Weekday) (*model.ServiceWindow, error) {
	for _, w := range f.windows {
		if w.Name == name && w.DayOfWeek == day && w.IsActive {
			w := w
			return &w, nil
		}
	}
	return nil, nil
}

type heldKey struct{}

var errNotLocked = errors.New("insert outside slot lock")

// memLedger serialises WithSlotLock per key with a mutex, mirroring the advisory lock.
type memLedger struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	bookings []model.Booking
	codes    map[string]bool

	sumDelay     time.Duration
	onEnter      func(key string)
	insertErrors []error
	sumErr       error
}

func newMemLedger() *memLedger {
	return &memLedger{locks: map[string]*sync.Mutex{}, codes: map[string]bool{}}
}

func slotKey(date time.Time, service string) string {
	return date.Format(model.DateLayout) + "/" + service
}

func (l *memLedger) WithSlotLock(ctx context.Context, date time.Time, service string, fn func(ctx context.Context) error) error {
	key := slotKey(date, service)
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	if l.onEnter != nil {
		l.onEnter(key)
	}
	return fn(context.WithValue(ctx, heldKey{}, key))
}

func (l *memLedger) SumOverlappingPartySize(_ context.Context, service string, start, end time.Time) (int, error) {
	if l.sumErr != nil {
		return 0, l.sumErr
	}
	time.Sleep(l.sumDelay)
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, b := range l.bookings {
		if b.ServiceName == service && b.Status == model.StatusConfirmed && b.Overlaps(start, end) {
			total += b.PartySize
		}
	}
	return total, nil
}

func (l *memLedger) ConfirmationCodeExists(_ context.Context, code string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codes[code], nil
}

func (l *memLedger) InsertBooking(ctx context.Context, b *model.Booking) error {
	key, _ := ctx.Value(heldKey{}).(string)
	if key != slotKey(b.StartAt, b.ServiceName) {
		return errNotLocked
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.insertErrors) > 0 {
		err := l.insertErrors[0]
		l.insertErrors = l.insertErrors[1:]
		if err != nil {
			return err
		}
	}
	if l.codes[b.ConfirmationCode] {
		return model.ErrDuplicateCode
	}
	l.codes[b.ConfirmationCode] = true
	l.bookings = append(l.bookings, *b)
	return nil
}

func (l *memLedger) confirmedCovers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, b := range l.bookings {
		total += b.PartySize
	}
	return total
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	calls  []model.Booking
	result error
}

func (r *recorder) Notify(_ context.Context, b model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, b)
	return r.result
}

func newCommitter(sched *fakeSchedule, ledger *memLedger, n notify.Dispatcher, opts ...Option) *Committer {
	return NewCommitter(sched, ledger, n, clock.NewFixed(now), policy.Default(time.UTC), discardLogger(), opts...)
}

func validRequest() Request {
	return Request{
		ServiceName: "soir",
		StartAt:     "2026-03-06T19:30:00Z",
		PartySize:   2,
		Name:        "Ada Lovelace",
		Phone:       "06 12 34 56 78",
		Email:       "ada@example.com",
	}
}

func TestCommit_Success(t *testing.T) {
	ledger := newMemLedger()
	rec := &recorder{}
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, rec)

	res, err := c.Commit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !res.OK || res.Rejection != nil {
		t.Fatalf("expected success, got %+v", res.Rejection)
	}
	b := res.Booking
	if b.ID == "" || !ValidCode(b.ConfirmationCode) {
		t.Fatalf("expected id and valid code, got %+v", b)
	}
	if !b.EndAt.Equal(b.StartAt.Add(time.Hour)) || b.Phone != "0612345678" || b.Status != model.StatusConfirmed {
		t.Fatalf("unexpected booking %+v", b)
	}
	if len(rec.calls) != 1 || rec.calls[0].ID != b.ID {
		t.Fatalf("expected one notification for the booking, got %+v", rec.calls)
	}
}

func TestCommit_ValidationOrder(t *testing.T) {
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, newMemLedger(), nil)

	cases := []struct {
		name   string
		mutate func(*Request)
		code   string
	}{
		{"unparseable start", func(r *Request) { r.StartAt = "friday evening"; r.PartySize = 0 }, "invalid_start_at"},
		{"past start", func(r *Request) { r.StartAt = "2026-02-27T19:00:00Z"; r.Name = "" }, "start_at_in_past"},
		{"inside notice", func(r *Request) { r.StartAt = "2026-03-01T10:30:00Z" }, "start_at_too_soon"},
		{"beyond horizon", func(r *Request) { r.StartAt = "2026-04-03T19:00:00Z" }, "start_at_beyond_horizon"},
		{"party too large", func(r *Request) { r.PartySize = 21; r.Name = "" }, "invalid_party_size"},
		{"blank name", func(r *Request) { r.Name = "  "; r.Phone = "" }, "invalid_name"},
		{"missing phone", func(r *Request) { r.Phone = " "; r.Email = "nope" }, "missing_phone"},
		{"short phone", func(r *Request) { r.Phone = "06-12-34" }, "invalid_phone"},
		{"letters in phone", func(r *Request) { r.Phone = "06 12 AB 56 78" }, "invalid_phone"},
		{"bad email", func(r *Request) { r.Email = "ada@example" }, "invalid_email"},
		{"long notes", func(r *Request) { r.Notes = string(make([]rune, 501)) + "x" }, "invalid_notes"},
		{"missing service", func(r *Request) { r.ServiceName = "" }, "missing_service_name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			res, err := c.Commit(context.Background(), req)
			if err != nil {
				t.Fatalf("validation must not be a fault: %v", err)
			}
			if res.OK || res.Rejection == nil || res.Rejection.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, res.Rejection)
			}
			if res.Rejection.Business() {
				t.Fatalf("%s should be an input error", tc.code)
			}
		})
	}
}

func TestCommit_ScheduleRules(t *testing.T) {
	sched := &fakeSchedule{
		windows:  []model.ServiceWindow{dinner(10)},
		closures: map[string]string{"2026-03-13": "private event"},
	}
	c := newCommitter(sched, newMemLedger(), nil)

	cases := []struct {
		name  string
		start string
		svc   string
		code  string
	}{
		{"closure wins over window", "2026-03-13T19:30:00Z", "soir", CodeDateClosed},
		{"no window that day", "2026-03-07T19:30:00Z", "soir", CodeServiceUnavailable},
		{"unknown service", "2026-03-06T19:30:00Z", "brunch", CodeServiceUnavailable},
		{"before first slot", "2026-03-06T18:59:00Z", "soir", CodeOutsideWindow},
		{"after last booking time", "2026-03-06T21:31:00Z", "soir", CodeOutsideWindow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.StartAt, req.ServiceName = tc.start, tc.svc
			res, err := c.Commit(context.Background(), req)
			if err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if res.Rejection == nil || res.Rejection.Code != tc.code || !res.Rejection.Business() {
				t.Fatalf("expected business rejection %s, got %+v", tc.code, res.Rejection)
			}
		})
	}

	req := validRequest()
	req.StartAt = "2026-03-06T21:30:00Z"
	if res, err := c.Commit(context.Background(), req); err != nil || !res.OK {
		t.Fatalf("last_booking_time itself must be bookable, got %+v %v", res.Rejection, err)
	}
}

func TestCommit_EveryOfferedSlotIsBookableForMidnightClose(t *testing.T) {
	late := dinner(10)
	late.Name = "nuit"
	late.StartMinute, late.EndMinute, late.SlotInterval = 22*60, model.MinutesPerDay, 60
	late.LastBookingMinute = model.DefaultLastBooking(late.StartMinute, late.EndMinute, late.SlotInterval)
	sched := &fakeSchedule{windows: []model.ServiceWindow{late}}
	c := newCommitter(sched, newMemLedger(), nil)

	day := availability.Calculate(availability.Input{
		Date:      friday,
		PartySize: 2,
		Windows:   sched.windows,
		Now:       now,
		Policy:    policy.Default(time.UTC),
	})
	if len(day.Services) != 1 || len(day.Services[0].Slots) == 0 {
		t.Fatalf("expected offered slots, got %+v", day)
	}
	for _, slot := range day.Services[0].Slots {
		req := validRequest()
		req.ServiceName = "nuit"
		req.StartAt = slot.StartAt.Format(time.RFC3339)
		res, err := c.Commit(context.Background(), req)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if !res.OK {
			t.Fatalf("offered slot %s rejected: %+v", req.StartAt, res.Rejection)
		}
	}
}

func TestCommit_ExactlyOneWinnerAtCapacityBoundary(t *testing.T) {
	for round := 0; round < 20; round++ {
		ledger := newMemLedger()
		ledger.sumDelay = 2 * time.Millisecond
		start := friday.Add(19*time.Hour + 30*time.Minute)
		ledger.bookings = []model.Booking{{
			ID: "existing", ServiceName: "soir", StartAt: start, EndAt: start.Add(time.Hour),
			PartySize: 6, Status: model.StatusConfirmed,
		}}
		c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, nil)

		results := make([]Result, 2)
		var wg sync.WaitGroup
		gate := make(chan struct{})
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-gate
				req := validRequest()
				req.PartySize = 3
				res, err := c.Commit(context.Background(), req)
				if err != nil {
					t.Errorf("Commit: %v", err)
				}
				results[i] = res
			}(i)
		}
		close(gate)
		wg.Wait()

		wins, full := 0, 0
		for _, r := range results {
			switch {
			case r.OK:
				wins++
			case r.Rejection != nil && r.Rejection.Code == CodeInsufficientCapacity:
				full++
			}
		}
		if wins != 1 || full != 1 {
			t.Fatalf("round %d: expected one winner and one insufficient_capacity, got %d/%d", round, wins, full)
		}
	}
}

func TestCommit_NoOverbookingUnderContention(t *testing.T) {
	ledger := newMemLedger()
	ledger.sumDelay = time.Millisecond
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, nil)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest()
			req.PartySize = 1 + i%3
			// Mix 19:00, 19:30 and 20:00: every pair of them overlaps under a 60 minute meal or touches at the edge.
			req.StartAt = fmt.Sprintf("2026-03-06T%s:00Z", []string{"19:00", "19:30", "20:00"}[i%3])
			res, err := c.Commit(context.Background(), req)
			if err != nil {
				t.Errorf("Commit: %v", err)
				return
			}
			if res.OK {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() == 0 {
		t.Fatal("expected some bookings to succeed")
	}
	for _, probe := range []time.Time{
		friday.Add(19 * time.Hour),
		friday.Add(19*time.Hour + 30*time.Minute),
		friday.Add(20 * time.Hour),
		friday.Add(20*time.Hour + 30*time.Minute),
	} {
		used, _ := ledger.SumOverlappingPartySize(context.Background(), "soir", probe, probe.Add(time.Minute))
		if used > 10 {
			t.Fatalf("overbooked at %s: %d covers for capacity 10", probe.Format("15:04"), used)
		}
	}
}

func TestCommit_DifferentServicesDoNotBlockEachOther(t *testing.T) {
	lunch := dinner(10)
	lunch.Name, lunch.StartMinute, lunch.LastBookingMinute, lunch.EndMinute = "midi", 12*60, 13*60+30, 15*60

	ledger := newMemLedger()
	inside := map[string]chan struct{}{
		slotKey(friday, "midi"): make(chan struct{}),
		slotKey(friday, "soir"): make(chan struct{}),
	}
	var stuck atomic.Bool
	ledger.onEnter = func(key string) {
		close(inside[key])
		for other, ch := range inside {
			if other == key {
				continue
			}
			select {
			case <-ch:
			case <-time.After(2 * time.Second):
				stuck.Store(true)
			}
		}
	}
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10), lunch}}, ledger, nil)

	var wg sync.WaitGroup
	for _, req := range []Request{
		{ServiceName: "soir", StartAt: "2026-03-06T19:30:00Z", PartySize: 2, Name: "A", Phone: "0612345678"},
		{ServiceName: "midi", StartAt: "2026-03-06T12:30:00Z", PartySize: 2, Name: "B", Phone: "0612345679"},
	} {
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			if res, err := c.Commit(context.Background(), req); err != nil || !res.OK {
				t.Errorf("Commit %s: %+v %v", req.ServiceName, res.Rejection, err)
			}
		}(req)
	}
	wg.Wait()
	if stuck.Load() {
		t.Fatal("locks for different services must not serialise each other")
	}
}

func TestCommit_CodeUniqueness(t *testing.T) {
	ledger := newMemLedger()
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(1000)}}, ledger, nil)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		req := validRequest()
		req.PartySize = 1
		res, err := c.Commit(context.Background(), req)
		if err != nil || !res.OK {
			t.Fatalf("Commit %d: %+v %v", i, res.Rejection, err)
		}
		code := res.Booking.ConfirmationCode
		if !ValidCode(code) || seen[code] {
			t.Fatalf("code %q invalid or repeated", code)
		}
		seen[code] = true
	}
}

func sequence(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func TestCommit_RetriesCodeCollisions(t *testing.T) {
	ledger := newMemLedger()
	ledger.codes["AAAAAA"] = true
	ledger.insertErrors = []error{model.ErrDuplicateCode}
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, nil,
		WithCodeGenerator(sequence("AAAAAA", "BBBBBB", "CCCCCC")))

	res, err := c.Commit(context.Background(), validRequest())
	if err != nil || !res.OK {
		t.Fatalf("Commit: %+v %v", res.Rejection, err)
	}
	// AAAAAA exists, BBBBBB loses the insert race, CCCCCC wins.
	if res.Booking.ConfirmationCode != "CCCCCC" {
		t.Fatalf("expected CCCCCC, got %s", res.Booking.ConfirmationCode)
	}
}

func TestCommit_CodeSpaceExhausted(t *testing.T) {
	ledger := newMemLedger()
	ledger.codes["AAAAAA"] = true
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, nil,
		WithCodeGenerator(sequence("AAAAAA")))

	_, err := c.Commit(context.Background(), validRequest())
	if !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("expected ErrCodeSpaceExhausted, got %v", err)
	}
	if ledger.confirmedCovers() != 0 {
		t.Fatal("no booking should be stored")
	}
}

func TestCommit_StorageFaultIsAnError(t *testing.T) {
	c := newCommitter(&fakeSchedule{err: errors.New("db down"), windows: []model.ServiceWindow{dinner(10)}}, newMemLedger(), nil)
	if _, err := c.Commit(context.Background(), validRequest()); err == nil {
		t.Fatal("expected a fault")
	}

	ledger := newMemLedger()
	ledger.sumErr = errors.New("lock timeout")
	c = newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, nil)
	if _, err := c.Commit(context.Background(), validRequest()); err == nil {
		t.Fatal("expected a fault")
	}
}

func TestCommit_NotificationFailureDoesNotChangeResult(t *testing.T) {
	ledger := newMemLedger()
	failing := &recorder{result: errors.New("smtp unreachable")}
	c := newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, failing)

	res, err := c.Commit(context.Background(), validRequest())
	if err != nil || !res.OK {
		t.Fatalf("notification failure leaked into the result: %+v %v", res.Rejection, err)
	}
	if ledger.confirmedCovers() != 2 {
		t.Fatal("booking must stay committed")
	}

	panicky := notify.DispatcherFunc(func(context.Context, model.Booking) error { panic("boom") })
	c = newCommitter(&fakeSchedule{windows: []model.ServiceWindow{dinner(10)}}, ledger, panicky)
	if res, err := c.Commit(context.Background(), validRequest()); err != nil || !res.OK {
		t.Fatalf("notifier panic leaked into the result: %+v %v", res.Rejection, err)
	}
}

func TestCommit_WallClockStartUsesRestaurantZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	w := dinner(10)
	ledger := newMemLedger()
	c := NewCommitter(&fakeSchedule{windows: []model.ServiceWindow{w}}, ledger, nil,
		clock.NewFixed(now), policy.Default(loc), discardLogger())

	req := validRequest()
	req.StartAt = "2026-03-06T19:30"
	res, err := c.Commit(context.Background(), req)
	if err != nil || !res.OK {
		t.Fatalf("Commit: %+v %v", res.Rejection, err)
	}
	if got := res.Booking.StartAt.UTC().Format("15:04"); got != "18:30" {
		t.Fatalf("19:30 Paris is 18:30 UTC in March, got %s", got)
	}
}
