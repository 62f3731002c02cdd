package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/events"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/message"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/notification"
)

type memStore struct {
	rows map[int64]*notification.Notification
	now  time.Time
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *memStore) FetchDue(_ context.Context, limit int) ([]notification.Notification, error) {
	var out []notification.Notification
	for id := int64(1); id <= int64(len(s.rows)) && len(out) < limit; id++ {
		n := s.rows[id]
		if n.Status == notification.StatusPending && !n.NextAttemptAt.After(s.now) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id int64, providerID string) error {
	n := s.rows[id]
	n.Status, n.ProviderID = notification.StatusSent, providerID
	n.Attempts++
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, attempts, maxAttempts int, next time.Time, lastError string) error {
	n := s.rows[id]
	n.Attempts, n.NextAttemptAt, n.LastError = attempts, next, lastError
	if attempts >= maxAttempts {
		n.Status = notification.StatusFailed
	}
	return nil
}

type recordingEmail struct {
	err  error
	sent []string
}

func (e *recordingEmail) Send(_ context.Context, to, subject, _ string) error {
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, to+"|"+subject)
	return nil
}

func (e *recordingEmail) ProviderID() string { return "smtp" }

type recordingSMS struct {
	err  error
	sent []string
}

func (s *recordingSMS) Send(_ context.Context, to, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to+"|"+body)
	return nil
}

func (s *recordingSMS) ProviderID() string { return "sms-test" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pending(id int64, ch notification.Channel, recipient string, maxAttempts int, due time.Time) *notification.Notification {
	return &notification.Notification{
		ID:        id,
		BookingID: "b-1",
		Channel:   ch,
		Recipient: recipient,
		Booking: events.BookingConfirmed{
			BookingID: "b-1", ConfirmationCode: "K7PQ2M", StartAt: "2026-03-06T19:30:00Z", PartySize: 2,
			Name: "Ada", Phone: "0612345678",
		},
		Status:        notification.StatusPending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: due,
	}
}

func newWorker(store *memStore, mail *recordingEmail, text *recordingSMS) *Worker {
	w := NewWorker(store, mail, text, message.Renderer{Restaurant: "Chez Ada", Location: time.UTC}, discardLogger(),
		WorkerConfig{Backoff: time.Minute})
	w.now = func() time.Time { return store.now }
	return w
}

func TestProcessBatch_SendsDueNotifications(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &memStore{now: now, rows: map[int64]*notification.Notification{
		1: pending(1, notification.ChannelEmail, "ada@example.com", 5, now),
		2: pending(2, notification.ChannelSMS, "0612345678", 5, now),
		3: pending(3, notification.ChannelSMS, "0699999999", 5, now.Add(time.Minute)),
	}}
	mail, text := &recordingEmail{}, &recordingSMS{}

	n, err := newWorker(store, mail, text).ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if store.rows[1].Status != notification.StatusSent || store.rows[1].ProviderID != "smtp" {
		t.Fatalf("email not marked sent: %+v", store.rows[1])
	}
	if store.rows[2].Status != notification.StatusSent || store.rows[2].ProviderID != "sms-test" {
		t.Fatalf("sms not marked sent: %+v", store.rows[2])
	}
	if store.rows[3].Status != notification.StatusPending {
		t.Fatal("future notification must wait")
	}
	if len(mail.sent) != 1 || mail.sent[0] != "ada@example.com|Chez Ada: booking K7PQ2M confirmed" || len(text.sent) != 1 {
		t.Fatalf("unexpected sends %v %v", mail.sent, text.sent)
	}
}

func TestProcessBatch_BacksOffThenFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &memStore{now: now, rows: map[int64]*notification.Notification{
		1: pending(1, notification.ChannelSMS, "0612345678", 3, now),
	}}
	text := &recordingSMS{err: errors.New("gateway down")}
	w := newWorker(store, &recordingEmail{}, text)

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute}
	for i, delay := range wantDelays {
		if _, err := w.ProcessBatch(context.Background()); err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		row := store.rows[1]
		if row.Status != notification.StatusPending || row.Attempts != i+1 || row.LastError != "gateway down" {
			t.Fatalf("attempt %d: unexpected row %+v", i+1, row)
		}
		if got := row.NextAttemptAt.Sub(store.now); got != delay {
			t.Fatalf("attempt %d: expected backoff %s, got %s", i+1, delay, got)
		}
		if n, _ := w.ProcessBatch(context.Background()); n != 0 {
			t.Fatal("row must not be retried before its next attempt")
		}
		store.now = row.NextAttemptAt
	}

	if _, err := w.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if store.rows[1].Status != notification.StatusFailed || store.rows[1].Attempts != 3 {
		t.Fatalf("expected permanent failure after max attempts, got %+v", store.rows[1])
	}
}

func TestProcessBatch_UnsupportedChannel(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &memStore{now: now, rows: map[int64]*notification.Notification{
		1: pending(1, notification.Channel("pigeon"), "roof", 1, now),
	}}
	if _, err := newWorker(store, &recordingEmail{}, &recordingSMS{}).ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if store.rows[1].Status != notification.StatusFailed {
		t.Fatalf("expected failed, got %s", store.rows[1].Status)
	}
}
