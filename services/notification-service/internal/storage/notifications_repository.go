package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tablebook/libs/db"
	otelx "github.com/md-rashed-zaman/tablebook/libs/otel"
	"github.com/md-rashed-zaman/tablebook/services/notification-service/internal/notification"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.pool.WithTx(ctx, fn)
}

// Insert stores a pending notification. A second insert for the same (event, channel) is a no-op.
func (r *Repository) Insert(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(n.Booking)
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = r.pool.Querier(ctx).Exec(ctx, `
		INSERT INTO notifications (booking_id, event_id, channel, recipient, payload, max_attempts, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, channel) DO NOTHING
	`, n.BookingID, n.EventID, string(n.Channel), n.Recipient, payload, n.MaxAttempts, traceparent, tracestate)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// FetchDue locks up to limit pending notifications whose next attempt is due. It must run
// inside a context transaction; the row locks are held until it ends.
func (r *Repository) FetchDue(ctx context.Context, limit int) ([]notification.Notification, error) {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return nil, db.ErrNoTx
	}
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id, event_id, channel, recipient, payload, status, attempts, max_attempts,
		       next_attempt_at, last_error, traceparent, tracestate
		FROM notifications
		WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due notifications: %w", err)
	}
	return collect(rows)
}

func (r *Repository) MarkSent(ctx context.Context, id int64, providerID string) error {
	_, err := r.pool.Querier(ctx).Exec(ctx, `
		UPDATE notifications
		SET status = 'sent', attempts = attempts + 1, provider_id = $2, last_error = '',
		    sent_at = now(), updated_at = now()
		WHERE id = $1
	`, id, providerID)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The row stays pending until attempts reaches maxAttempts.
func (r *Repository) MarkFailed(ctx context.Context, id int64, attempts int, maxAttempts int, nextAttemptAt time.Time, lastError string) error {
	status := notification.StatusPending
	if attempts >= maxAttempts {
		status = notification.StatusFailed
	}
	_, err := r.pool.Querier(ctx).Exec(ctx, `
		UPDATE notifications
		SET attempts = $2,
		    status = $3,
		    next_attempt_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, string(status), nextAttemptAt, lastError)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

func (r *Repository) ListForBooking(ctx context.Context, bookingID string) ([]notification.Notification, error) {
	rows, err := r.pool.Querier(ctx).Query(ctx, `
		SELECT id, booking_id, event_id, channel, recipient, payload, status, attempts, max_attempts,
		       next_attempt_at, last_error, traceparent, tracestate
		FROM notifications
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]notification.Notification, error) {
	defer rows.Close()
	var out []notification.Notification
	for rows.Next() {
		var n notification.Notification
		var channel, status string
		var raw []byte
		if err := rows.Scan(&n.ID, &n.BookingID, &n.EventID, &channel, &n.Recipient, &raw, &status,
			&n.Attempts, &n.MaxAttempts, &n.NextAttemptAt, &n.LastError, &n.Traceparent, &n.Tracestate); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &n.Booking); err != nil {
			return nil, fmt.Errorf("decode notification %d payload: %w", n.ID, err)
		}
		n.Channel, n.Status = notification.Channel(channel), notification.Status(status)
		out = append(out, n)
	}
	return out, rows.Err()
}
