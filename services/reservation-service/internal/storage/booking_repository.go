package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tablebook/libs/db"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
	loc  *time.Location
}

// NewBookingRepository needs the restaurant location to derive the calendar day of a booking.
func NewBookingRepository(pool *db.Pool, loc *time.Location) *BookingRepository {
	return &BookingRepository{pool: pool, loc: loc}
}

// SlotLockKey names the advisory lock serialising commits for one service on one local day.
func SlotLockKey(date time.Time, service string) string {
	return "booking:" + date.Format(model.DateLayout) + ":" + service
}

// WithSlotLock runs fn in a transaction holding the (date, service) advisory lock. The lock is
// released when the transaction ends.
func (r *BookingRepository) WithSlotLock(ctx context.Context, date time.Time, service string, fn func(ctx context.Context) error) error {
	return r.pool.WithTx(ctx, func(txCtx context.Context) error {
		lockCtx, err := db.LockXact(txCtx, SlotLockKey(date.In(r.loc), service))
		if err != nil {
			return err
		}
		return fn(lockCtx)
	})
}

func (r *BookingRepository) SumOverlappingPartySize(ctx context.Context, service string, start, end time.Time) (int, error) {
	var total int
	err := r.pool.Querier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(party_size), 0)
		FROM bookings
		WHERE service_name = $1
			AND status = 'confirmed'
			AND start_at < $3
			AND end_at > $2
	`, service, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum overlapping bookings: %w", err)
	}
	return total, nil
}

func (r *BookingRepository) ConfirmationCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.Querier(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bookings WHERE confirmation_code = $1)
	`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check confirmation code: %w", err)
	}
	return exists, nil
}

// InsertBooking must run inside WithSlotLock for the booking's own day and service.
// A code collision returns model.ErrDuplicateCode without aborting the transaction.
func (r *BookingRepository) InsertBooking(ctx context.Context, b *model.Booking) error {
	held, ok := db.HeldLock(ctx)
	if !ok || held != SlotLockKey(b.StartAt.In(r.loc), b.ServiceName) {
		return ErrLockNotHeld
	}

	err := r.pool.Querier(ctx).QueryRow(ctx, `
		INSERT INTO bookings
			(id, confirmation_code, service_name, start_at, end_at, party_size, name, phone, email, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (confirmation_code) DO NOTHING
		RETURNING created_at, updated_at
	`, b.ID, b.ConfirmationCode, b.ServiceName, b.StartAt, b.EndAt, b.PartySize,
		b.Name, b.Phone, b.Email, b.Notes, string(b.Status)).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return model.ErrDuplicateCode
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// ListConfirmedOverlapping is the availability snapshot: confirmed bookings of any service
// overlapping [start, end).
func (r *BookingRepository) ListConfirmedOverlapping(ctx context.Context, start, end time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Querier(ctx).Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
			AND start_at < $2
			AND end_at > $1
		ORDER BY start_at ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query confirmed bookings: %w", err)
	}
	return collectBookings(rows)
}

// ListBetween returns bookings of every status starting in [from, to).
func (r *BookingRepository) ListBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Querier(ctx).Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE start_at >= $1 AND start_at < $2
		ORDER BY start_at ASC, created_at ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.pool.Querier(ctx).QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE id = $1
	`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// UpdateStatus moves a booking along the status lifecycle.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, next model.BookingStatus) (model.Booking, error) {
	var out model.Booking
	err := r.pool.WithTx(ctx, func(ctx context.Context) error {
		q := r.pool.Querier(ctx)
		current, err := scanBooking(q.QueryRow(ctx, `
			SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if db.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("lock booking: %w", err)
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, next)
		}
		if err := q.QueryRow(ctx, `
			UPDATE bookings SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, string(next)).Scan(&current.UpdatedAt); err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}
		current.Status = next
		out = current
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

const bookingColumns = `id::text, confirmation_code, service_name, start_at, end_at, party_size,
	name, phone, email, notes, status, created_at, updated_at`

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(
		&b.ID,
		&b.ConfirmationCode,
		&b.ServiceName,
		&b.StartAt,
		&b.EndAt,
		&b.PartySize,
		&b.Name,
		&b.Phone,
		&b.Email,
		&b.Notes,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	b.Status = model.BookingStatus(status)
	return b, err
}

