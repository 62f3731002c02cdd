package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tablebook/libs/db"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/model"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const windowColumns = `id::text, name, display_name, day_of_week, start_minute, end_minute, last_booking_minute,
	capacity, slot_interval_minutes, meal_duration_minutes, is_active, created_at, updated_at`

func (r *ScheduleRepository) ActiveWindows(ctx context.Context, day time.Weekday) ([]model.ServiceWindow, error) {
	rows, err := r.pool.Querier(ctx).Query(ctx, `
		SELECT `+windowColumns+`
		FROM service_windows
		WHERE is_active AND day_of_week = $1
		ORDER BY start_minute, name
	`, int(day))
	if err != nil {
		return nil, fmt.Errorf("query active windows: %w", err)
	}
	return collectWindows(rows)
}

// ActiveWindow returns the active window for (name, day), or nil when there is none.
func (r *ScheduleRepository) ActiveWindow(ctx context.Context, name string, day time.Weekday) (*model.ServiceWindow, error) {
	row := r.pool.Querier(ctx).QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM service_windows
		WHERE is_active AND name = $1 AND day_of_week = $2
	`, name, int(day))
	w, err := scanWindow(row)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active window: %w", err)
	}
	return &w, nil
}

func (r *ScheduleRepository) ListWindows(ctx context.Context, includeInactive bool) ([]model.ServiceWindow, error) {
	rows, err := r.pool.Querier(ctx).Query(ctx, `
		SELECT `+windowColumns+`
		FROM service_windows
		WHERE is_active OR $1
		ORDER BY day_of_week, start_minute, name, created_at
	`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	return collectWindows(rows)
}

// UpsertWindow replaces the active window for (name, day_of_week) in place, or creates it.
func (r *ScheduleRepository) UpsertWindow(ctx context.Context, w model.ServiceWindow) (model.ServiceWindow, error) {
	if err := w.Validate(); err != nil {
		return model.ServiceWindow{}, err
	}
	row := r.pool.Querier(ctx).QueryRow(ctx, `
		INSERT INTO service_windows
			(name, display_name, day_of_week, start_minute, end_minute, last_booking_minute,
			 capacity, slot_interval_minutes, meal_duration_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (name, day_of_week) WHERE is_active
		DO UPDATE SET
			display_name = EXCLUDED.display_name,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			last_booking_minute = EXCLUDED.last_booking_minute,
			capacity = EXCLUDED.capacity,
			slot_interval_minutes = EXCLUDED.slot_interval_minutes,
			meal_duration_minutes = EXCLUDED.meal_duration_minutes,
			updated_at = now()
		RETURNING `+windowColumns,
		w.Name, w.DisplayName, int(w.DayOfWeek), w.StartMinute, w.EndMinute, w.LastBookingMinute,
		w.Capacity, w.SlotInterval, w.MealDuration)
	saved, err := scanWindow(row)
	if err != nil {
		return model.ServiceWindow{}, fmt.Errorf("upsert window: %w", err)
	}
	return saved, nil
}

func (r *ScheduleRepository) DeactivateWindow(ctx context.Context, id string) error {
	tag, err := r.pool.Querier(ctx).Exec(ctx, `
		UPDATE service_windows
		SET is_active = FALSE, updated_at = now()
		WHERE id = $1 AND is_active
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClosureOn returns the closure for date, or nil when the day is open.
func (r *ScheduleRepository) ClosureOn(ctx context.Context, date time.Time) (*model.Closure, error) {
	var c model.Closure
	err := r.pool.Querier(ctx).QueryRow(ctx, `
		SELECT date, reason, created_at FROM closures WHERE date = $1
	`, model.CivilDate(date)).Scan(&c.Date, &c.Reason, &c.CreatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get closure: %w", err)
	}
	return &c, nil
}

func (r *ScheduleRepository) ListClosures(ctx context.Context, from, to time.Time) ([]model.Closure, error) {
	rows, err := r.pool.Querier(ctx).Query(ctx, `
		SELECT date, reason, created_at
		FROM closures
		WHERE date BETWEEN $1 AND $2
		ORDER BY date
	`, model.CivilDate(from), model.CivilDate(to))
	if err != nil {
		return nil, fmt.Errorf("query closures: %w", err)
	}
	defer rows.Close()

	var out []model.Closure
	for rows.Next() {
		var c model.Closure
		if err := rows.Scan(&c.Date, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddClosure creates the closure or updates its reason.
func (r *ScheduleRepository) AddClosure(ctx context.Context, date time.Time, reason string) (model.Closure, error) {
	var c model.Closure
	err := r.pool.Querier(ctx).QueryRow(ctx, `
		INSERT INTO closures (date, reason) VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET reason = EXCLUDED.reason
		RETURNING date, reason, created_at
	`, model.CivilDate(date), reason).Scan(&c.Date, &c.Reason, &c.CreatedAt)
	if err != nil {
		return model.Closure{}, fmt.Errorf("add closure: %w", err)
	}
	return c, nil
}

func (r *ScheduleRepository) RemoveClosure(ctx context.Context, date time.Time) error {
	tag, err := r.pool.Querier(ctx).Exec(ctx, `DELETE FROM closures WHERE date = $1`, model.CivilDate(date))
	if err != nil {
		return fmt.Errorf("remove closure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectWindows(rows pgx.Rows) ([]model.ServiceWindow, error) {
	defer rows.Close()
	var out []model.ServiceWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanWindow(row pgx.Row) (model.ServiceWindow, error) {
	var w model.ServiceWindow
	var day int16
	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.DisplayName,
		&day,
		&w.StartMinute,
		&w.EndMinute,
		&w.LastBookingMinute,
		&w.Capacity,
		&w.SlotInterval,
		&w.MealDuration,
		&w.IsActive,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	w.DayOfWeek = time.Weekday(day)
	return w, err
}
