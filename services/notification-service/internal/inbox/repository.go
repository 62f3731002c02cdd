package inbox

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/tablebook/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record marks eventID as received. It reports false when the event was already recorded.
// Inside a context transaction the mark is rolled back together with the handler's writes.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	tag, err := r.pool.Querier(ctx).Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record inbox event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
