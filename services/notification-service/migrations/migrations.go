package migrations

import (
	"context"
	"embed"

	"github.com/md-rashed-zaman/tablebook/libs/db"
)

//go:embed *.sql
var files embed.FS

const lockID int64 = 724130002

func Apply(ctx context.Context, pool *db.Pool) ([]string, error) {
	return db.Migrate(ctx, pool, files, lockID)
}
