package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoTx = errors.New("no transaction in context")

type lockKey struct{}

// LockXact takes a transaction-scoped advisory lock on key. The lock is released when the
// surrounding transaction commits or rolls back. The returned context records the held key.
func LockXact(ctx context.Context, key string) (context.Context, error) {
	tx := TxFromContext(ctx)
	if tx == nil {
		return ctx, ErrNoTx
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return ctx, fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return context.WithValue(ctx, lockKey{}, key), nil
}

// HeldLock reports the advisory key taken through LockXact on this context, if any.
func HeldLock(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(lockKey{}).(string)
	return key, ok
}
