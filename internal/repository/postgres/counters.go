package postgres

import (
	"context"
	"fmt"
)

// Next increments the archive counter of key. The upsert locks the counter row, so
// concurrent archivals of one key serialize, and the increment rolls back with the
// surrounding transaction.
func (r *Repository) Next(ctx context.Context, key string) (int, error) {
	const query = `INSERT INTO archive_counters (key, value) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = archive_counters.value + 1
		RETURNING value`
	var n int
	if err := r.db(ctx).QueryRow(ctx, query, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("next archive counter: %w", err)
	}
	return n, nil
}

// Reset clears every archive counter.
func (r *Repository) Reset(ctx context.Context) error {
	if _, err := r.db(ctx).Exec(ctx, `DELETE FROM archive_counters`); err != nil {
		return fmt.Errorf("reset archive counters: %w", err)
	}
	return nil
}
