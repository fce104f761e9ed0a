package store

import (
	"context"
	"database/sql"
	"fmt"
)

// rebuildFTS repopulates emails_fts from the emails table. The index is an
// external-content table, so 'rebuild' reads the current rows and never writes
// to emails itself.
func rebuildFTS(ctx context.Context, tx *sql.Tx, available bool) error {
	if !available {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO emails_fts(emails_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("rebuild fts index: %w", err)
	}
	return nil
}

// RebuildIndex regenerates the full-text index from the current records.
// Running it twice in a row yields the same index.
func (s *Store) RebuildIndex(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return rebuildFTS(ctx, tx, s.fts5Available)
	})
}
