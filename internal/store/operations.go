package store

import (
	"context"
	"database/sql"
	"fmt"
)

func scanOperation(row interface{ Scan(...any) error }) (*Operation, error) {
	var (
		op       Operation
		position sql.NullInt64
		content  sql.NullString
		prevCont sql.NullString
		synced   int
	)

	err := row.Scan(&op.ID, &op.FileID, &op.OperationType, &position, &content,
		&prevCont, &op.Timestamp, &synced)
	if err != nil {
		return nil, err
	}

	if position.Valid {
		op.Position = &position.Int64
	}

	if content.Valid {
		op.Content = &content.String
	}

	if prevCont.Valid {
		op.PreviousContent = &prevCont.String
	}

	op.Synced = synced != 0

	return &op, nil
}

// AddOperation appends an immutable operation-log entry.
func (s *Store) AddOperation(ctx context.Context, op *Operation) error {
	_, err := s.opStmts.add.ExecContext(ctx,
		op.ID, op.FileID, op.OperationType, nullableInt64(op.Position),
		nullableString(op.Content), nullableString(op.PreviousContent),
		op.Timestamp, boolToInt(op.Synced),
	)
	if err != nil {
		return fmt.Errorf("store: add operation %s: %w", op.ID, err)
	}

	return nil
}

// GetOperations returns every operation for fileID, oldest first.
func (s *Store) GetOperations(ctx context.Context, fileID string) ([]*Operation, error) {
	return s.queryOperations(ctx, s.opStmts.listByFile, fileID)
}

// GetUnsyncedOperations returns fileID's operations with Synced=false.
func (s *Store) GetUnsyncedOperations(ctx context.Context, fileID string) ([]*Operation, error) {
	return s.queryOperations(ctx, s.opStmts.listUnsynced, fileID)
}

func (s *Store) queryOperations(ctx context.Context, stmt *sql.Stmt, fileID string) ([]*Operation, error) {
	rows, err := stmt.QueryContext(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("store: query operations for %s: %w", fileID, err)
	}
	defer rows.Close()

	var out []*Operation

	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan operation row: %w", err)
		}

		out = append(out, op)
	}

	return out, rows.Err()
}

// MarkOperationsSynced flags each operation id as synced.
func (s *Store) MarkOperationsSynced(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.opStmts.markSynced.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("store: mark operation %s synced: %w", id, err)
		}
	}

	return nil
}

// ReplaceOperations atomically swaps fileID's full operation log for ops,
// used by the GC to compact the log after eviction decisions.
func (s *Store) ReplaceOperations(ctx context.Context, fileID string, ops []*Operation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: replace operations: begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM operations WHERE file_id = ?", fileID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: replace operations: delete: %w", err)
	}

	for _, op := range ops {
		_, err := tx.ExecContext(ctx, sqlAddOperation,
			op.ID, op.FileID, op.OperationType, nullableInt64(op.Position),
			nullableString(op.Content), nullableString(op.PreviousContent),
			op.Timestamp, boolToInt(op.Synced),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: replace operations: insert %s: %w", op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: replace operations: commit: %w", err)
	}

	return nil
}

// DeleteOldOperations removes synced operations older than maxAgeNano
// (measured against the given nowNano), used by the GC's age-out pass.
func (s *Store) DeleteOldOperations(ctx context.Context, nowNano, maxAgeNano int64) (int64, error) {
	cutoff := nowNano - maxAgeNano

	res, err := s.opStmts.deleteOld.ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: delete old operations: %w", err)
	}

	return res.RowsAffected()
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}

	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}

	return *v
}
