package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetMetadata returns userID's sync metadata, or a zero-valued metadata
// (never an error) if none exists yet, treating an absent row as
// "not yet synced".
func (s *Store) GetMetadata(ctx context.Context, userID string) (*SyncMetadata, error) {
	row := s.metadataStmts.get.QueryRowContext(ctx, userID)

	var (
		md             SyncMetadata
		cursor         sql.NullString
		syncInProgress int
	)

	err := row.Scan(&md.UserID, &md.LastSyncedAt, &cursor, &syncInProgress, &md.PendingOperationsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return &SyncMetadata{UserID: userID}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get metadata for %s: %w", userID, err)
	}

	if cursor.Valid {
		md.SyncCursor = &cursor.String
	}

	md.SyncInProgress = syncInProgress != 0

	return &md, nil
}

// SaveMetadata upserts userID's sync metadata.
func (s *Store) SaveMetadata(ctx context.Context, md *SyncMetadata) error {
	var cursor any
	if md.SyncCursor != nil {
		cursor = *md.SyncCursor
	}

	_, err := s.metadataStmts.upsert.ExecContext(ctx,
		md.UserID, md.LastSyncedAt, cursor, boolToInt(md.SyncInProgress), md.PendingOperationsCount,
	)
	if err != nil {
		return fmt.Errorf("store: save metadata for %s: %w", md.UserID, err)
	}

	return nil
}
