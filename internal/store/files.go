package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	var (
		f         File
		parentID  sql.NullString
		isFolder  int
		tagsJSON  string
		isStarred int
		isDirty   int
		isDeleted int
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&f.ID, &f.Title, &f.Content, &f.ETag, &f.Version, &parentID,
		&isFolder, &f.Size, &tagsJSON, &isStarred, &f.LastModified, &f.LastSyncedAt,
		&isDirty, &isDeleted, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		f.ParentFolderID = &parentID.String
	}

	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Int64
	}

	f.IsFolder = isFolder != 0
	f.IsStarred = isStarred != 0
	f.IsDirty = isDirty != 0
	f.IsDeleted = isDeleted != 0

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &f.Tags); err != nil {
			return nil, fmt.Errorf("store: decode tags for file %s: %w", f.ID, err)
		}
	}

	return &f, nil
}

// GetFile returns the file with the given id, or ErrNotFound.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.fileStmts.get.QueryRowContext(ctx, id)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: get file %s: %w", id, err)
	}

	return f, nil
}

// SaveFile inserts or replaces a file row.
func (s *Store) SaveFile(ctx context.Context, f *File) error {
	tagsJSON, err := json.Marshal(f.Tags)
	if err != nil {
		return fmt.Errorf("store: encode tags for file %s: %w", f.ID, err)
	}

	var parentID any
	if f.ParentFolderID != nil {
		parentID = *f.ParentFolderID
	}

	var deletedAt any
	if f.DeletedAt != nil {
		deletedAt = *f.DeletedAt
	}

	_, err = s.fileStmts.upsert.ExecContext(ctx,
		f.ID, f.Title, f.Content, f.ETag, f.Version, parentID,
		boolToInt(f.IsFolder), f.Size, string(tagsJSON), boolToInt(f.IsStarred),
		f.LastModified, f.LastSyncedAt, boolToInt(f.IsDirty), boolToInt(f.IsDeleted), deletedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save file %s: %w", f.ID, err)
	}

	return nil
}

// DeleteFile hard-deletes a file row.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	if _, err := s.fileStmts.delete.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("store: delete file %s: %w", id, err)
	}

	return nil
}

// GetAllFiles returns every non-deleted file.
func (s *Store) GetAllFiles(ctx context.Context) ([]*File, error) {
	rows, err := s.fileStmts.listAll.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	defer rows.Close()

	var out []*File

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan file row: %w", err)
		}

		out = append(out, f)
	}

	return out, rows.Err()
}

// GetDirtyFiles returns files with IsDirty=true, filtered in application
// code rather than by SQL predicate. The spec calls this out explicitly: a
// boolean column doesn't index usefully in SQLite, so the filter happens
// after a full scan instead of a dedicated statement.
func (s *Store) GetDirtyFiles(ctx context.Context) ([]*File, error) {
	all, err := s.GetAllFiles(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*File, 0, len(all))
	for _, f := range all {
		if f.IsDirty {
			out = append(out, f)
		}
	}

	return out, nil
}

// MarkFileDirty sets IsDirty=true and updates LastModified.
func (s *Store) MarkFileDirty(ctx context.Context, id string, nowNano int64) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}

	f.IsDirty = true
	f.LastModified = nowNano

	return s.SaveFile(ctx, f)
}

// MarkFileClean sets IsDirty=false, stamps the new ETag, and records
// LastSyncedAt.
func (s *Store) MarkFileClean(ctx context.Context, id, newETag string, nowNano int64) error {
	f, err := s.GetFile(ctx, id)
	if err != nil {
		return err
	}

	f.IsDirty = false
	f.ETag = newETag
	f.LastSyncedAt = nowNano

	return s.SaveFile(ctx, f)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
