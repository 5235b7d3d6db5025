package store

// SQL query constants, grouped by domain.

const (
	sqlFileColumns = `id, title, content, etag, version, parent_folder_id,
		is_folder, size, tags, is_starred, last_modified, last_synced_at,
		is_dirty, is_deleted, deleted_at`

	sqlGetFile = `SELECT ` + sqlFileColumns + ` FROM files WHERE id = ? AND is_deleted = 0`

	sqlUpsertFile = `INSERT INTO files (` + sqlFileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title            = excluded.title,
			content          = excluded.content,
			etag             = excluded.etag,
			version          = excluded.version,
			parent_folder_id = excluded.parent_folder_id,
			is_folder        = excluded.is_folder,
			size             = excluded.size,
			tags             = excluded.tags,
			is_starred       = excluded.is_starred,
			last_modified    = excluded.last_modified,
			last_synced_at   = excluded.last_synced_at,
			is_dirty         = excluded.is_dirty,
			is_deleted       = excluded.is_deleted,
			deleted_at       = excluded.deleted_at`

	sqlDeleteFile = `DELETE FROM files WHERE id = ?`

	sqlListAllFiles = `SELECT ` + sqlFileColumns + ` FROM files WHERE is_deleted = 0`
)

const (
	sqlOperationColumns = `id, file_id, operation_type, position, content,
		previous_content, timestamp, synced`

	sqlAddOperation = `INSERT INTO operations (` + sqlOperationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListOperationsByFile = `SELECT ` + sqlOperationColumns + `
		FROM operations WHERE file_id = ? ORDER BY timestamp ASC`

	sqlListUnsyncedOperations = `SELECT ` + sqlOperationColumns + `
		FROM operations WHERE file_id = ? AND synced = 0 ORDER BY timestamp ASC`

	sqlMarkOperationsSynced = `UPDATE operations SET synced = 1 WHERE id = ?`

	sqlDeleteOldOperations = `DELETE FROM operations WHERE synced = 1 AND timestamp < ?`
)

const (
	sqlMetadataColumns = `user_id, last_synced_at, sync_cursor, sync_in_progress,
		pending_operations_count`

	sqlGetMetadata = `SELECT ` + sqlMetadataColumns + ` FROM sync_metadata WHERE user_id = ?`

	sqlUpsertMetadata = `INSERT INTO sync_metadata (` + sqlMetadataColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_synced_at           = excluded.last_synced_at,
			sync_cursor              = excluded.sync_cursor,
			sync_in_progress         = excluded.sync_in_progress,
			pending_operations_count = excluded.pending_operations_count`
)
