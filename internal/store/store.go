// Package store persists files, the per-file operation log, and per-user
// sync metadata in an embedded SQLite database: modernc.org/sqlite, WAL
// mode, and prepared statements grouped by domain.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

const walJournalSizeLimit = 67108864 // 64 MiB

// Store persists the sync engine's durable state. One instance per
// workspace database file; ":memory:" is valid for tests.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	fileStmts     fileStatements
	opStmts       operationStatements
	metadataStmts metadataStatements
}

type fileStatements struct {
	get, upsert, delete, listAll *sql.Stmt
}

type operationStatements struct {
	add, listByFile, listUnsynced, markSynced, deleteOld *sql.Stmt
}

type metadataStatements struct {
	get, upsert *sql.Stmt
}

// Open creates or opens the database at dbPath, sets pragmas, runs
// migrations, and prepares statements. Use ":memory:" for an ephemeral
// store.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening sync store", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	logger.Info("sync store ready", "path", dbPath)

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	prepare := func(query string) *sql.Stmt {
		if err != nil {
			return nil
		}

		var stmt *sql.Stmt
		stmt, err = s.db.PrepareContext(ctx, query)

		return stmt
	}

	s.fileStmts = fileStatements{
		get:     prepare(sqlGetFile),
		upsert:  prepare(sqlUpsertFile),
		delete:  prepare(sqlDeleteFile),
		listAll: prepare(sqlListAllFiles),
	}

	s.opStmts = operationStatements{
		add:          prepare(sqlAddOperation),
		listByFile:   prepare(sqlListOperationsByFile),
		listUnsynced: prepare(sqlListUnsyncedOperations),
		markSynced:   prepare(sqlMarkOperationsSynced),
		deleteOld:    prepare(sqlDeleteOldOperations),
	}

	s.metadataStmts = metadataStatements{
		get:    prepare(sqlGetMetadata),
		upsert: prepare(sqlUpsertMetadata),
	}

	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ClearAll deletes every row from every table, for account reset.
func (s *Store) ClearAll(ctx context.Context) error {
	tables := []string{"operations", "files", "sync_metadata"}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: clear all: begin tx: %w", err)
	}

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: clear all: delete %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: clear all: commit: %w", err)
	}

	return nil
}
