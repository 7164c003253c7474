// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the local durable store backing the cached note/label replicas
// and the pending-operation queue. It survives process restarts and is the
// single SQLite handle for the whole client (one writer, WAL mode).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (or creates) the SQLite database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store in tests.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// Single connection prevents SQLite locking issues between the facade
	// and a concurrent drain pass.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}

// initializeSchema creates the local tables if absent. There is no
// migration strategy beyond create-if-absent.
func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return &StorageError{Op: "init", Err: fmt.Errorf("failed to enable WAL mode: %w", err)}
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return &StorageError{Op: "init", Err: fmt.Errorf("failed to enable foreign keys: %w", err)}
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return &StorageError{Op: "init", Err: fmt.Errorf("failed to set busy timeout: %w", err)}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS cached_notes (
			id                 INTEGER PRIMARY KEY,
			user_id            INTEGER NOT NULL,
			title              TEXT NOT NULL DEFAULT '',
			content            TEXT NOT NULL DEFAULT '',
			color              TEXT NOT NULL DEFAULT '#ffffff',
			pinned             INTEGER NOT NULL DEFAULT 0,
			updated_at         TEXT NOT NULL,
			is_offline_created INTEGER NOT NULL DEFAULT 0,
			temp_id            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_notes_user ON cached_notes(user_id)`,

		`CREATE TABLE IF NOT EXISTS cached_labels (
			id                 INTEGER PRIMARY KEY,
			user_id            INTEGER NOT NULL,
			name               TEXT NOT NULL DEFAULT '',
			color              TEXT NOT NULL DEFAULT '#ffffff',
			updated_at         TEXT NOT NULL,
			is_offline_created INTEGER NOT NULL DEFAULT 0,
			temp_id            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_labels_user ON cached_labels(user_id)`,

		`CREATE TABLE IF NOT EXISTS pending_operations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			operation   TEXT NOT NULL CHECK (operation IN ('create','update','delete')),
			entity_type TEXT NOT NULL CHECK (entity_type IN ('note','label')),
			entity_id   INTEGER NOT NULL,
			payload     TEXT,
			queued_at   TEXT NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK (sync_status IN ('pending','failed'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_queued_at ON pending_operations(queued_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_operations(sync_status)`,

		// Durable allocator for negative placeholder ids (one row per user).
		`CREATE TABLE IF NOT EXISTS client_info (
			user_id      INTEGER PRIMARY KEY,
			next_temp_id INTEGER NOT NULL DEFAULT -1
		)`,
	}

	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return &StorageError{Op: "init", Err: fmt.Errorf("failed to create table: %w", err)}
		}
	}

	return nil
}

// NextTempID allocates the next negative placeholder id for entities
// created while offline. The counter is durable so placeholder ids never
// collide across restarts.
func (s *Store) NextTempID(ctx context.Context, userID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "next_temp_id", Err: err}
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx, `SELECT next_temp_id FROM client_info WHERE user_id = ?`, userID).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		next = -1
		if _, err := tx.ExecContext(ctx, `INSERT INTO client_info (user_id, next_temp_id) VALUES (?, ?)`, userID, next-1); err != nil {
			return 0, &StorageError{Op: "next_temp_id", Err: err}
		}
	case err != nil:
		return 0, &StorageError{Op: "next_temp_id", Err: err}
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE client_info SET next_temp_id = ? WHERE user_id = ?`, next-1, userID); err != nil {
			return 0, &StorageError{Op: "next_temp_id", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "next_temp_id", Err: err}
	}
	return next, nil
}

// PutNote upserts a note by id. Overwrite semantics: a duplicate key never
// fails, the last write wins.
func (s *Store) PutNote(ctx context.Context, n *Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_notes
			(id, user_id, title, content, color, pinned, updated_at, is_offline_created, temp_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Title, n.Content, n.Color, boolToInt(n.Pinned),
		formatTime(n.UpdatedAt), boolToInt(n.IsOfflineCreated), nullableString(n.TempID))
	if err != nil {
		return &StorageError{Op: "put_note", Err: err}
	}
	return nil
}

// GetNote returns the cached note or ErrNotFound.
func (s *Store) GetNote(ctx context.Context, id int64) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, color, pinned, updated_at, is_offline_created, temp_id
		FROM cached_notes WHERE id = ?
	`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get_note", Err: err}
	}
	return n, nil
}

// NotesByUser returns all cached notes for the given user.
func (s *Store) NotesByUser(ctx context.Context, userID int64) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, color, pinned, updated_at, is_offline_created, temp_id
		FROM cached_notes WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, &StorageError{Op: "notes_by_user", Err: err}
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, &StorageError{Op: "notes_by_user", Err: err}
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "notes_by_user", Err: err}
	}
	return notes, nil
}

// DeleteNote removes the cached note. Deleting an absent id is a no-op.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_notes WHERE id = ?`, id); err != nil {
		return &StorageError{Op: "delete_note", Err: err}
	}
	return nil
}

// ReplaceNote atomically removes the temporary copy and inserts the
// server-assigned one. This is a replace, not a merge.
func (s *Store) ReplaceNote(ctx context.Context, tempID int64, n *Note) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "replace_note", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_notes WHERE id = ?`, tempID); err != nil {
		return &StorageError{Op: "replace_note", Err: err}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_notes
			(id, user_id, title, content, color, pinned, updated_at, is_offline_created, temp_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Title, n.Content, n.Color, boolToInt(n.Pinned),
		formatTime(n.UpdatedAt), boolToInt(n.IsOfflineCreated), nullableString(n.TempID))
	if err != nil {
		return &StorageError{Op: "replace_note", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "replace_note", Err: err}
	}
	return nil
}

// ClearNotes empties the cached notes table (logout/account switch).
func (s *Store) ClearNotes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_notes`); err != nil {
		return &StorageError{Op: "clear_notes", Err: err}
	}
	return nil
}

// PutLabel upserts a label by id.
func (s *Store) PutLabel(ctx context.Context, l *Label) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_labels
			(id, user_id, name, color, updated_at, is_offline_created, temp_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.UserID, l.Name, l.Color, formatTime(l.UpdatedAt),
		boolToInt(l.IsOfflineCreated), nullableString(l.TempID))
	if err != nil {
		return &StorageError{Op: "put_label", Err: err}
	}
	return nil
}

// GetLabel returns the cached label or ErrNotFound.
func (s *Store) GetLabel(ctx context.Context, id int64) (*Label, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, color, updated_at, is_offline_created, temp_id
		FROM cached_labels WHERE id = ?
	`, id)
	l, err := scanLabel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get_label", Err: err}
	}
	return l, nil
}

// LabelsByUser returns all cached labels for the given user.
func (s *Store) LabelsByUser(ctx context.Context, userID int64) ([]*Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, color, updated_at, is_offline_created, temp_id
		FROM cached_labels WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, &StorageError{Op: "labels_by_user", Err: err}
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, &StorageError{Op: "labels_by_user", Err: err}
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "labels_by_user", Err: err}
	}
	return labels, nil
}

// DeleteLabel removes the cached label. Deleting an absent id is a no-op.
func (s *Store) DeleteLabel(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_labels WHERE id = ?`, id); err != nil {
		return &StorageError{Op: "delete_label", Err: err}
	}
	return nil
}

// ReplaceLabel atomically swaps a temporary label for its server copy.
func (s *Store) ReplaceLabel(ctx context.Context, tempID int64, l *Label) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "replace_label", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_labels WHERE id = ?`, tempID); err != nil {
		return &StorageError{Op: "replace_label", Err: err}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_labels
			(id, user_id, name, color, updated_at, is_offline_created, temp_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.UserID, l.Name, l.Color, formatTime(l.UpdatedAt),
		boolToInt(l.IsOfflineCreated), nullableString(l.TempID))
	if err != nil {
		return &StorageError{Op: "replace_label", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "replace_label", Err: err}
	}
	return nil
}

// ClearLabels empties the cached labels table.
func (s *Store) ClearLabels(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_labels`); err != nil {
		return &StorageError{Op: "clear_labels", Err: err}
	}
	return nil
}

// ClearAll empties every local table, including the pending queue and the
// temp-id allocator. Used on logout.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range []string{"cached_notes", "cached_labels", "pending_operations", "client_info"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return &StorageError{Op: "clear_all", Err: err}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var n Note
	var pinned, offline int64
	var updatedAt string
	var tempID sql.NullString
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Color,
		&pinned, &updatedAt, &offline, &tempID); err != nil {
		return nil, err
	}
	n.Pinned = pinned != 0
	n.IsOfflineCreated = offline != 0
	if tempID.Valid {
		n.TempID = tempID.String
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	n.UpdatedAt = t
	return &n, nil
}

func scanLabel(row rowScanner) (*Label, error) {
	var l Label
	var offline int64
	var updatedAt string
	var tempID sql.NullString
	if err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.Color,
		&updatedAt, &offline, &tempID); err != nil {
		return nil, err
	}
	l.IsOfflineCreated = offline != 0
	if tempID.Valid {
		l.TempID = tempID.String
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	l.UpdatedAt = t
	return &l, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
