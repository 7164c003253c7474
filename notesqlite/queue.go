// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
)

// Queue is the durable, ordered log of not-yet-confirmed mutations. It is
// persisted in the local store's pending_operations table and consumed in
// queued_at order by the sync engine.
//
// Failed entries are retained and retried on every subsequent drain pass.
// There is no backoff and no retry cap, so a permanently rejected operation
// is retried indefinitely.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewQueue creates a queue backed by the store's database.
func NewQueue(store *Store) *Queue {
	return &Queue{db: store.db, logger: store.logger}
}

// queuedAtLayout is fixed-width so the stored text sorts bytewise in
// chronological order. RFC3339Nano trims trailing fractional zeros and
// does not ("…0.51Z" sorts before "…0.5Z").
const queuedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Enqueue records a mutation for later replay and returns its assigned id.
// The payload is the full entity for create/update and DeletePayload for
// delete; nil payloads are stored as NULL.
func (q *Queue) Enqueue(ctx context.Context, op Operation, entityType EntityType, entityID int64, payload any) (int64, error) {
	var data any
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, &StorageError{Op: "enqueue", Err: err}
		}
		data = string(raw)
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_operations (operation, entity_type, entity_id, payload, queued_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(op), string(entityType), entityID, data,
		time.Now().UTC().Format(queuedAtLayout), string(StatusPending))
	if err != nil {
		return 0, &StorageError{Op: "enqueue", Err: err}
	}

	opID, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "enqueue", Err: err}
	}

	q.logger.Debug("queued operation",
		"op_id", opID, "operation", op, "entity_type", entityType, "entity_id", entityID)
	return opID, nil
}

// ListPending returns every outstanding operation, both pending and failed,
// ordered ascending by enqueue timestamp (id breaks ties). The order is
// stable across repeated calls absent mutation.
func (q *Queue) ListPending(ctx context.Context) ([]*PendingOperation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, operation, entity_type, entity_id, payload, queued_at, sync_status
		FROM pending_operations
		ORDER BY queued_at ASC, id ASC
	`)
	if err != nil {
		return nil, &StorageError{Op: "list_pending", Err: err}
	}
	defer rows.Close()

	var ops []*PendingOperation
	for rows.Next() {
		var p PendingOperation
		var operation, entityType, queuedAt, status string
		var payload sql.NullString
		if err := rows.Scan(&p.ID, &operation, &entityType, &p.EntityID, &payload, &queuedAt, &status); err != nil {
			return nil, &StorageError{Op: "list_pending", Err: err}
		}
		p.Operation = Operation(operation)
		p.EntityType = EntityType(entityType)
		p.SyncStatus = SyncStatus(status)
		if payload.Valid {
			p.Payload = json.RawMessage(payload.String)
		}
		t, err := parseTime(queuedAt)
		if err != nil {
			return nil, &StorageError{Op: "list_pending", Err: err}
		}
		p.QueuedAt = t
		ops = append(ops, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list_pending", Err: err}
	}
	return ops, nil
}

// MarkCompleted removes a successfully replayed operation from the queue.
func (q *Queue) MarkCompleted(ctx context.Context, opID int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, opID); err != nil {
		return &StorageError{Op: "mark_completed", Err: err}
	}
	return nil
}

// MarkFailed flips the operation to failed but retains it so a later drain
// pass can retry it.
func (q *Queue) MarkFailed(ctx context.Context, opID int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_operations SET sync_status = ? WHERE id = ?
	`, string(StatusFailed), opID)
	if err != nil {
		return &StorageError{Op: "mark_failed", Err: err}
	}
	return nil
}

// PendingCount returns the number of outstanding operations, failed ones
// included. Drives the UI badge.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&count); err != nil {
		return 0, &StorageError{Op: "pending_count", Err: err}
	}
	return count, nil
}
