// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"encoding/json"
	"fmt"
	"time"
)

// Note is the locally cached replica of a server-side note.
//
// ID is either a server-assigned positive integer or a locally generated
// negative placeholder for notes created while offline. TempID is a
// client-generated UUID sent with create requests so the server can
// deduplicate a retried create.
type Note struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Color            string    `json:"color"`
	Pinned           bool      `json:"pinned"`
	UpdatedAt        time.Time `json:"updated_at"`
	IsOfflineCreated bool      `json:"is_offline_created"`
	TempID           string    `json:"temp_id,omitempty"`
}

// Label is the locally cached replica of a server-side label.
type Label struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Name             string    `json:"name"`
	Color            string    `json:"color"`
	UpdatedAt        time.Time `json:"updated_at"`
	IsOfflineCreated bool      `json:"is_offline_created"`
	TempID           string    `json:"temp_id,omitempty"`
}

// Operation is the kind of mutation recorded in the pending queue.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityType selects which cached table a pending operation targets.
type EntityType string

const (
	EntityNote  EntityType = "note"
	EntityLabel EntityType = "label"
)

// SyncStatus tracks the delivery state of a pending operation. Completed
// operations are removed from the queue rather than kept with a status.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusFailed  SyncStatus = "failed"
)

// PendingOperation is one not-yet-confirmed mutation awaiting replay.
// The payload shape is keyed by EntityType and Operation: the full entity
// for create/update, minimal identity for delete.
type PendingOperation struct {
	ID         int64
	Operation  Operation
	EntityType EntityType
	EntityID   int64
	Payload    json.RawMessage
	QueuedAt   time.Time
	SyncStatus SyncStatus
}

// DeletePayload carries the minimal identity replayed for a delete.
type DeletePayload struct {
	ID int64 `json:"id"`
}

// NotePayload decodes the operation payload as a note.
func (p *PendingOperation) NotePayload() (*Note, error) {
	if p.EntityType != EntityNote {
		return nil, fmt.Errorf("operation %d targets %q, not a note", p.ID, p.EntityType)
	}
	var n Note
	if err := json.Unmarshal(p.Payload, &n); err != nil {
		return nil, fmt.Errorf("failed to decode note payload for operation %d: %w", p.ID, err)
	}
	return &n, nil
}

// LabelPayload decodes the operation payload as a label.
func (p *PendingOperation) LabelPayload() (*Label, error) {
	if p.EntityType != EntityLabel {
		return nil, fmt.Errorf("operation %d targets %q, not a label", p.ID, p.EntityType)
	}
	var l Label
	if err := json.Unmarshal(p.Payload, &l); err != nil {
		return nil, fmt.Errorf("failed to decode label payload for operation %d: %w", p.ID, err)
	}
	return &l, nil
}

// SaveOutcome distinguishes how a save landed.
type SaveOutcome int

const (
	// SaveConfirmed means the server acknowledged the write.
	SaveConfirmed SaveOutcome = iota
	// SaveQueued means the write is durable locally and queued for sync.
	SaveQueued
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveConfirmed:
		return "confirmed"
	case SaveQueued:
		return "queued"
	default:
		return fmt.Sprintf("SaveOutcome(%d)", int(o))
	}
}

// SaveResult is returned by the facade save operations. Exactly one of
// Note or Label is set, matching the entity saved. It reflects the
// authoritative copy: the server response when confirmed, the local copy
// when queued.
type SaveResult struct {
	Note    *Note
	Label   *Label
	Outcome SaveOutcome
}

// SyncState is published to status subscribers to drive a UI badge.
type SyncState struct {
	InProgress   bool `json:"in_progress"`
	PendingCount int  `json:"pending_count"`
}
