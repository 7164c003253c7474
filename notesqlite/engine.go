// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Engine drains the pending-operation queue against the server: one ordered
// pass over whatever the queue held when the pass began, each operation
// attempted at least once, failures retained for the next pass.
type Engine struct {
	store   *Store
	queue   *Queue
	remote  *RemoteClient
	monitor *Monitor
	logger  *slog.Logger

	// Re-entrancy guard: only one drain pass at a time.
	syncing int32

	subMu sync.Mutex
	subs  []func(SyncState)
}

// NewEngine wires the sync engine to its collaborators.
func NewEngine(store *Store, queue *Queue, remote *RemoteClient, monitor *Monitor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		queue:   queue,
		remote:  remote,
		monitor: monitor,
		logger:  logger,
	}
}

// Start subscribes the engine to connectivity transitions and kicks off a
// startup pass if undelivered operations survived a restart. The monitor
// only notifies; the decision to sync lives here.
func (e *Engine) Start(ctx context.Context) error {
	e.monitor.OnChange(func(online bool) {
		if !online {
			return
		}
		go func() {
			if err := e.SyncNow(ctx); err != nil {
				e.logger.Warn("sync after reconnect failed", "error", err)
			}
		}()
	})

	count, err := e.queue.PendingCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 && e.monitor.IsOnline() {
		go func() {
			if err := e.SyncNow(ctx); err != nil {
				e.logger.Warn("startup sync failed", "error", err)
			}
		}()
	}
	return nil
}

// Subscribe registers a listener for sync-status updates. This status feed
// is the only notification the engine owes the UI layer.
func (e *Engine) Subscribe(fn func(SyncState)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs = append(e.subs, fn)
}

// publish fans the current state out to subscribers. If the pending count
// cannot be read the update is skipped entirely rather than reporting an
// empty queue that may not be.
func (e *Engine) publish(ctx context.Context, inProgress bool) {
	count, err := e.queue.PendingCount(ctx)
	if err != nil {
		e.logger.Warn("failed to read pending count, skipping status update", "error", err)
		return
	}

	e.subMu.Lock()
	subs := make([]func(SyncState), len(e.subs))
	copy(subs, e.subs)
	e.subMu.Unlock()

	state := SyncState{InProgress: inProgress, PendingCount: count}
	for _, fn := range subs {
		fn(state)
	}
}

// SyncNow runs a single drain pass. A trigger arriving while a pass is
// already active is coalesced: the running pass will pick up whatever
// remains pending, so no redundant pass is queued.
//
// Per-operation failures never abort the pass; the operation is marked
// failed and the pass continues, so one bad entry cannot block the queue.
// If connectivity drops mid-drain the pass stops issuing further calls.
func (e *Engine) SyncNow(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.syncing, 0, 1) {
		return nil
	}
	e.publish(ctx, true)
	defer func() {
		atomic.StoreInt32(&e.syncing, 0)
		e.publish(ctx, false)
	}()

	ops, err := e.queue.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	e.logger.Info("starting drain pass", "pending", len(ops))
	for _, op := range ops {
		if !e.monitor.IsOnline() {
			e.logger.Info("connectivity lost, stopping drain pass")
			break
		}

		if err := e.replay(ctx, op); err != nil {
			e.logger.Warn("replay failed, keeping operation for retry",
				"op_id", op.ID, "operation", op.Operation, "entity_type", op.EntityType,
				"entity_id", op.EntityID, "error", err)
			if err := e.queue.MarkFailed(ctx, op.ID); err != nil {
				return err
			}
			continue
		}

		if err := e.queue.MarkCompleted(ctx, op.ID); err != nil {
			return err
		}
	}
	return nil
}

// replay translates one pending operation into a server call.
func (e *Engine) replay(ctx context.Context, op *PendingOperation) error {
	switch op.EntityType {
	case EntityNote:
		switch op.Operation {
		case OpCreate:
			return e.replayNoteCreate(ctx, op)
		case OpUpdate:
			return e.replayNoteUpdate(ctx, op)
		case OpDelete:
			return e.remote.DeleteNote(ctx, op.EntityID)
		}
	case EntityLabel:
		switch op.Operation {
		case OpCreate:
			return e.replayLabelCreate(ctx, op)
		case OpUpdate:
			return e.replayLabelUpdate(ctx, op)
		case OpDelete:
			return e.remote.DeleteLabel(ctx, op.EntityID)
		}
	}
	return fmt.Errorf("unknown pending operation %q for entity type %q", op.Operation, op.EntityType)
}

func (e *Engine) replayNoteCreate(ctx context.Context, op *PendingOperation) error {
	n, err := op.NotePayload()
	if err != nil {
		return err
	}
	created, err := e.remote.CreateNote(ctx, n)
	if err != nil {
		return err
	}

	if op.EntityID < 0 {
		if created == nil || created.ID <= 0 {
			// Server persisted the note but we cannot key it locally. Keep
			// the temporary copy rather than dropping data.
			recErr := &ReconciliationError{EntityType: EntityNote, TempID: op.EntityID}
			e.logger.Error("keeping temporary note copy", "temp_id", op.EntityID, "error", recErr)
			return nil
		}
		created.IsOfflineCreated = false
		return e.store.ReplaceNote(ctx, op.EntityID, created)
	}
	return e.applyRemoteNote(ctx, created)
}

func (e *Engine) replayNoteUpdate(ctx context.Context, op *PendingOperation) error {
	n, err := op.NotePayload()
	if err != nil {
		return err
	}
	id := op.EntityID
	if id < 0 {
		// The server never sees negative placeholder ids.
		id = -id
	}
	updated, err := e.remote.UpdateNote(ctx, id, n)
	if err != nil {
		return err
	}
	return e.applyRemoteNote(ctx, updated)
}

func (e *Engine) replayLabelCreate(ctx context.Context, op *PendingOperation) error {
	l, err := op.LabelPayload()
	if err != nil {
		return err
	}
	created, err := e.remote.CreateLabel(ctx, l)
	if err != nil {
		return err
	}

	if op.EntityID < 0 {
		if created == nil || created.ID <= 0 {
			recErr := &ReconciliationError{EntityType: EntityLabel, TempID: op.EntityID}
			e.logger.Error("keeping temporary label copy", "temp_id", op.EntityID, "error", recErr)
			return nil
		}
		created.IsOfflineCreated = false
		return e.store.ReplaceLabel(ctx, op.EntityID, created)
	}
	return e.applyRemoteLabel(ctx, created)
}

func (e *Engine) replayLabelUpdate(ctx context.Context, op *PendingOperation) error {
	l, err := op.LabelPayload()
	if err != nil {
		return err
	}
	id := op.EntityID
	if id < 0 {
		id = -id
	}
	updated, err := e.remote.UpdateLabel(ctx, id, l)
	if err != nil {
		return err
	}
	return e.applyRemoteLabel(ctx, updated)
}

// applyRemoteNote is the single point where server state lands over local
// state. Last write wins; substitute this to introduce versioned merging.
func (e *Engine) applyRemoteNote(ctx context.Context, n *Note) error {
	if n == nil {
		return nil
	}
	n.IsOfflineCreated = false
	return e.store.PutNote(ctx, n)
}

// applyRemoteLabel mirrors applyRemoteNote for labels.
func (e *Engine) applyRemoteLabel(ctx context.Context, l *Label) error {
	if l == nil {
		return nil
	}
	l.IsOfflineCreated = false
	return e.store.PutLabel(ctx, l)
}
