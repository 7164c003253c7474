// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

// Package notesqlite implements the offline-first client core for the note
// service: a durable SQLite replica, a pending-operation queue, a
// connectivity monitor and a sync engine behind a single facade.
//
// The facade always writes locally first. When online it pushes straight to
// the server and reconciles the response; when offline, or when the direct
// push fails, the mutation is queued and delivered by a later drain pass.
// Conflict resolution is last-write-wins: whichever write lands last at the
// server fully overwrites prior state.
package notesqlite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Config holds configuration for the sync client.
type Config struct {
	BaseURL       string        // server base URL, e.g. "https://notes.example.com"
	CSRFToken     string        // anti-forgery token attached to every request
	Token         TokenFunc     // optional bearer token supplier
	ProbeInterval time.Duration // connectivity probe period for Monitor.Run
	Logger        *slog.Logger
}

// DefaultConfig returns a configuration with the usual defaults.
func DefaultConfig(baseURL, csrfToken string) *Config {
	return &Config{
		BaseURL:       baseURL,
		CSRFToken:     csrfToken,
		ProbeInterval: 15 * time.Second,
		Logger:        slog.Default(),
	}
}

// Client is the facade the UI layer talks to. It hides the online/offline
// branching behind save/get/delete/load operations.
type Client struct {
	store   *Store
	queue   *Queue
	remote  *RemoteClient
	monitor *Monitor
	engine  *Engine
	logger  *slog.Logger
}

// Open builds the full client stack on top of the SQLite file at path.
// The monitor starts in the online state; feed SetOnline from platform
// connectivity events or run the probe loop.
func Open(path string, config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(path, logger)
	if err != nil {
		return nil, err
	}
	queue := NewQueue(store)
	remote := NewRemoteClient(config.BaseURL, config.CSRFToken, config.Token, logger)
	monitor := NewMonitor(true, logger)
	engine := NewEngine(store, queue, remote, monitor, logger)

	return NewClient(store, queue, remote, monitor, engine, logger), nil
}

// NewClient assembles a facade from explicitly constructed parts. Tests use
// this to substitute isolated instances per case.
func NewClient(store *Store, queue *Queue, remote *RemoteClient, monitor *Monitor, engine *Engine, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		store:   store,
		queue:   queue,
		remote:  remote,
		monitor: monitor,
		engine:  engine,
		logger:  logger,
	}
}

// Start hooks the sync engine to connectivity transitions and triggers a
// startup drain if operations survived a restart.
func (c *Client) Start(ctx context.Context) error {
	return c.engine.Start(ctx)
}

// Close releases the local store.
func (c *Client) Close() error {
	return c.store.Close()
}

// Store exposes the local durable store.
func (c *Client) Store() *Store { return c.store }

// Queue exposes the pending-operation queue.
func (c *Client) Queue() *Queue { return c.queue }

// Monitor exposes the connectivity monitor.
func (c *Client) Monitor() *Monitor { return c.monitor }

// SetOnline forwards a platform connectivity event to the monitor.
func (c *Client) SetOnline(online bool) {
	c.monitor.SetOnline(online)
}

// SyncNow triggers a drain pass. Safe to call at any time; concurrent
// triggers coalesce into the active pass.
func (c *Client) SyncNow(ctx context.Context) error {
	return c.engine.SyncNow(ctx)
}

// OnSyncStatus subscribes to the sync-status feed driving the UI badge.
func (c *Client) OnSyncStatus(fn func(SyncState)) {
	c.engine.Subscribe(fn)
}

// PendingCount returns the number of operations awaiting sync.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.queue.PendingCount(ctx)
}

// SaveNote persists a note. The local store is always written first so the
// next read observes the edit even before any network completion. A new
// note gets a negative placeholder id and a temp-id dedup token before the
// network is consulted.
//
// The returned error is non-nil only when the local write itself failed;
// server trouble degrades to a queued result instead.
func (c *Client) SaveNote(ctx context.Context, n *Note, isNew bool) (*SaveResult, error) {
	n.UpdatedAt = time.Now().UTC()

	if isNew {
		tempID, err := c.store.NextTempID(ctx, n.UserID)
		if err != nil {
			return nil, err
		}
		n.ID = tempID
		n.TempID = uuid.NewString()
		n.IsOfflineCreated = true
	}

	if err := c.store.PutNote(ctx, n); err != nil {
		return nil, err
	}

	if !c.monitor.IsOnline() {
		return c.queueNoteSave(ctx, n, isNew)
	}

	if isNew {
		created, err := c.remote.CreateNote(ctx, n)
		if err != nil {
			c.logger.Warn("direct create failed, queueing note", "temp_id", n.ID, "error", err)
			return c.queueNoteSave(ctx, n, isNew)
		}
		if created.ID <= 0 {
			recErr := &ReconciliationError{EntityType: EntityNote, TempID: n.ID}
			c.logger.Error("keeping temporary note copy", "temp_id", n.ID, "error", recErr)
			return &SaveResult{Note: n, Outcome: SaveConfirmed}, nil
		}
		created.IsOfflineCreated = false
		if err := c.store.ReplaceNote(ctx, n.ID, created); err != nil {
			return nil, err
		}
		return &SaveResult{Note: created, Outcome: SaveConfirmed}, nil
	}

	id := n.ID
	if id < 0 {
		id = -id
	}
	updated, err := c.remote.UpdateNote(ctx, id, n)
	if err != nil {
		c.logger.Warn("direct update failed, queueing note", "id", n.ID, "error", err)
		return c.queueNoteSave(ctx, n, isNew)
	}
	if err := c.engine.applyRemoteNote(ctx, updated); err != nil {
		return nil, err
	}
	return &SaveResult{Note: updated, Outcome: SaveConfirmed}, nil
}

func (c *Client) queueNoteSave(ctx context.Context, n *Note, isNew bool) (*SaveResult, error) {
	op := OpUpdate
	if isNew {
		op = OpCreate
	}
	if _, err := c.queue.Enqueue(ctx, op, EntityNote, n.ID, n); err != nil {
		return nil, err
	}
	c.engine.publish(ctx, false)
	return &SaveResult{Note: n, Outcome: SaveQueued}, nil
}

// GetNote fetches a note server-first, refreshing the cache on success, and
// falls back to the cached copy when the server call fails or the device is
// offline. ErrNotFound means neither source has the entity.
func (c *Client) GetNote(ctx context.Context, id int64) (*Note, error) {
	if c.monitor.IsOnline() {
		n, err := c.remote.GetNote(ctx, id)
		if err == nil {
			if err := c.engine.applyRemoteNote(ctx, n); err != nil {
				c.logger.Warn("failed to refresh cached note", "id", id, "error", err)
			}
			return n, nil
		}
		c.logger.Debug("server fetch failed, falling back to cache", "id", id, "error", err)
	}
	return c.store.GetNote(ctx, id)
}

// DeleteNote removes the note locally first so the UI reflects it
// immediately, then deletes at the server directly or via the queue.
func (c *Client) DeleteNote(ctx context.Context, id int64) error {
	if err := c.store.DeleteNote(ctx, id); err != nil {
		return err
	}

	if c.monitor.IsOnline() {
		err := c.remote.DeleteNote(ctx, id)
		if err == nil {
			return nil
		}
		c.logger.Warn("direct delete failed, queueing", "id", id, "error", err)
	}

	if _, err := c.queue.Enqueue(ctx, OpDelete, EntityNote, id, DeletePayload{ID: id}); err != nil {
		return err
	}
	c.engine.publish(ctx, false)
	return nil
}

// LoadAndCacheAllNotes fetches the full list from the server and overwrites
// the local cache entity by entity; offline (or on failure) it returns
// whatever is cached for the user.
func (c *Client) LoadAndCacheAllNotes(ctx context.Context, userID int64) ([]*Note, error) {
	if c.monitor.IsOnline() {
		notes, err := c.remote.ListNotes(ctx)
		if err == nil {
			for _, n := range notes {
				if err := c.engine.applyRemoteNote(ctx, n); err != nil {
					return nil, err
				}
			}
			return notes, nil
		}
		c.logger.Debug("list fetch failed, falling back to cache", "user_id", userID, "error", err)
	}
	return c.store.NotesByUser(ctx, userID)
}

// SaveLabel mirrors SaveNote for labels.
func (c *Client) SaveLabel(ctx context.Context, l *Label, isNew bool) (*SaveResult, error) {
	l.UpdatedAt = time.Now().UTC()

	if isNew {
		tempID, err := c.store.NextTempID(ctx, l.UserID)
		if err != nil {
			return nil, err
		}
		l.ID = tempID
		l.TempID = uuid.NewString()
		l.IsOfflineCreated = true
	}

	if err := c.store.PutLabel(ctx, l); err != nil {
		return nil, err
	}

	if !c.monitor.IsOnline() {
		return c.queueLabelSave(ctx, l, isNew)
	}

	if isNew {
		created, err := c.remote.CreateLabel(ctx, l)
		if err != nil {
			c.logger.Warn("direct label create failed, queueing", "temp_id", l.ID, "error", err)
			return c.queueLabelSave(ctx, l, isNew)
		}
		if created.ID <= 0 {
			recErr := &ReconciliationError{EntityType: EntityLabel, TempID: l.ID}
			c.logger.Error("keeping temporary label copy", "temp_id", l.ID, "error", recErr)
			return &SaveResult{Label: l, Outcome: SaveConfirmed}, nil
		}
		created.IsOfflineCreated = false
		if err := c.store.ReplaceLabel(ctx, l.ID, created); err != nil {
			return nil, err
		}
		*l = *created
		return &SaveResult{Label: created, Outcome: SaveConfirmed}, nil
	}

	id := l.ID
	if id < 0 {
		id = -id
	}
	updated, err := c.remote.UpdateLabel(ctx, id, l)
	if err != nil {
		c.logger.Warn("direct label update failed, queueing", "id", l.ID, "error", err)
		return c.queueLabelSave(ctx, l, isNew)
	}
	if err := c.engine.applyRemoteLabel(ctx, updated); err != nil {
		return nil, err
	}
	*l = *updated
	return &SaveResult{Label: updated, Outcome: SaveConfirmed}, nil
}

func (c *Client) queueLabelSave(ctx context.Context, l *Label, isNew bool) (*SaveResult, error) {
	op := OpUpdate
	if isNew {
		op = OpCreate
	}
	if _, err := c.queue.Enqueue(ctx, op, EntityLabel, l.ID, l); err != nil {
		return nil, err
	}
	c.engine.publish(ctx, false)
	return &SaveResult{Label: l, Outcome: SaveQueued}, nil
}

// DeleteLabel mirrors DeleteNote for labels.
func (c *Client) DeleteLabel(ctx context.Context, id int64) error {
	if err := c.store.DeleteLabel(ctx, id); err != nil {
		return err
	}

	if c.monitor.IsOnline() {
		err := c.remote.DeleteLabel(ctx, id)
		if err == nil {
			return nil
		}
		c.logger.Warn("direct label delete failed, queueing", "id", id, "error", err)
	}

	if _, err := c.queue.Enqueue(ctx, OpDelete, EntityLabel, id, DeletePayload{ID: id}); err != nil {
		return err
	}
	c.engine.publish(ctx, false)
	return nil
}

// LoadAndCacheAllLabels mirrors LoadAndCacheAllNotes for labels.
func (c *Client) LoadAndCacheAllLabels(ctx context.Context, userID int64) ([]*Label, error) {
	if c.monitor.IsOnline() {
		labels, err := c.remote.ListLabels(ctx)
		if err == nil {
			for _, l := range labels {
				if err := c.engine.applyRemoteLabel(ctx, l); err != nil {
					return nil, err
				}
			}
			return labels, nil
		}
		c.logger.Debug("label list fetch failed, falling back to cache", "user_id", userID, "error", err)
	}
	return c.store.LabelsByUser(ctx, userID)
}

// ClearLocal wipes every local table. Used on logout or account switch.
func (c *Client) ClearLocal(ctx context.Context) error {
	return c.store.ClearAll(ctx)
}
