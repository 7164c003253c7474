// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenStoreCreatesSchema(t *testing.T) {
	store := newTestStore(t)

	expectedTables := []string{"cached_notes", "cached_labels", "pending_operations", "client_info"}
	for _, table := range expectedTables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestPutNoteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := &Note{
		ID:        5,
		UserID:    1,
		Title:     "Shopping",
		Content:   "eggs",
		Color:     "#fff475",
		Pinned:    true,
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, store.PutNote(ctx, n))
	require.NoError(t, store.PutNote(ctx, n))

	var count int
	err := store.db.QueryRow(`SELECT COUNT(*) FROM cached_notes WHERE id = 5`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := store.GetNote(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "Shopping", got.Title)
	require.True(t, got.Pinned)
}

func TestPutNoteOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutNote(ctx, &Note{ID: 1, UserID: 1, Title: "old", UpdatedAt: time.Now()}))
	require.NoError(t, store.PutNote(ctx, &Note{ID: 1, UserID: 1, Title: "new", UpdatedAt: time.Now()}))

	got, err := store.GetNote(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)
}

func TestGetNoteNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetNote(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNoteMissingIsNoOp(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.DeleteNote(context.Background(), 999))
}

func TestNotesByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutNote(ctx, &Note{ID: 1, UserID: 1, Title: "mine"}))
	require.NoError(t, store.PutNote(ctx, &Note{ID: 2, UserID: 1, Title: "also mine"}))
	require.NoError(t, store.PutNote(ctx, &Note{ID: 3, UserID: 2, Title: "theirs"}))

	notes, err := store.NotesByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	notes, err = store.NotesByUser(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestReplaceNote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	temp := &Note{ID: -1, UserID: 1, Title: "draft", IsOfflineCreated: true, TempID: "tok-1"}
	require.NoError(t, store.PutNote(ctx, temp))

	server := &Note{ID: 10, UserID: 1, Title: "draft", TempID: "tok-1", UpdatedAt: time.Now()}
	require.NoError(t, store.ReplaceNote(ctx, -1, server))

	_, err := store.GetNote(ctx, -1)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetNote(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "draft", got.Title)
	require.False(t, got.IsOfflineCreated)
}

func TestNextTempIDDecreases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.NextTempID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(-1), id1)

	id2, err := store.NextTempID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(-2), id2)

	// Independent counter per user.
	other, err := store.NextTempID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(-1), other)
}

func TestLabelRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := &Label{ID: 3, UserID: 1, Name: "work", Color: "#f28b82", UpdatedAt: time.Now()}
	require.NoError(t, store.PutLabel(ctx, l))

	got, err := store.GetLabel(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "work", got.Name)

	labels, err := store.LabelsByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, labels, 1)

	require.NoError(t, store.DeleteLabel(ctx, 3))
	_, err = store.GetLabel(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutNote(ctx, &Note{ID: 1, UserID: 1}))
	require.NoError(t, store.PutLabel(ctx, &Label{ID: 2, UserID: 1}))
	queue := NewQueue(store)
	_, err := queue.Enqueue(ctx, OpDelete, EntityNote, 1, DeletePayload{ID: 1})
	require.NoError(t, err)

	require.NoError(t, store.ClearAll(ctx))

	notes, err := store.NotesByUser(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, notes)

	count, err := queue.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
