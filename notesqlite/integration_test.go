// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkravets/go-notesync/noteserver"
	"github.com/mkravets/go-notesync/notesqlite"
)

const testCSRF = "integration-csrf"

func newIntegrationClient(t *testing.T, userID int64) (*notesqlite.Client, *noteserver.Server) {
	t.Helper()

	srv := noteserver.NewServer("integration-secret", testCSRF, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := srv.Auth().GenerateToken(userID, "test-device", time.Hour)
	require.NoError(t, err)

	store, err := notesqlite.OpenStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	queue := notesqlite.NewQueue(store)
	remote := notesqlite.NewRemoteClient(ts.URL, testCSRF,
		func(context.Context) (string, error) { return token, nil }, nil)
	monitor := notesqlite.NewMonitor(true, nil)
	engine := notesqlite.NewEngine(store, queue, remote, monitor, nil)

	return notesqlite.NewClient(store, queue, remote, monitor, engine, nil), srv
}

func TestOfflineCreateSyncsThroughServer(t *testing.T) {
	client, _ := newIntegrationClient(t, 1)
	ctx := context.Background()

	client.SetOnline(false)
	result, err := client.SaveNote(ctx, &notesqlite.Note{UserID: 1, Title: "groceries", Content: "milk"}, true)
	require.NoError(t, err)
	require.Equal(t, notesqlite.SaveQueued, result.Outcome)
	require.Negative(t, result.Note.ID)

	client.SetOnline(true)
	require.NoError(t, client.SyncNow(ctx))

	count, err := client.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	notes, err := client.LoadAndCacheAllNotes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Positive(t, notes[0].ID)
	require.Equal(t, "groceries", notes[0].Title)

	// The server copy is readable through the facade as well.
	got, err := client.GetNote(ctx, notes[0].ID)
	require.NoError(t, err)
	require.Equal(t, "milk", got.Content)
}

func TestCreateReplayDeduplicatedByTempToken(t *testing.T) {
	client, _ := newIntegrationClient(t, 1)
	ctx := context.Background()

	client.SetOnline(false)
	result, err := client.SaveNote(ctx, &notesqlite.Note{UserID: 1, Title: "once"}, true)
	require.NoError(t, err)

	// Simulate an at-least-once replay: the same create lands in the queue
	// twice, as it would if a pass crashed after delivery but before the
	// completion mark.
	_, err = client.Queue().Enqueue(ctx, notesqlite.OpCreate, notesqlite.EntityNote,
		result.Note.ID, result.Note)
	require.NoError(t, err)

	client.SetOnline(true)
	require.NoError(t, client.SyncNow(ctx))

	notes, err := client.LoadAndCacheAllNotes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 1, "temp-id token must deduplicate the second create")
	require.Equal(t, "once", notes[0].Title)
}

func TestOfflineDeleteDoesNotResurrect(t *testing.T) {
	client, _ := newIntegrationClient(t, 1)
	ctx := context.Background()

	result, err := client.SaveNote(ctx, &notesqlite.Note{UserID: 1, Title: "short-lived"}, true)
	require.NoError(t, err)
	require.Equal(t, notesqlite.SaveConfirmed, result.Outcome)
	id := result.Note.ID

	client.SetOnline(false)
	require.NoError(t, client.DeleteNote(ctx, id))

	client.SetOnline(true)
	require.NoError(t, client.SyncNow(ctx))

	notes, err := client.LoadAndCacheAllNotes(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, notes)

	count, err := client.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestServerOutageDegradesToQueueThenRecovers(t *testing.T) {
	client, srv := newIntegrationClient(t, 1)
	ctx := context.Background()

	srv.SetFailing(true)
	result, err := client.SaveNote(ctx, &notesqlite.Note{UserID: 1, Title: "patient"}, true)
	require.NoError(t, err)
	require.Equal(t, notesqlite.SaveQueued, result.Outcome)

	srv.SetFailing(false)
	require.NoError(t, client.SyncNow(ctx))

	notes, err := client.LoadAndCacheAllNotes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "patient", notes[0].Title)
}

func TestLabelLifecycleThroughServer(t *testing.T) {
	client, _ := newIntegrationClient(t, 1)
	ctx := context.Background()

	label := &notesqlite.Label{UserID: 1, Name: "work", Color: "#f28b82"}
	result, err := client.SaveLabel(ctx, label, true)
	require.NoError(t, err)
	require.Equal(t, notesqlite.SaveConfirmed, result.Outcome)
	require.NotNil(t, result.Label)
	require.Equal(t, label.ID, result.Label.ID)
	require.Positive(t, label.ID)

	label.Name = "office"
	_, err = client.SaveLabel(ctx, label, false)
	require.NoError(t, err)

	labels, err := client.LoadAndCacheAllLabels(ctx, 1)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Equal(t, "office", labels[0].Name)

	require.NoError(t, client.DeleteLabel(ctx, label.ID))
	labels, err = client.LoadAndCacheAllLabels(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, labels)
}

func TestUsersDoNotSeeEachOther(t *testing.T) {
	// Two clients, two users, one server per client. Cross-visibility is
	// covered server-side; here we check the facade keeps caches per user.
	client, _ := newIntegrationClient(t, 1)
	ctx := context.Background()

	_, err := client.SaveNote(ctx, &notesqlite.Note{UserID: 1, Title: "mine"}, true)
	require.NoError(t, err)

	client.SetOnline(false)
	notes, err := client.LoadAndCacheAllNotes(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, notes)
}
