// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

// Demo binary: runs the embedded reference server, performs an offline
// create, reconnects and drains the pending queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mkravets/go-notesync/noteserver"
	"github.com/mkravets/go-notesync/notesqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	srv := noteserver.NewServer("demo-secret", "demo-csrf", logger)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer ln.Close()
	go func() { _ = http.Serve(ln, srv.Handler()) }()
	baseURL := "http://" + ln.Addr().String()

	const userID = 1
	token := func(context.Context) (string, error) {
		return srv.Auth().GenerateToken(userID, "demo-device", time.Hour)
	}

	dbPath := filepath.Join(os.TempDir(), "go-notesync-demo.db")
	defer os.Remove(dbPath)

	config := notesqlite.DefaultConfig(baseURL, "demo-csrf")
	config.Token = token
	config.Logger = logger

	client, err := notesqlite.Open(dbPath, config)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnSyncStatus(func(state notesqlite.SyncState) {
		logger.Info("sync status", "in_progress", state.InProgress, "pending", state.PendingCount)
	})
	if err := client.Start(ctx); err != nil {
		return err
	}

	// Simulate losing connectivity, then create a note offline.
	client.SetOnline(false)
	result, err := client.SaveNote(ctx, &notesqlite.Note{
		UserID:  userID,
		Title:   "Grocery list",
		Content: "milk, bread, coffee",
		Color:   "#fff475",
	}, true)
	if err != nil {
		return err
	}
	fmt.Printf("saved offline: outcome=%s id=%d\n", result.Outcome, result.Note.ID)

	// Reconnect; the engine drains the queue and swaps in the server id.
	client.SetOnline(true)
	if err := client.SyncNow(ctx); err != nil {
		return err
	}

	notes, err := client.LoadAndCacheAllNotes(ctx, userID)
	if err != nil {
		return err
	}
	for _, n := range notes {
		fmt.Printf("note %d: %s (%s)\n", n.ID, n.Title, n.Content)
	}
	return nil
}
