// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoteClientSetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	t.Cleanup(srv.Close)

	rc := NewRemoteClient(srv.URL, "csrf-123",
		func(context.Context) (string, error) { return "tok-456", nil }, nil)

	_, err := rc.CreateNote(context.Background(), &Note{Title: "x"})
	require.NoError(t, err)

	require.Equal(t, "application/json", got.Get("Accept"))
	require.Equal(t, "application/json", got.Get("Content-Type"))
	require.Equal(t, "csrf-123", got.Get("X-CSRF-Token"))
	require.Equal(t, "Bearer tok-456", got.Get("Authorization"))
}

func TestRemoteClientNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	rc := NewRemoteClient(srv.URL, "", nil, nil)

	_, err := rc.GetNote(context.Background(), 1)
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, http.StatusTeapot, terr.Status)
}

func TestRemoteClientConnectionRefusedIsTransportError(t *testing.T) {
	rc := NewRemoteClient("http://127.0.0.1:1", "", nil, nil)

	err := rc.DeleteNote(context.Background(), 1)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Zero(t, terr.Status)
}

func TestPing(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	rc := NewRemoteClient(srv.URL, "", nil, nil)
	require.True(t, rc.Ping(context.Background()))

	healthy = false
	require.False(t, rc.Ping(context.Background()))

	rc = NewRemoteClient("http://127.0.0.1:1", "", nil, nil)
	require.False(t, rc.Ping(context.Background()))
}
