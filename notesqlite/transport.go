// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TokenFunc supplies the bearer token attached to every request.
type TokenFunc func(ctx context.Context) (string, error)

// RemoteClient talks to the note server's REST surface. Every request
// carries Accept: application/json, the anti-forgery token header, and a
// bearer token when a TokenFunc is configured. Any non-2xx response,
// transport error or undecodable body is reported as *TransportError.
type RemoteClient struct {
	BaseURL   string
	CSRFToken string
	Token     TokenFunc
	HTTP      *http.Client
	logger    *slog.Logger
}

// NewRemoteClient creates a REST client for the given server base URL.
func NewRemoteClient(baseURL, csrfToken string, token TokenFunc, logger *slog.Logger) *RemoteClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteClient{
		BaseURL:   baseURL,
		CSRFToken: csrfToken,
		Token:     token,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// Ping reports whether the server answers at all. Used as a Monitor probe.
func (rc *RemoteClient) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.BaseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := rc.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// CreateNote issues POST /api/notes and returns the server-assigned note.
func (rc *RemoteClient) CreateNote(ctx context.Context, n *Note) (*Note, error) {
	var created Note
	if err := rc.do(ctx, http.MethodPost, "/api/notes", n, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateNote issues PUT /api/notes/{id} and returns the updated note.
func (rc *RemoteClient) UpdateNote(ctx context.Context, id int64, n *Note) (*Note, error) {
	var updated Note
	if err := rc.do(ctx, http.MethodPut, fmt.Sprintf("/api/notes/%d", id), n, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteNote issues DELETE /api/notes/{id}.
func (rc *RemoteClient) DeleteNote(ctx context.Context, id int64) error {
	return rc.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notes/%d", id), nil, nil)
}

// GetNote issues GET /api/notes/{id}.
func (rc *RemoteClient) GetNote(ctx context.Context, id int64) (*Note, error) {
	var n Note
	if err := rc.do(ctx, http.MethodGet, fmt.Sprintf("/api/notes/%d", id), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotes issues GET /api/notes, returning everything visible to the
// authenticated user.
func (rc *RemoteClient) ListNotes(ctx context.Context) ([]*Note, error) {
	var notes []*Note
	if err := rc.do(ctx, http.MethodGet, "/api/notes", nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// CreateLabel issues POST /api/labels.
func (rc *RemoteClient) CreateLabel(ctx context.Context, l *Label) (*Label, error) {
	var created Label
	if err := rc.do(ctx, http.MethodPost, "/api/labels", l, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateLabel issues PUT /api/labels/{id}.
func (rc *RemoteClient) UpdateLabel(ctx context.Context, id int64, l *Label) (*Label, error) {
	var updated Label
	if err := rc.do(ctx, http.MethodPut, fmt.Sprintf("/api/labels/%d", id), l, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteLabel issues DELETE /api/labels/{id}.
func (rc *RemoteClient) DeleteLabel(ctx context.Context, id int64) error {
	return rc.do(ctx, http.MethodDelete, fmt.Sprintf("/api/labels/%d", id), nil, nil)
}

// ListLabels issues GET /api/labels.
func (rc *RemoteClient) ListLabels(ctx context.Context) ([]*Label, error) {
	var labels []*Label
	if err := rc.do(ctx, http.MethodGet, "/api/labels", nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func (rc *RemoteClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rc.CSRFToken != "" {
		req.Header.Set("X-CSRF-Token", rc.CSRFToken)
	}
	if rc.Token != nil {
		token, err := rc.Token(ctx)
		if err != nil {
			return &TransportError{Err: fmt.Errorf("failed to get auth token: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := rc.HTTP.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransportError{
				Status: resp.StatusCode,
				Err:    fmt.Errorf("failed to decode response: %w", err),
			}
		}
	}
	return nil
}
