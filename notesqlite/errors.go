// Copyright 2026 Mykhailo Kravets
// SPDX-License-Identifier: Apache-2.0

package notesqlite

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when neither the server nor the local cache has
// the requested entity, or when a plain store read misses.
var ErrNotFound = errors.New("not found")

// StorageError wraps a failure of the local durable store (corruption,
// locked database, full disk). It is the only error class the facade
// surfaces to callers as an outright failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TransportError wraps any failed server round-trip: unreachable network,
// timeout, non-2xx status or an undecodable response. Callers treat all of
// these identically as "fall back to local / queue for later".
type TransportError struct {
	Status int // HTTP status if a response was received, else 0
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ReconciliationError records a create that succeeded at the server but
// whose response could not be matched back to the local temporary id. The
// temporary copy is kept so the user does not lose data, at the cost of a
// visible duplicate until resolved manually.
type ReconciliationError struct {
	EntityType EntityType
	TempID     int64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("server response for %s created from temporary id %d carried no usable id", e.EntityType, e.TempID)
}
