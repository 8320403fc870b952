// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists tickets and call sessions in embedded BadgerDB.
//
// BadgerDB gives low-latency local storage (~100µs) without an external
// database dependency, which matters here because a ticket is read and
// written on every workflow invocation and every call-lifecycle
// notification. Each record is a JSON value under a typed key prefix; an
// index key per ticket tracks the at-most-one non-ended call session.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// Sentinel errors for callers to branch on with errors.Is.
var (
	// ErrTicketNotFound means no ticket exists under the given id.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrSessionNotFound means no call session exists under the given id,
	// or a ticket has no open session.
	ErrSessionNotFound = errors.New("call session not found")

	// ErrPersistence wraps any storage-layer failure. Retryable: the
	// caller may repeat the operation, nothing was partially applied.
	ErrPersistence = errors.New("persistence failure")
)

// Store is the persistence boundary for tickets and call sessions.
//
// # Description
//
// Put operations overwrite whole records; the engine holds the per-ticket
// lock while mutating, so last-writer-wins inside a lock is safe. Get
// operations return copies that the caller owns.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// PutTicket writes the ticket record, creating or overwriting it.
	PutTicket(ctx context.Context, ticket *datatypes.TicketContext) error

	// GetTicket returns the ticket, or ErrTicketNotFound.
	GetTicket(ctx context.Context, id string) (*datatypes.TicketContext, error)

	// PutSession writes the session record and maintains the open-session
	// index for its ticket: a non-ended session becomes the ticket's open
	// session, an ended one clears the index entry it owns.
	PutSession(ctx context.Context, session *datatypes.CallSession) error

	// GetSession returns the session, or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*datatypes.CallSession, error)

	// OpenSessionForTicket returns the ticket's non-ended session, or
	// ErrSessionNotFound if every session for the ticket has ended.
	OpenSessionForTicket(ctx context.Context, ticketID string) (*datatypes.CallSession, error)

	// Close releases the underlying database.
	Close() error
}
