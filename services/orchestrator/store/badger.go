// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// Key layout. Values are JSON-encoded records.
const (
	ticketPrefix  = "ticket/"
	sessionPrefix = "session/"
	// openPrefix maps ticket id -> session id of the at-most-one non-ended
	// session. Written when a session is initiated, cleared when it ends.
	openPrefix = "open/"
)

// Config holds configuration for the BadgerDB-backed store.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synchronous writes and a
// 5-minute GC cadence.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// badgerStore implements Store on an embedded BadgerDB instance.
type badgerStore struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open opens the store with the given configuration.
//
// # Description
//
// Opens BadgerDB at the configured path (creating the directory if
// needed) or in memory, and starts the value log GC loop when GCInterval
// is set. Call Close when done.
//
// # Outputs
//
//   - Store: The opened store. Safe for concurrent use.
//   - error: Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required for persistent store", ErrPersistence)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("%w: create store directory %s: %v", ErrPersistence, cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger database: %v", ErrPersistence, err)
	}

	s := &badgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return s, nil
}

// OpenInMemory opens a throwaway in-memory store for testing.
func OpenInMemory() (Store, error) {
	return Open(InMemoryConfig())
}

func (s *badgerStore) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when nothing needed GC.
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Close stops GC and closes the database. Safe to call once.
func (s *badgerStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// =============================================================================
// Ticket CRUD
// =============================================================================

func (s *badgerStore) PutTicket(ctx context.Context, ticket *datatypes.TicketContext) error {
	if ticket == nil || ticket.ID == "" {
		return fmt.Errorf("%w: ticket missing id", ErrPersistence)
	}
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("%w: encode ticket %s: %v", ErrPersistence, ticket.ID, err)
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(ticketPrefix+ticket.ID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put ticket %s: %v", ErrPersistence, ticket.ID, err)
	}
	return nil
}

func (s *badgerStore) GetTicket(ctx context.Context, id string) (*datatypes.TicketContext, error) {
	var ticket datatypes.TicketContext
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, ticketPrefix+id, &ticket)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
		}
		return nil, fmt.Errorf("%w: get ticket %s: %v", ErrPersistence, id, err)
	}
	return &ticket, nil
}

// =============================================================================
// Session CRUD
// =============================================================================

func (s *badgerStore) PutSession(ctx context.Context, session *datatypes.CallSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session missing id", ErrPersistence)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: encode session %s: %v", ErrPersistence, session.ID, err)
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(sessionPrefix+session.ID), data); err != nil {
			return err
		}
		return s.updateOpenIndex(txn, session)
	})
	if err != nil {
		return fmt.Errorf("%w: put session %s: %v", ErrPersistence, session.ID, err)
	}
	return nil
}

// updateOpenIndex keeps open/<ticketID> pointing at the ticket's non-ended
// session. An ended session only clears the entry it owns; it must not
// clobber an index already pointing at a successor call.
func (s *badgerStore) updateOpenIndex(txn *badger.Txn, session *datatypes.CallSession) error {
	key := []byte(openPrefix + session.TicketID)
	if !session.Ended() {
		return txn.Set(key, []byte(session.ID))
	}
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if string(val) == session.ID {
			return txn.Delete(key)
		}
		return nil
	})
}

func (s *badgerStore) GetSession(ctx context.Context, id string) (*datatypes.CallSession, error) {
	var session datatypes.CallSession
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, sessionPrefix+id, &session)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("%w: get session %s: %v", ErrPersistence, id, err)
	}
	return &session, nil
}

func (s *badgerStore) OpenSessionForTicket(ctx context.Context, ticketID string) (*datatypes.CallSession, error) {
	var session datatypes.CallSession
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(openPrefix + ticketID))
		if err != nil {
			return err
		}
		var sessionID string
		if err := item.Value(func(val []byte) error {
			sessionID = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, sessionPrefix+sessionID, &session)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: no open session for ticket %s", ErrSessionNotFound, ticketID)
		}
		return nil, fmt.Errorf("%w: open session for ticket %s: %v", ErrPersistence, ticketID, err)
	}
	return &session, nil
}

// =============================================================================
// Transaction Helpers
// =============================================================================

func (s *badgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

func (s *badgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

func getJSON(txn *badger.Txn, key string, dst interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

var _ Store = (*badgerStore)(nil)
