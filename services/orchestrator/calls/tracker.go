// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calls tracks the lifecycle of expert call sessions.
//
// # Description
//
// The upstream voice stack reports call events as independent HTTP
// notifications that can arrive late, twice, or out of order. The tracker
// absorbs that: status only moves forward (Initiated < Active < Ended),
// ending an ended call returns the cached result instead of reprocessing,
// and a ticket can never hold two open calls at once.
//
// # Thread Safety
//
// The tracker itself is stateless over the store. Callers serialize
// per-ticket through the engine's lock registry; the tracker does not
// lock.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/store"
)

var (
	// ErrAssignmentConflict means the ticket already has a non-ended call
	// session; a second call cannot be initiated until it ends.
	ErrAssignmentConflict = errors.New("assignment conflict: ticket already has an open call")

	// ErrInvalidTransition means the requested status change would move
	// the session backwards.
	ErrInvalidTransition = errors.New("invalid call status transition")
)

// Tracker manages call session state transitions on top of the store.
type Tracker struct {
	store store.Store
}

// NewTracker creates a Tracker over the given store.
func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// InitiateRequest describes the call to open. RedirectedFrom and
// RedirectReason are set only on redirect hand-offs and give the new
// expert context about who passed the ticket on and why.
type InitiateRequest struct {
	TicketID       string
	ExpertID       string
	RedirectedFrom string
	RedirectReason string
}

// Initiate opens a new call session for a ticket.
//
// Fails with ErrAssignmentConflict if the ticket still has a non-ended
// session; double-booking an expert call for one ticket is always a bug
// upstream, never something to heal silently.
func (t *Tracker) Initiate(ctx context.Context, req InitiateRequest) (*datatypes.CallSession, error) {
	if req.TicketID == "" || req.ExpertID == "" {
		return nil, fmt.Errorf("initiate call: ticket id and expert id are required")
	}

	open, err := t.store.OpenSessionForTicket(ctx, req.TicketID)
	if err == nil {
		return nil, fmt.Errorf("%w: ticket %s has open session %s",
			ErrAssignmentConflict, req.TicketID, open.ID)
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, err
	}

	session := datatypes.NewCallSession(req.TicketID, req.ExpertID)
	session.RedirectedFrom = req.RedirectedFrom
	session.RedirectReason = req.RedirectReason
	if err := t.store.PutSession(ctx, session); err != nil {
		return nil, err
	}
	slog.Info("call session initiated",
		"session_id", session.ID,
		"ticket_id", req.TicketID,
		"expert_id", req.ExpertID,
		"redirected_from", req.RedirectedFrom)
	return session, nil
}

// MarkActive records that the expert accepted the call.
//
// Idempotent for repeats: an already Active session is a no-op. Marking
// an Ended session active is ErrInvalidTransition; the voice stack's
// notification arrived after the call finished.
func (t *Tracker) MarkActive(ctx context.Context, sessionID string) error {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case datatypes.CallActive:
		return nil
	case datatypes.CallEnded:
		return fmt.Errorf("%w: session %s already ended", ErrInvalidTransition, sessionID)
	}
	session.Status = datatypes.CallActive
	return t.store.PutSession(ctx, session)
}

// MarkEnded transitions the session to Ended and attaches the transcript.
//
// # Description
//
// The first call appends the transcript, stamps EndedAt and persists the
// terminal status. Any later call is answered from the stored session:
// alreadyEnded is true, the transcript is NOT appended again, and the
// session carries whatever EndResult was cached by RecordEndResult. This
// is what makes duplicate call-ended notifications harmless.
//
// # Outputs
//
//   - *datatypes.CallSession: The session in its Ended state.
//   - bool: True if the session had already ended before this call.
//   - error: Non-nil on store failure or unknown session.
func (t *Tracker) MarkEnded(ctx context.Context, sessionID string, transcript []datatypes.TranscriptEntry) (*datatypes.CallSession, bool, error) {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if session.Ended() {
		slog.Info("duplicate call-ended notification", "session_id", sessionID)
		return session, true, nil
	}

	session.Transcript = append(session.Transcript, transcript...)
	session.Status = datatypes.CallEnded
	session.EndedAt = time.Now().UnixMilli()
	if err := t.store.PutSession(ctx, session); err != nil {
		return nil, false, err
	}
	slog.Info("call session ended",
		"session_id", sessionID,
		"ticket_id", session.TicketID,
		"transcript_entries", len(session.Transcript))
	return session, false, nil
}

// RecordEndResult caches the processed outcome of an ended call so later
// duplicate notifications return it without rerunning analysis.
func (t *Tracker) RecordEndResult(ctx context.Context, sessionID string, result datatypes.EndResult) error {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Ended() {
		return fmt.Errorf("%w: cannot record end result on %s session %s",
			ErrInvalidTransition, session.Status, sessionID)
	}
	session.EndResult = &result
	return t.store.PutSession(ctx, session)
}

// RecordAnalysisAttempt increments and persists the session's analysis
// attempt counter, returning the new count. The engine allows two
// attempts total: the original and one retry after a timeout.
func (t *Tracker) RecordAnalysisAttempt(ctx context.Context, sessionID string) (int, error) {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	session.AnalysisAttempts++
	if err := t.store.PutSession(ctx, session); err != nil {
		return 0, err
	}
	return session.AnalysisAttempts, nil
}

// CancelInitiated compensates a cancelled call initiation: the session is
// closed before the expert ever picked up, with the given terminal result
// cached. Only an Initiated session can be cancelled; once the expert
// accepted, the call must run its course.
func (t *Tracker) CancelInitiated(ctx context.Context, sessionID string, final *datatypes.FinalResult) error {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != datatypes.CallInitiated {
		return fmt.Errorf("%w: cannot cancel %s session %s",
			ErrInvalidTransition, session.Status, sessionID)
	}
	session.Status = datatypes.CallEnded
	session.EndedAt = time.Now().UnixMilli()
	session.EndResult = &datatypes.EndResult{Final: final}
	if err := t.store.PutSession(ctx, session); err != nil {
		return err
	}
	slog.Warn("call initiation cancelled", "session_id", sessionID, "ticket_id", session.TicketID)
	return nil
}
