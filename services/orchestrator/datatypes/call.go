// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Call Status
// =============================================================================

// CallStatus is the lifecycle state of an expert call session.
//
// The ordering is strict and monotonic: Initiated < Active < Ended.
// Transitions never move backwards; marking an Ended session active is an
// invalid transition, not a reset.
type CallStatus int

const (
	CallInitiated CallStatus = iota
	CallActive
	CallEnded
)

// String implements fmt.Stringer.
func (s CallStatus) String() string {
	switch s {
	case CallInitiated:
		return "initiated"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalJSON encodes the status as its string form so persisted sessions
// and API responses stay readable.
func (s CallStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (s *CallStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "initiated":
		*s = CallInitiated
	case "active":
		*s = CallActive
	case "ended":
		*s = CallEnded
	default:
		return fmt.Errorf("unknown call status %q", raw)
	}
	return nil
}

// =============================================================================
// Transcript
// =============================================================================

// TranscriptEntry is one utterance in a call transcript.
type TranscriptEntry struct {
	Speaker string `json:"speaker" validate:"required"`
	Text    string `json:"text"`
	// Timestamp is Unix milliseconds (UTC). Zero means the upstream voice
	// stack did not provide timing.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// =============================================================================
// Call Session
// =============================================================================

// EndResult is the cached outcome of processing a call-ended event.
//
// Final always holds the composed result the first notification received.
// A redirect hand-off additionally sets Redirected and NextSessionID so
// operators can follow the session chain. The tracker stores it on the
// session so repeated call-ended notifications for the same session return
// the same answer without reprocessing.
type EndResult struct {
	Redirected    bool         `json:"redirected"`
	NextSessionID string       `json:"next_session_id,omitempty"`
	Final         *FinalResult `json:"final,omitempty"`
}

// CallSession tracks one expert call from initiation to its processed end.
//
// # Description
//
// A session is created when the engine hands a ticket to an expert and asks
// the call layer to ring them. The upstream voice stack reports acceptance
// and termination as independent HTTP calls, possibly duplicated, so the
// session carries everything needed to make those notifications idempotent:
// the monotonic Status, the cached EndResult, and the analysis retry
// counter.
//
// # Thread Safety
//
// Not safe for concurrent use. The engine serializes access through the
// owning ticket's lock.
type CallSession struct {
	ID       string `json:"session_id"`
	TicketID string `json:"ticket_id"`
	ExpertID string `json:"expert_id"`

	Status     CallStatus        `json:"status"`
	Transcript []TranscriptEntry `json:"transcript,omitempty"`

	// EndResult is non-nil once the call-ended event has been fully
	// processed. A second notification returns it verbatim.
	EndResult *EndResult `json:"end_result,omitempty"`

	// AnalysisAttempts counts resume-pipeline runs over this session's
	// transcript. The budget is two: the first attempt plus exactly one
	// retry after a worker-pool timeout.
	AnalysisAttempts int `json:"analysis_attempts,omitempty"`

	// RedirectedFrom and RedirectReason carry hand-off context into the
	// new call when this session was opened by a redirect.
	RedirectedFrom string `json:"redirected_from,omitempty"`
	RedirectReason string `json:"redirect_reason,omitempty"`

	CreatedAt int64 `json:"created_at"`
	EndedAt   int64 `json:"ended_at,omitempty"`
}

// NewCallSession creates an Initiated session with a fresh UUID.
func NewCallSession(ticketID, expertID string) *CallSession {
	return &CallSession{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		ExpertID:  expertID,
		Status:    CallInitiated,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// Ended reports whether the session reached its terminal status.
func (s *CallSession) Ended() bool {
	return s.Status == CallEnded
}
