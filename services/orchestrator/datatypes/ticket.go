// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the support ticket context that travels with a request
// across workflow invocations. The call session types live in call.go, the
// per-invocation workflow state in workflow.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRedirects is the redirect budget applied to new tickets.
// After this many expert-to-expert hand-offs the ticket escalates to a
// human queue instead of redirecting again.
const DefaultMaxRedirects = 3

// TicketContext is the durable record of one support request.
//
// # Description
//
// A ticket outlives any single workflow invocation: it is created when a
// request is submitted, persists while a call with an expert is in flight,
// and is read back when the call ends and the workflow resumes. The redirect
// bookkeeping on this struct is what prevents a request from bouncing
// between the same experts forever.
//
// # Invariants
//
//   - RedirectCount == len(RedirectHistory) at all times.
//   - RedirectCount never exceeds MaxRedirects.
//   - RedirectHistory is ordered oldest hand-off first and records the
//     expert who held the ticket before each hand-off.
//
// Mutate redirect state only through RecordRedirect; writing the fields
// directly can break the invariants the candidate selector relies on.
//
// # Thread Safety
//
// Not safe for concurrent use. The engine serializes access through its
// per-ticket lock registry.
type TicketContext struct {
	ID          string `json:"ticket_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	RequesterID string `json:"requester_id,omitempty"`
	Channel     string `json:"channel,omitempty"`

	// AssignedExpertID is the expert currently holding the ticket.
	// Empty until the first hand-off.
	AssignedExpertID string `json:"assigned_expert_id,omitempty"`

	RedirectCount   int      `json:"redirect_count"`
	RedirectHistory []string `json:"redirect_history,omitempty"`
	MaxRedirects    int      `json:"max_redirects"`

	// CreatedAt and UpdatedAt are Unix timestamps in milliseconds (UTC).
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewTicket creates a ticket with a fresh UUID and the default redirect budget.
func NewTicket(subject, description, requesterID, channel string) *TicketContext {
	now := time.Now().UnixMilli()
	return &TicketContext{
		ID:           uuid.NewString(),
		Subject:      subject,
		Description:  description,
		RequesterID:  requesterID,
		Channel:      channel,
		MaxRedirects: DefaultMaxRedirects,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanRedirect reports whether the ticket still has redirect budget left.
func (t *TicketContext) CanRedirect() bool {
	return t.RedirectCount < t.MaxRedirects
}

// HasHandled reports whether expertID previously held the ticket or holds
// it now. Used by the candidate selector to keep redirects from cycling
// back to an expert who already declined the request.
func (t *TicketContext) HasHandled(expertID string) bool {
	if expertID == "" {
		return false
	}
	if t.AssignedExpertID == expertID {
		return true
	}
	for _, prev := range t.RedirectHistory {
		if prev == expertID {
			return true
		}
	}
	return false
}

// ExcludedExperts returns the identity set the candidate selector must not
// pick from: every prior holder of the ticket plus the current assignee.
func (t *TicketContext) ExcludedExperts() map[string]struct{} {
	excluded := make(map[string]struct{}, len(t.RedirectHistory)+1)
	for _, id := range t.RedirectHistory {
		excluded[id] = struct{}{}
	}
	if t.AssignedExpertID != "" {
		excluded[t.AssignedExpertID] = struct{}{}
	}
	return excluded
}

// Assign records the initial expert assignment. It does not consume
// redirect budget; only expert-to-expert hand-offs do. The requester is
// never a valid assignee.
func (t *TicketContext) Assign(expertID string) error {
	if expertID == "" {
		return fmt.Errorf("assign: empty expert id for ticket %s", t.ID)
	}
	if expertID == t.RequesterID {
		return fmt.Errorf("assign: ticket %s cannot be assigned to its requester", t.ID)
	}
	if t.AssignedExpertID != "" {
		return fmt.Errorf("assign: ticket %s already assigned to %s",
			t.ID, t.AssignedExpertID)
	}
	t.AssignedExpertID = expertID
	t.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// RecordRedirect hands the ticket from the current assignee to targetID.
//
// # Description
//
// Appends the current assignee to RedirectHistory, increments RedirectCount
// and reassigns the ticket, keeping the count/history invariant intact.
// allowReassign bypasses the repeat-target check for operator-forced
// reassignment; the budget and requester checks are never bypassed.
//
// # Outputs
//
//   - error: Non-nil if the budget is exhausted, the target already handled
//     the ticket (and allowReassign is false), or targetID is empty.
func (t *TicketContext) RecordRedirect(targetID string, allowReassign bool) error {
	if targetID == "" {
		return fmt.Errorf("redirect: empty target expert id for ticket %s", t.ID)
	}
	if targetID == t.RequesterID {
		return fmt.Errorf("redirect: ticket %s cannot be handed to its requester", t.ID)
	}
	if !t.CanRedirect() {
		return fmt.Errorf("redirect: ticket %s exhausted its budget of %d",
			t.ID, t.MaxRedirects)
	}
	if !allowReassign && t.HasHandled(targetID) {
		return fmt.Errorf("redirect: expert %s already handled ticket %s",
			targetID, t.ID)
	}
	t.RedirectHistory = append(t.RedirectHistory, t.AssignedExpertID)
	t.RedirectCount++
	t.AssignedExpertID = targetID
	t.UpdatedAt = time.Now().UnixMilli()
	return nil
}
