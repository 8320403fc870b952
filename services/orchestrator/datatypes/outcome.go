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

// =============================================================================
// Outcome
// =============================================================================

// OutcomeKind is the closed set of ways a support request concludes.
// The final composer switches exhaustively over these; adding a variant
// without a template is a compile-time-visible omission, not a silent
// fallthrough.
type OutcomeKind string

const (
	// OutcomeDirectAnswer means the knowledge base answered the request
	// without involving a human expert.
	OutcomeDirectAnswer OutcomeKind = "direct_answer"

	// OutcomeOutOfScope means the request falls outside the support
	// domain this deployment answers for.
	OutcomeOutOfScope OutcomeKind = "out_of_scope"

	// OutcomeHumanAssigned means an expert accepted the ticket and a call
	// is being arranged.
	OutcomeHumanAssigned OutcomeKind = "human_assigned"

	// OutcomeCallResolved means an expert call ended with no further
	// redirect and the transcript was synthesized into an answer.
	OutcomeCallResolved OutcomeKind = "call_resolved"

	// OutcomeEscalated means automation gave up: no eligible expert, the
	// redirect budget ran out, or a processing failure forced the ticket
	// to a human queue.
	OutcomeEscalated OutcomeKind = "escalated"
)

// Outcome is the typed conclusion handed to the final composer.
// Which auxiliary fields are meaningful depends on Kind.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Answer carries the knowledge-base answer for DirectAnswer and the
	// call summary for CallResolved.
	Answer string `json:"answer,omitempty"`

	// Expert is the assigned candidate for HumanAssigned.
	Expert *EmployeeCandidate `json:"expert,omitempty"`

	// Reason explains an Escalated or OutOfScope conclusion.
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Final Result
// =============================================================================

// ResultStatus is the machine-readable status on every FinalResult.
type ResultStatus string

const (
	StatusResolved   ResultStatus = "resolved"
	StatusOutOfScope ResultStatus = "out_of_scope"
	StatusEscalated  ResultStatus = "escalated"
	StatusTimeout    ResultStatus = "timeout"

	// StatusPending means the workflow suspended: a call is in flight or
	// transcript analysis is still running. The caller should poll or
	// wait for the next call-ended notification.
	StatusPending ResultStatus = "pending"
)

// FinalResult is what every engine invocation returns to its caller.
//
// Message is always non-empty, including on every failure path; users see
// a composed sentence, never an error string or an empty body. SessionID
// is set when Status is pending on an in-flight call.
type FinalResult struct {
	TicketID  string       `json:"ticket_id"`
	SessionID string       `json:"session_id,omitempty"`
	Status    ResultStatus `json:"status"`
	Message   string       `json:"message"`
	Outcome   *Outcome     `json:"outcome,omitempty"`
}
