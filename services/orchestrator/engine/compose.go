// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// The final composer is template-only: it never calls a model and never
// returns an empty message. Synthesis of transcript text into an answer
// happens before composition, in the summarize step.

// composeFinal renders the terminal FinalResult for an outcome.
//
// sessionID is set for HumanAssigned, where the result is pending on the
// call it references; other outcomes pass "".
func composeFinal(ticketID, sessionID string, outcome datatypes.Outcome) *datatypes.FinalResult {
	result := &datatypes.FinalResult{
		TicketID:  ticketID,
		SessionID: sessionID,
		Status:    statusFor(outcome.Kind),
		Outcome:   &outcome,
	}

	switch outcome.Kind {
	case datatypes.OutcomeDirectAnswer:
		result.Message = outcome.Answer

	case datatypes.OutcomeOutOfScope:
		result.Message = "This request falls outside what this support desk handles."
		if outcome.Reason != "" {
			result.Message += " " + outcome.Reason
		}

	case datatypes.OutcomeHumanAssigned:
		name := "a specialist"
		if outcome.Expert != nil && outcome.Expert.Name != "" {
			name = outcome.Expert.Name
			if outcome.Expert.Role != "" {
				name += " (" + outcome.Expert.Role + ")"
			}
		}
		result.Message = fmt.Sprintf(
			"Your request is being handled by %s. They will contact you shortly.", name)

	case datatypes.OutcomeCallResolved:
		result.Message = outcome.Answer
		if result.Message == "" {
			result.Message = "The call with our specialist has completed and a summary " +
				"has been recorded on your ticket."
		}

	case datatypes.OutcomeEscalated:
		result.Message = "We could not resolve this request automatically. " +
			"Your ticket has been escalated to a human agent who will follow up."

	default:
		result.Status = datatypes.StatusEscalated
		result.Message = "Your request has been recorded. A human agent will follow up."
	}
	return result
}

// statusFor maps an outcome variant to its machine-readable status.
func statusFor(kind datatypes.OutcomeKind) datatypes.ResultStatus {
	switch kind {
	case datatypes.OutcomeDirectAnswer, datatypes.OutcomeCallResolved:
		return datatypes.StatusResolved
	case datatypes.OutcomeOutOfScope:
		return datatypes.StatusOutOfScope
	case datatypes.OutcomeHumanAssigned:
		return datatypes.StatusPending
	default:
		return datatypes.StatusEscalated
	}
}

// composeFailure renders the fallback FinalResult for a failed step. Users
// see a composed sentence on every failure path, never an error string.
func composeFailure(ticketID string, out datatypes.StepOutput) *datatypes.FinalResult {
	reason := fmt.Sprintf("processing failed at %s (%s)", out.Step, out.FailReason)
	outcome := &datatypes.Outcome{Kind: datatypes.OutcomeEscalated, Reason: reason}

	result := &datatypes.FinalResult{
		TicketID: ticketID,
		Status:   datatypes.StatusEscalated,
		Outcome:  outcome,
	}

	switch out.FailReason {
	case datatypes.FailTimeout:
		result.Status = datatypes.StatusTimeout
		result.Message = "Processing your request took longer than expected. " +
			"Your ticket has been escalated to a human agent who will follow up."
	case datatypes.FailCancelled:
		result.Message = "Processing was interrupted before your request completed. " +
			"Your ticket has been escalated to a human agent who will follow up."
	default:
		result.Message = "Something went wrong while processing your request. " +
			"Your ticket has been escalated to a human agent who will follow up."
	}
	return result
}

// composePending renders the non-terminal result returned while transcript
// analysis is still running for a session.
func composePending(ticketID, sessionID string) *datatypes.FinalResult {
	return &datatypes.FinalResult{
		TicketID:  ticketID,
		SessionID: sessionID,
		Status:    datatypes.StatusPending,
		Message:   "The call has ended and is still being processed. Check back shortly.",
	}
}
