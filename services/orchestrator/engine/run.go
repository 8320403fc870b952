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
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/calls"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/observability"
)

// RunRequest is a validated support request entering the workflow.
type RunRequest struct {
	Query       string
	RequesterID string
	Channel     string
	Metadata    map[string]string
}

// Run executes the initial workflow pipeline for a fresh support request.
//
// # Description
//
// Creates the durable ticket, then walks the graph from
// coordinator_reformulate. The invocation returns when the request resolves
// directly, is rejected as out of scope, escalates, or suspends pending an
// expert call. A failed step never surfaces as an error to the caller; it
// takes the failed edge and returns a composed fallback result.
//
// # Outputs
//
//   - *datatypes.FinalResult: Always non-nil when error is nil, with a
//     non-empty Message.
//   - error: Non-nil only when the ticket itself could not be created.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*datatypes.FinalResult, error) {
	ctx, span := tracer.Start(ctx, "Engine.Run",
		trace.WithAttributes(attribute.String("request.channel", req.Channel)))
	defer span.End()

	ticket := datatypes.NewTicket(subjectLine(req.Query), req.Query, req.RequesterID, req.Channel)
	if err := e.store.PutTicket(ctx, ticket); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("ticket.id", ticket.ID))

	unlock := e.lockTicket(ticket.ID)
	defer unlock()

	state := datatypes.NewWorkflowState(ticket.ID, req.Query, req.Metadata)
	state.Exclude(req.RequesterID)
	final := e.runInitial(ctx, state, ticket)
	e.metrics.RecordRun(observability.EntryRun, string(final.Status))
	return final, nil
}

// runInitial walks the pre-call half of the graph.
func (e *Engine) runInitial(ctx context.Context, state *datatypes.WorkflowState, ticket *datatypes.TicketContext) *datatypes.FinalResult {
	out, err := e.execStep(ctx, state, datatypes.StepReformulate, func(ctx context.Context) (datatypes.StepOutput, error) {
		text, err := e.gateway.Reformulate(ctx, state.Query)
		return datatypes.StepOutput{Text: text}, err
	})
	if err != nil {
		return e.failRun(ticket.ID, out)
	}
	query := out.Text

	out, err = e.execStep(ctx, state, datatypes.StepKnowledgeSearch, func(ctx context.Context) (datatypes.StepOutput, error) {
		k, err := e.gateway.SearchKnowledge(ctx, query)
		return datatypes.StepOutput{Knowledge: k}, err
	})
	if err != nil {
		return e.failRun(ticket.ID, out)
	}
	knowledge := out.Knowledge

	switch routeAfterSearch(knowledge) {
	case routeDirectAnswer:
		return composeFinal(ticket.ID, "", datatypes.Outcome{
			Kind:   datatypes.OutcomeDirectAnswer,
			Answer: knowledge.Answer,
		})
	case routeOutOfScope:
		return composeFinal(ticket.ID, "", datatypes.Outcome{
			Kind:   datatypes.OutcomeOutOfScope,
			Reason: knowledge.Answer,
		})
	}

	var candidate *datatypes.EmployeeCandidate
	out, err = e.execStep(ctx, state, datatypes.StepExpertMatch, func(ctx context.Context) (datatypes.StepOutput, error) {
		c, found, err := e.selector.MatchForQuery(ctx, query, state.ExclusionsWith(ticket.ExcludedExperts()))
		if err != nil {
			return datatypes.StepOutput{}, err
		}
		if found {
			candidate = c
		}
		return datatypes.StepOutput{Match: &datatypes.MatchResult{Candidate: candidate}}, nil
	})
	if err != nil {
		return e.failRun(ticket.ID, out)
	}
	if candidate == nil {
		e.metrics.RecordEscalation(observability.EscalationNoCandidate)
		return composeFinal(ticket.ID, "", datatypes.Outcome{
			Kind:   datatypes.OutcomeEscalated,
			Reason: "no eligible expert is available",
		})
	}

	assign := func(ctx context.Context) error {
		if err := ticket.Assign(candidate.ID); err != nil {
			return err
		}
		return e.store.PutTicket(ctx, ticket)
	}
	session, out, err := e.initiateCall(ctx, state, ticket, calls.InitiateRequest{
		TicketID: ticket.ID,
		ExpertID: candidate.ID,
	}, assign)
	if err != nil {
		return e.failRun(ticket.ID, out)
	}
	e.metrics.CallStarted()

	return composeFinal(ticket.ID, session.ID, datatypes.Outcome{
		Kind:   datatypes.OutcomeHumanAssigned,
		Expert: candidate,
	})
}

// failRun takes the failed edge for the initial pipeline.
func (e *Engine) failRun(ticketID string, out datatypes.StepOutput) *datatypes.FinalResult {
	e.metrics.RecordEscalation(observability.EscalationStepFailed)
	return composeFailure(ticketID, out)
}

// initiateCall runs the call_initiate step: persist the assignment, open
// the session, ask the notifier to place the call. An initiation that is
// cancelled or rejected after the session was opened is compensated so the
// ticket never keeps a phantom open call.
func (e *Engine) initiateCall(ctx context.Context, state *datatypes.WorkflowState, ticket *datatypes.TicketContext, initReq calls.InitiateRequest, assign func(context.Context) error) (*datatypes.CallSession, datatypes.StepOutput, error) {
	var session *datatypes.CallSession
	out, err := e.execStep(ctx, state, datatypes.StepCallInitiate, func(ctx context.Context) (datatypes.StepOutput, error) {
		if assign != nil {
			if err := assign(ctx); err != nil {
				return datatypes.StepOutput{}, err
			}
		}
		s, err := e.tracker.Initiate(ctx, initReq)
		if err != nil {
			return datatypes.StepOutput{}, err
		}
		if err := e.notifier.NotifyCallRequested(ctx, s, ticket); err != nil {
			e.compensateInitiation(ctx, ticket.ID, s.ID)
			return datatypes.StepOutput{}, err
		}
		if err := ctx.Err(); err != nil {
			e.compensateInitiation(ctx, ticket.ID, s.ID)
			return datatypes.StepOutput{}, err
		}
		session = s
		return datatypes.StepOutput{Call: &datatypes.CallRef{
			SessionID: s.ID,
			ExpertID:  s.ExpertID,
		}}, nil
	})
	return session, out, err
}

// compensateInitiation closes a session whose initiation did not complete
// and withdraws the placement request. Runs detached from the caller's
// cancellation so the compensation itself cannot be cancelled.
func (e *Engine) compensateInitiation(ctx context.Context, ticketID, sessionID string) {
	base := context.WithoutCancel(ctx)
	final := composeFailure(ticketID, datatypes.StepOutput{
		Step:       datatypes.StepCallInitiate,
		Status:     datatypes.StepFailed,
		FailReason: datatypes.FailCancelled,
	})
	if err := e.tracker.CancelInitiated(base, sessionID, final); err != nil {
		slogCompensationError("cancel initiated session", sessionID, err)
	}
	if err := e.notifier.CancelCallRequest(base, sessionID); err != nil {
		slogCompensationError("cancel call request", sessionID, err)
	}
}
