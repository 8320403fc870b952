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
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianDesk/services/agents"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/calls"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/redirect"
)

// ResumeAfterCall resumes the workflow when an expert call ends.
//
// # Description
//
// The pipeline enters at call_ended: the session transitions to its
// terminal status (idempotently; a duplicate notification replays the
// cached result), the transcript is analyzed for a redirect verdict, and
// the ticket either hands off to the next expert or composes its final
// answer.
//
// The whole dispatch, semaphore wait included, is bounded by the resume
// timeout. On expiry the caller receives a pending result and the session
// stays ended with one analysis retry left; the next call-ended
// notification for the session picks the work back up. After the retry
// budget is spent the ticket escalates instead of analyzing again.
//
// # Outputs
//
//   - *datatypes.FinalResult: Always non-nil when error is nil.
//   - error: Unknown session or persistence failure before the pipeline
//     could produce a result.
func (e *Engine) ResumeAfterCall(ctx context.Context, sessionID string, transcript []datatypes.TranscriptEntry) (*datatypes.FinalResult, error) {
	ctx, span := tracer.Start(ctx, "Engine.ResumeAfterCall")
	defer span.End()
	span.SetAttributes(attribute.String("call.session_id", sessionID))

	rctx, cancel := context.WithTimeout(ctx, e.cfg.ResumeTimeout)
	defer cancel()

	session, err := e.store.GetSession(rctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := e.resumeSem.Acquire(rctx, 1); err != nil {
		// The worker pool stayed saturated past the resume deadline.
		e.metrics.RecordResumeTimeout()
		e.metrics.RecordRun(observability.EntryResume, string(datatypes.StatusPending))
		return composePending(session.TicketID, sessionID), nil
	}
	defer e.resumeSem.Release(1)

	unlock := e.lockTicket(session.TicketID)
	defer unlock()

	session, alreadyEnded, err := e.tracker.MarkEnded(rctx, sessionID, transcript)
	if err != nil {
		return nil, err
	}
	if alreadyEnded && session.EndResult != nil {
		final := replayEndResult(session)
		e.metrics.RecordRun(observability.EntryResume, string(final.Status))
		return final, nil
	}
	if !alreadyEnded {
		e.metrics.CallEnded()
	}

	ticket, err := e.store.GetTicket(rctx, session.TicketID)
	if err != nil {
		return nil, err
	}

	attempts, err := e.tracker.RecordAnalysisAttempt(rctx, sessionID)
	if err != nil {
		return nil, err
	}
	if attempts > maxAnalysisAttempts {
		e.metrics.RecordEscalation(observability.EscalationAnalysisExhausted)
		final := composeFinal(ticket.ID, "", datatypes.Outcome{
			Kind:   datatypes.OutcomeEscalated,
			Reason: "transcript analysis retry budget exhausted",
		})
		e.cacheEndResult(rctx, sessionID, datatypes.EndResult{Final: final})
		e.metrics.RecordRun(observability.EntryResume, string(final.Status))
		return final, nil
	}

	state := datatypes.NewWorkflowState(ticket.ID, ticket.Description, nil)
	state.Exclude(ticket.RequesterID)
	if err := state.AppendResult(datatypes.StepOutput{
		Step:   datatypes.StepCallEnded,
		Status: datatypes.StepSuccess,
	}); err != nil {
		slog.Error("workflow ledger rejected call_ended entry",
			"ticket_id", ticket.ID, "error", err)
	}

	final, err := e.resumePipeline(rctx, state, ticket, session)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.metrics.RecordResumeTimeout()
			e.metrics.RecordRun(observability.EntryResume, string(datatypes.StatusPending))
			return composePending(ticket.ID, sessionID), nil
		}
		return nil, err
	}
	e.metrics.RecordRun(observability.EntryResume, string(final.Status))
	return final, nil
}

// resumePipeline walks the post-call half of the graph. Terminal results
// are cached on the session before returning so duplicate notifications
// replay them.
func (e *Engine) resumePipeline(ctx context.Context, state *datatypes.WorkflowState, ticket *datatypes.TicketContext, session *datatypes.CallSession) (*datatypes.FinalResult, error) {
	var req *datatypes.RedirectRequest
	out, err := e.execStep(ctx, state, datatypes.StepRedirectAnalyze, func(ctx context.Context) (datatypes.StepOutput, error) {
		r, err := e.analyzer.Analyze(ctx, session.Transcript)
		if err != nil {
			return datatypes.StepOutput{}, err
		}
		req = r
		return datatypes.StepOutput{Redirect: r}, nil
	})
	if err != nil {
		return e.failResume(ctx, ticket, session, out)
	}

	if req.Requested {
		return e.handOff(ctx, state, ticket, session, req)
	}
	return e.composeResolution(ctx, state, ticket, session)
}

// handOff redirects the ticket to the next expert, or escalates when loop
// prevention or candidate search says no.
func (e *Engine) handOff(ctx context.Context, state *datatypes.WorkflowState, ticket *datatypes.TicketContext, session *datatypes.CallSession, req *datatypes.RedirectRequest) (*datatypes.FinalResult, error) {
	// The requester (and anything else the invocation excluded) must not
	// come back as a hand-off target, even when named in the transcript.
	req.ExcludeIdentities = state.ExclusionsWith(req.ExcludeIdentities)

	var candidate *datatypes.EmployeeCandidate
	var selection redirect.SelectionOutcome
	out, err := e.execStep(ctx, state, datatypes.StepCandidateSelect, func(ctx context.Context) (datatypes.StepOutput, error) {
		c, o, err := e.selector.Select(ctx, req, ticket)
		if err != nil {
			return datatypes.StepOutput{}, err
		}
		candidate, selection = c, o
		return datatypes.StepOutput{Match: &datatypes.MatchResult{Candidate: c}}, nil
	})
	if err != nil {
		return e.failResume(ctx, ticket, session, out)
	}

	switch selection {
	case redirect.EscalationRequired:
		e.metrics.RecordEscalation(observability.EscalationLoopExceeded)
		final := composeFinal(ticket.ID, "", datatypes.Outcome{
			Kind:   datatypes.OutcomeEscalated,
			Reason: "redirect budget exhausted",
		})
		e.cacheEndResult(ctx, session.ID, datatypes.EndResult{Final: final})
		return final, nil

	case redirect.NotFound:
		e.metrics.RecordEscalation(observability.EscalationNoCandidate)
		final := composeFinal(ticket.ID, "", datatypes.Outcome{
			Kind:   datatypes.OutcomeEscalated,
			Reason: "no eligible expert for the requested hand-off",
		})
		e.cacheEndResult(ctx, session.ID, datatypes.EndResult{Final: final})
		return final, nil
	}

	assign := func(ctx context.Context) error {
		if err := ticket.RecordRedirect(candidate.ID, e.cfg.AllowReassign); err != nil {
			return err
		}
		return e.store.PutTicket(ctx, ticket)
	}
	next, out, err := e.initiateCall(ctx, state, ticket, calls.InitiateRequest{
		TicketID:       ticket.ID,
		ExpertID:       candidate.ID,
		RedirectedFrom: session.ExpertID,
		RedirectReason: req.Reason,
	}, assign)
	if err != nil {
		return e.failResume(ctx, ticket, session, out)
	}
	e.metrics.RecordRedirect()
	e.metrics.CallStarted()
	final := composeFinal(ticket.ID, next.ID, datatypes.Outcome{
		Kind:   datatypes.OutcomeHumanAssigned,
		Expert: candidate,
	})
	e.cacheEndResult(ctx, session.ID, datatypes.EndResult{
		Redirected:    true,
		NextSessionID: next.ID,
		Final:         final,
	})
	return final, nil
}

// composeResolution synthesizes the transcript into the final answer.
// An empty synthesis fails closed to the composer's template text; the
// call still counts as resolved.
func (e *Engine) composeResolution(ctx context.Context, state *datatypes.WorkflowState, ticket *datatypes.TicketContext, session *datatypes.CallSession) (*datatypes.FinalResult, error) {
	out, err := e.execStep(ctx, state, datatypes.StepFinalCompose, func(ctx context.Context) (datatypes.StepOutput, error) {
		flattened := flattenTranscript(session.Transcript)
		if flattened == "" {
			return datatypes.StepOutput{}, nil
		}
		summary, err := e.gateway.SummarizeCall(ctx, ticket.Description, flattened)
		if err != nil {
			if errors.Is(err, agents.ErrSchemaViolation) {
				slog.Warn("call summary violated schema, using fallback text",
					"session_id", session.ID, "error", err)
				return datatypes.StepOutput{}, nil
			}
			return datatypes.StepOutput{}, err
		}
		return datatypes.StepOutput{Text: summary}, nil
	})
	if err != nil {
		return e.failResume(ctx, ticket, session, out)
	}

	final := composeFinal(ticket.ID, "", datatypes.Outcome{
		Kind:   datatypes.OutcomeCallResolved,
		Answer: out.Text,
	})
	e.cacheEndResult(ctx, session.ID, datatypes.EndResult{Final: final})
	return final, nil
}

// failResume takes the failed edge for the resume pipeline. When the
// resume budget itself has expired the failure is not cached, so the next
// notification can retry instead of replaying a timeout.
func (e *Engine) failResume(ctx context.Context, ticket *datatypes.TicketContext, session *datatypes.CallSession, out datatypes.StepOutput) (*datatypes.FinalResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.metrics.RecordEscalation(observability.EscalationStepFailed)
	final := composeFailure(ticket.ID, out)
	e.cacheEndResult(ctx, session.ID, datatypes.EndResult{Final: final})
	return final, nil
}

// cacheEndResult stores the processed outcome on the session, detached
// from the caller's cancellation.
func (e *Engine) cacheEndResult(ctx context.Context, sessionID string, result datatypes.EndResult) {
	if err := e.tracker.RecordEndResult(context.WithoutCancel(ctx), sessionID, result); err != nil {
		slog.Error("failed to cache call end result",
			"session_id", sessionID, "error", err)
	}
}

// replayEndResult renders the cached outcome of an already-processed
// call-ended event. The composed result of the first invocation is
// returned verbatim; the synthetic fallbacks below only cover sessions
// persisted before the result itself was cached.
func replayEndResult(session *datatypes.CallSession) *datatypes.FinalResult {
	result := session.EndResult
	if result.Final != nil {
		return result.Final
	}
	if result.Redirected {
		return &datatypes.FinalResult{
			TicketID:  session.TicketID,
			SessionID: result.NextSessionID,
			Status:    datatypes.StatusPending,
			Message: "This call was already processed and the ticket was handed " +
				"to the next expert.",
		}
	}
	return composePending(session.TicketID, session.ID)
}
