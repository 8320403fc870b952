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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDesk/services/agents"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/directory"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/store"
)

// fakeGateway scripts agent responses per role. Unset funcs get harmless
// defaults so tests only script the roles they exercise.
type fakeGateway struct {
	reformulateFunc func(ctx context.Context, query string) (string, error)
	searchFunc      func(ctx context.Context, query string) (*datatypes.KnowledgeResult, error)
	extractFunc     func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error)
	summarizeFunc   func(ctx context.Context, query, transcript string) (string, error)

	extractCalls   int
	summarizeCalls int
}

func (f *fakeGateway) Reformulate(ctx context.Context, query string) (string, error) {
	if f.reformulateFunc != nil {
		return f.reformulateFunc(ctx, query)
	}
	return query, nil
}

func (f *fakeGateway) SearchKnowledge(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
	if f.searchFunc != nil {
		return f.searchFunc(ctx, query)
	}
	return &datatypes.KnowledgeResult{
		Scope:      datatypes.ScopeWithin,
		Found:      datatypes.InfoNo,
		Confidence: datatypes.ConfidenceNone,
	}, nil
}

func (f *fakeGateway) ExtractRedirect(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
	f.extractCalls++
	if f.extractFunc != nil {
		return f.extractFunc(ctx, transcript)
	}
	return &datatypes.RedirectRequest{}, nil
}

func (f *fakeGateway) SummarizeCall(ctx context.Context, query, transcript string) (string, error) {
	f.summarizeCalls++
	if f.summarizeFunc != nil {
		return f.summarizeFunc(ctx, query, transcript)
	}
	return "summary of the call", nil
}

var _ agents.Gateway = (*fakeGateway)(nil)

// fakeNotifier records placement requests and cancellations.
type fakeNotifier struct {
	notified  []string
	cancelled []string
	notifyErr error
}

func (f *fakeNotifier) NotifyCallRequested(ctx context.Context, session *datatypes.CallSession, ticket *datatypes.TicketContext) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, session.ID)
	return nil
}

func (f *fakeNotifier) CancelCallRequest(ctx context.Context, sessionID string) error {
	f.cancelled = append(f.cancelled, sessionID)
	return nil
}

func testRoster() *directory.Memory {
	return directory.NewMemory(
		datatypes.EmployeeCandidate{
			ID: "e-ana", Name: "ana.silva", Role: "payroll specialist",
			Skills: []string{"payroll"}, Availability: datatypes.AvailabilityAvailable, Workload: 1,
		},
		datatypes.EmployeeCandidate{
			ID: "e-bo", Name: "bo.chen", Role: "benefits specialist",
			Skills: []string{"benefits"}, Availability: datatypes.AvailabilityAvailable, Workload: 0,
		},
	)
}

func newTestEngine(t *testing.T, gw *fakeGateway, dir directory.Directory, notifier Notifier, cfg Config) (*Engine, store.Store) {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(gw, dir, st, notifier, nil, cfg), st
}

// runToPending submits a request that lands on an expert call and returns
// the ticket and session ids.
func runToPending(t *testing.T, e *Engine) (string, string) {
	t.Helper()
	final, err := e.Run(context.Background(), RunRequest{Query: "payroll deduction looks wrong"})
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusPending, final.Status)
	require.NotEmpty(t, final.SessionID)
	return final.TicketID, final.SessionID
}

// =============================================================================
// Initial pipeline
// =============================================================================

func TestRun_DirectAnswer(t *testing.T) {
	gw := &fakeGateway{
		searchFunc: func(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
			return &datatypes.KnowledgeResult{
				Scope:      datatypes.ScopeWithin,
				Found:      datatypes.InfoYes,
				Confidence: datatypes.ConfidenceHigh,
				Answer:     "Reset your badge at the front desk kiosk.",
			}, nil
		},
	}
	notifier := &fakeNotifier{}
	e, _ := newTestEngine(t, gw, testRoster(), notifier, Config{})

	final, err := e.Run(context.Background(), RunRequest{Query: "how do I reset my badge"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusResolved, final.Status)
	assert.Equal(t, "Reset your badge at the front desk kiosk.", final.Message)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, datatypes.OutcomeDirectAnswer, final.Outcome.Kind)
	assert.Empty(t, notifier.notified)
}

func TestRun_OutOfScope(t *testing.T) {
	gw := &fakeGateway{
		searchFunc: func(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
			return &datatypes.KnowledgeResult{
				Scope:      datatypes.ScopeOutside,
				Found:      datatypes.InfoNo,
				Confidence: datatypes.ConfidenceNone,
			}, nil
		},
	}
	e, _ := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})

	final, err := e.Run(context.Background(), RunRequest{Query: "what is the weather tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusOutOfScope, final.Status)
	assert.NotEmpty(t, final.Message)
}

func TestRun_LowConfidenceHandsToExpert(t *testing.T) {
	gw := &fakeGateway{
		searchFunc: func(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
			return &datatypes.KnowledgeResult{
				Scope:      datatypes.ScopeWithin,
				Found:      datatypes.InfoPartial,
				Confidence: datatypes.ConfidenceLow,
				Answer:     "something vague",
			}, nil
		},
	}
	notifier := &fakeNotifier{}
	e, st := newTestEngine(t, gw, testRoster(), notifier, Config{})

	ticketID, sessionID := runToPending(t, e)

	require.Len(t, notifier.notified, 1)
	assert.Equal(t, sessionID, notifier.notified[0])

	ticket, err := st.GetTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, "e-ana", ticket.AssignedExpertID)
	assert.Equal(t, 0, ticket.RedirectCount)

	open, err := st.OpenSessionForTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, open.ID)
	assert.Equal(t, datatypes.CallInitiated, open.Status)
}

func TestRun_NoExpertEscalates(t *testing.T) {
	e, _ := newTestEngine(t, &fakeGateway{}, directory.NewMemory(), &fakeNotifier{}, Config{})

	final, err := e.Run(context.Background(), RunRequest{Query: "payroll deduction looks wrong"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)
	assert.NotEmpty(t, final.Message)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, datatypes.OutcomeEscalated, final.Outcome.Kind)
}

func TestRun_NeverAssignsRequester(t *testing.T) {
	// The roster knows only the person who opened the request.
	roster := directory.NewMemory(
		datatypes.EmployeeCandidate{
			ID: "u-sam", Name: "sam.reyes", Role: "payroll specialist",
			Skills: []string{"payroll"}, Availability: datatypes.AvailabilityAvailable,
		},
	)
	e, st := newTestEngine(t, &fakeGateway{}, roster, &fakeNotifier{}, Config{})

	final, err := e.Run(context.Background(), RunRequest{
		Query:       "payroll deduction looks wrong",
		RequesterID: "u-sam",
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, datatypes.OutcomeEscalated, final.Outcome.Kind)

	ticket, err := st.GetTicket(context.Background(), final.TicketID)
	require.NoError(t, err)
	assert.Empty(t, ticket.AssignedExpertID)
}

func TestRun_RequesterInRosterPicksSomeoneElse(t *testing.T) {
	roster := directory.NewMemory(
		datatypes.EmployeeCandidate{
			ID: "u-sam", Name: "sam.reyes", Role: "payroll specialist",
			Skills: []string{"payroll"}, Availability: datatypes.AvailabilityAvailable, Workload: 0,
		},
		datatypes.EmployeeCandidate{
			ID: "e-ana", Name: "ana.silva", Role: "payroll specialist",
			Skills: []string{"payroll"}, Availability: datatypes.AvailabilityAvailable, Workload: 5,
		},
	)
	e, st := newTestEngine(t, &fakeGateway{}, roster, &fakeNotifier{}, Config{})

	final, err := e.Run(context.Background(), RunRequest{
		Query:       "payroll deduction looks wrong",
		RequesterID: "u-sam",
	})
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusPending, final.Status)

	ticket, err := st.GetTicket(context.Background(), final.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "e-ana", ticket.AssignedExpertID)
}

func TestRun_GatewayFailureTakesFailedEdge(t *testing.T) {
	gw := &fakeGateway{
		searchFunc: func(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
			return nil, agents.ErrAgentUnavailable
		},
	}
	e, _ := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})

	final, err := e.Run(context.Background(), RunRequest{Query: "payroll deduction looks wrong"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)
	assert.NotEmpty(t, final.Message)
	assert.NotContains(t, final.Message, "error")
}

func TestRun_NotifierFailureCompensates(t *testing.T) {
	notifier := &fakeNotifier{notifyErr: errors.New("voice stack rejected the request")}
	e, st := newTestEngine(t, &fakeGateway{}, testRoster(), notifier, Config{})

	final, err := e.Run(context.Background(), RunRequest{Query: "payroll deduction looks wrong"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)
	require.Len(t, notifier.cancelled, 1)

	// The compensated session must not hold the ticket open.
	_, err = st.OpenSessionForTicket(context.Background(), final.TicketID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

// =============================================================================
// Resume pipeline
// =============================================================================

func TestResume_NoRedirectResolvesWithSummary(t *testing.T) {
	gw := &fakeGateway{
		summarizeFunc: func(ctx context.Context, query, transcript string) (string, error) {
			return "The deduction was a one-off correction from March.", nil
		},
	}
	e, _ := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})
	_, sessionID := runToPending(t, e)

	transcript := []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "this was the March correction"},
		{Speaker: "caller", Text: "got it, thanks"},
	}
	final, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusResolved, final.Status)
	assert.Equal(t, "The deduction was a one-off correction from March.", final.Message)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, datatypes.OutcomeCallResolved, final.Outcome.Kind)
	assert.Equal(t, 1, gw.summarizeCalls)
}

func TestResume_DuplicateNotificationReplaysCachedResult(t *testing.T) {
	gw := &fakeGateway{}
	e, _ := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})
	_, sessionID := runToPending(t, e)

	transcript := []datatypes.TranscriptEntry{{Speaker: "expert", Text: "resolved it"}}
	first, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusResolved, first.Status)

	// Second notification: no re-analysis, no second summary, same result.
	second, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, 1, gw.extractCalls)
	assert.Equal(t, 1, gw.summarizeCalls)
}

func TestResume_RedirectHandsOffToNamedExpert(t *testing.T) {
	gw := &fakeGateway{
		extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
			return &datatypes.RedirectRequest{
				Requested:  true,
				TargetName: "bo.chen",
				Reason:     "this is a benefits question",
			}, nil
		},
	}
	notifier := &fakeNotifier{}
	e, st := newTestEngine(t, gw, testRoster(), notifier, Config{})
	ticketID, sessionID := runToPending(t, e)

	transcript := []datatypes.TranscriptEntry{{Speaker: "expert", Text: "ask bo.chen"}}
	final, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusPending, final.Status)
	require.NotEmpty(t, final.SessionID)
	assert.NotEqual(t, sessionID, final.SessionID)

	ticket, err := st.GetTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, "e-bo", ticket.AssignedExpertID)
	assert.Equal(t, 1, ticket.RedirectCount)
	assert.Equal(t, []string{"e-ana"}, ticket.RedirectHistory)

	// The ended session carries the hand-off in its cached result.
	ended, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndResult)
	assert.True(t, ended.EndResult.Redirected)
	assert.Equal(t, final.SessionID, ended.EndResult.NextSessionID)

	next, err := st.GetSession(context.Background(), final.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "e-ana", next.RedirectedFrom)
	assert.Equal(t, "this is a benefits question", next.RedirectReason)
}

func TestResume_DuplicateNotificationAfterRedirectReplaysHandOff(t *testing.T) {
	gw := &fakeGateway{
		extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
			return &datatypes.RedirectRequest{
				Requested:  true,
				TargetName: "bo.chen",
				Reason:     "this is a benefits question",
			}, nil
		},
	}
	e, st := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})
	ticketID, sessionID := runToPending(t, e)

	transcript := []datatypes.TranscriptEntry{{Speaker: "expert", Text: "ask bo.chen"}}
	first, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusPending, first.Status)
	require.NotEmpty(t, first.SessionID)

	// The duplicate gets the hand-off result verbatim, not a substitute.
	second, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.Message, second.Message)
	require.NotNil(t, second.Outcome)
	assert.Equal(t, datatypes.OutcomeHumanAssigned, second.Outcome.Kind)
	assert.Equal(t, 1, gw.extractCalls)

	// No second hand-off happened under the covers.
	ticket, err := st.GetTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.RedirectCount)
}

func TestResume_RedirectToRequesterEscalates(t *testing.T) {
	roster := directory.NewMemory(
		datatypes.EmployeeCandidate{
			ID: "e-ana", Name: "ana.silva", Role: "payroll specialist",
			Skills: []string{"payroll"}, Availability: datatypes.AvailabilityAvailable,
		},
		datatypes.EmployeeCandidate{
			ID: "u-sam", Name: "sam.reyes", Role: "payroll specialist",
			Skills: []string{"payroll"}, Availability: datatypes.AvailabilityAvailable,
		},
	)
	gw := &fakeGateway{
		extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
			return &datatypes.RedirectRequest{Requested: true, TargetName: "sam.reyes"}, nil
		},
	}
	e, st := newTestEngine(t, gw, roster, &fakeNotifier{}, Config{})

	final, err := e.Run(context.Background(), RunRequest{
		Query:       "payroll deduction looks wrong",
		RequesterID: "u-sam",
	})
	require.NoError(t, err)
	require.Equal(t, datatypes.StatusPending, final.Status)

	// The expert hands the call back to the person who opened the ticket.
	resumed, err := e.ResumeAfterCall(context.Background(), final.SessionID, []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "sam knows this one"},
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, resumed.Status)

	ticket, err := st.GetTicket(context.Background(), final.TicketID)
	require.NoError(t, err)
	assert.NotEqual(t, "u-sam", ticket.AssignedExpertID)
	assert.Equal(t, 0, ticket.RedirectCount)
}

func TestResume_RedirectBackToCurrentHolderEscalates(t *testing.T) {
	gw := &fakeGateway{
		extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
			return &datatypes.RedirectRequest{Requested: true, TargetName: "ana.silva"}, nil
		},
	}
	e, st := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})
	ticketID, sessionID := runToPending(t, e)

	transcript := []datatypes.TranscriptEntry{{Speaker: "expert", Text: "send it back to ana"}}
	final, err := e.ResumeAfterCall(context.Background(), sessionID, transcript)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)

	ticket, err := st.GetTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, 0, ticket.RedirectCount)
}

func TestResume_RedirectBudgetExhaustedEscalates(t *testing.T) {
	gw := &fakeGateway{
		extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
			return &datatypes.RedirectRequest{Requested: true, TargetName: "bo.chen"}, nil
		},
	}
	e, st := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})
	ticketID, sessionID := runToPending(t, e)

	ctx := context.Background()
	ticket, err := st.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	ticket.RedirectCount = ticket.MaxRedirects
	ticket.RedirectHistory = []string{"e-1", "e-2", "e-3"}
	require.NoError(t, st.PutTicket(ctx, ticket))

	final, err := e.ResumeAfterCall(ctx, sessionID, []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "pass it on"},
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, "redirect budget exhausted", final.Outcome.Reason)
}

func TestResume_AnalysisRetryBudgetExhausted(t *testing.T) {
	gw := &fakeGateway{}
	e, st := newTestEngine(t, gw, testRoster(), &fakeNotifier{}, Config{})
	_, sessionID := runToPending(t, e)

	ctx := context.Background()
	session, err := st.GetSession(ctx, sessionID)
	require.NoError(t, err)
	session.AnalysisAttempts = maxAnalysisAttempts
	require.NoError(t, st.PutSession(ctx, session))

	final, err := e.ResumeAfterCall(ctx, sessionID, []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEscalated, final.Status)
	assert.Equal(t, 0, gw.extractCalls)

	// Later duplicates replay the escalation instead of analyzing again.
	again, err := e.ResumeAfterCall(ctx, sessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, final.Message, again.Message)
	assert.Equal(t, 0, gw.extractCalls)
}

func TestResume_WorkerPoolTimeoutReturnsPending(t *testing.T) {
	gw := &fakeGateway{}
	e, _ := newTestEngine(t, gw, testRoster(), &fakeNotifier{},
		Config{MaxResumeWorkers: 1, ResumeTimeout: 100 * time.Millisecond})
	_, sessionID := runToPending(t, e)

	require.NoError(t, e.resumeSem.Acquire(context.Background(), 1))
	final, err := e.ResumeAfterCall(context.Background(), sessionID, []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "done"},
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusPending, final.Status)
	assert.Equal(t, 0, gw.extractCalls)
	e.resumeSem.Release(1)

	// The session keeps its retry: the next notification completes.
	final, err = e.ResumeAfterCall(context.Background(), sessionID, []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "done"},
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusResolved, final.Status)
}

func TestResume_UnknownSession(t *testing.T) {
	e, _ := newTestEngine(t, &fakeGateway{}, testRoster(), &fakeNotifier{}, Config{})

	_, err := e.ResumeAfterCall(context.Background(), "no-such-session", nil)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

// =============================================================================
// Call acceptance
// =============================================================================

func TestMarkCallActive(t *testing.T) {
	e, st := newTestEngine(t, &fakeGateway{}, testRoster(), &fakeNotifier{}, Config{})
	_, sessionID := runToPending(t, e)

	require.NoError(t, e.MarkCallActive(context.Background(), sessionID))
	session, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.CallActive, session.Status)

	// Repeat acceptance is a no-op.
	require.NoError(t, e.MarkCallActive(context.Background(), sessionID))
}
