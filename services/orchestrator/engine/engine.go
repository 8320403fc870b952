// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs the support workflow.
//
// # Description
//
// The workflow is a fixed directed graph of steps. A fresh request enters at
// coordinator_reformulate and either resolves directly from the knowledge
// base, is rejected as out of scope, or hands the ticket to a human expert
// and suspends with a pending result. When the expert call ends, the
// upstream voice stack posts a call-ended notification and the workflow
// resumes at call_ended in a separate invocation: the transcript is analyzed
// for a redirect verdict and the ticket either hands off to the next expert
// or composes its final answer.
//
// Every decision in the graph branches on typed enum fields from the step
// ledger, never on free-form text. A failed step takes the explicit failed
// edge to the fallback composer, so callers always receive a composed
// FinalResult with a non-empty message.
//
// # Thread Safety
//
// The engine is safe for concurrent use. All ticket and session mutation is
// serialized through a per-ticket lock registry; resume analysis additionally
// runs through a bounded semaphore so a burst of call-ended notifications
// cannot exhaust the LLM backend.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/AleutianDesk/services/agents"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/calls"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/directory"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/redirect"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/store"
)

var tracer = otel.Tracer("aleutian.orchestrator.engine")

// maxAnalysisAttempts bounds resume-pipeline runs per call session: the
// original attempt plus one retry after a worker timeout.
const maxAnalysisAttempts = 2

// Notifier is the outbound boundary toward the call placement stack. The
// engine asks it to ring an expert and, when an initiation is cancelled
// mid-flight, to withdraw the request again.
type Notifier interface {
	// NotifyCallRequested asks the voice stack to place the call for the
	// session. The call itself proceeds asynchronously; acceptance and
	// termination come back as separate HTTP notifications.
	NotifyCallRequested(ctx context.Context, session *datatypes.CallSession, ticket *datatypes.TicketContext) error

	// CancelCallRequest withdraws a previously requested call. Compensates
	// a cancelled initiation; best effort.
	CancelCallRequest(ctx context.Context, sessionID string) error
}

// LogNotifier is the default Notifier for deployments without a voice
// stack: it logs the request and succeeds.
type LogNotifier struct{}

func (LogNotifier) NotifyCallRequested(ctx context.Context, session *datatypes.CallSession, ticket *datatypes.TicketContext) error {
	slog.Info("call requested",
		"session_id", session.ID,
		"ticket_id", ticket.ID,
		"expert_id", session.ExpertID,
		"redirected_from", session.RedirectedFrom)
	return nil
}

func (LogNotifier) CancelCallRequest(ctx context.Context, sessionID string) error {
	slog.Info("call request cancelled", "session_id", sessionID)
	return nil
}

var _ Notifier = LogNotifier{}

// Config tunes the engine. Zero values get defaults from New.
type Config struct {
	// StepTimeout bounds each workflow step. Default 30s.
	StepTimeout time.Duration

	// ResumeTimeout bounds one resume-pipeline run, semaphore wait
	// included. On expiry the caller receives a pending result and the
	// session keeps one analysis retry. Default 60s.
	ResumeTimeout time.Duration

	// MaxResumeWorkers bounds concurrent resume-pipeline runs. Default 4.
	MaxResumeWorkers int64

	// AllowReassign lets a redirect return a ticket to an expert who
	// already handled it. Operator override; the redirect budget still
	// applies.
	AllowReassign bool
}

func (c *Config) applyDefaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = 60 * time.Second
	}
	if c.MaxResumeWorkers <= 0 {
		c.MaxResumeWorkers = 4
	}
}

// Engine executes the support workflow over its collaborators.
type Engine struct {
	gateway  agents.Gateway
	store    store.Store
	tracker  *calls.Tracker
	selector *redirect.Selector
	analyzer *redirect.Analyzer
	notifier Notifier
	metrics  *observability.WorkflowMetrics
	cfg      Config

	// locks maps ticket id to *sync.Mutex. Entries are never removed; the
	// per-ticket footprint is one mutex and tickets are bounded by traffic.
	locks sync.Map

	resumeSem *semaphore.Weighted
}

// New creates an Engine. metrics may be nil to disable instrumentation;
// notifier may be nil to fall back to LogNotifier.
func New(gateway agents.Gateway, dir directory.Directory, st store.Store, notifier Notifier, metrics *observability.WorkflowMetrics, cfg Config) *Engine {
	cfg.applyDefaults()
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Engine{
		gateway:   gateway,
		store:     st,
		tracker:   calls.NewTracker(st),
		selector:  redirect.NewSelector(dir),
		analyzer:  redirect.NewAnalyzer(gateway),
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		resumeSem: semaphore.NewWeighted(cfg.MaxResumeWorkers),
	}
}

// Ticket returns the durable ticket record. Thin store passthrough for the
// HTTP status endpoint.
func (e *Engine) Ticket(ctx context.Context, id string) (*datatypes.TicketContext, error) {
	return e.store.GetTicket(ctx, id)
}

// MarkCallActive records that the expert accepted the session's call.
func (e *Engine) MarkCallActive(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	unlock := e.lockTicket(session.TicketID)
	defer unlock()
	return e.tracker.MarkActive(ctx, sessionID)
}

// lockTicket serializes all mutation for one ticket and returns the unlock.
func (e *Engine) lockTicket(ticketID string) func() {
	v, _ := e.locks.LoadOrStore(ticketID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// execStep runs one workflow step under the step timeout, appends its
// output to the ledger and records metrics and a span.
//
// fn fills the payload fields of the StepOutput; execStep owns Step, Status
// and FailReason. The returned error is fn's error, already classified into
// the output's FailReason, so callers branch on the recorded output rather
// than re-inspecting the error.
func (e *Engine) execStep(ctx context.Context, state *datatypes.WorkflowState, id datatypes.StepID, fn func(ctx context.Context) (datatypes.StepOutput, error)) (datatypes.StepOutput, error) {
	ctx, span := tracer.Start(ctx, "Engine."+string(id))
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.step", string(id)),
		attribute.String("ticket.id", state.TicketID),
	)

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	out, err := fn(stepCtx)
	elapsed := time.Since(start)

	out.Step = id
	if err != nil {
		out.Status = datatypes.StepFailed
		out.FailReason = classifyFailure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("workflow step failed",
			"ticket_id", state.TicketID,
			"step", id,
			"fail_reason", out.FailReason,
			"error", err)
	} else {
		out.Status = datatypes.StepSuccess
	}

	if appendErr := state.AppendResult(out); appendErr != nil {
		// A duplicate ledger write is a routing bug, not a runtime
		// condition. Surface it loudly.
		slog.Error("workflow ledger rejected step output",
			"ticket_id", state.TicketID, "step", id, "error", appendErr)
	}
	e.metrics.RecordStep(string(id), err == nil, elapsed)
	return out, err
}

// classifyFailure maps a step error onto the closed FailReason set.
func classifyFailure(err error) datatypes.FailReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return datatypes.FailTimeout
	case errors.Is(err, context.Canceled):
		return datatypes.FailCancelled
	case errors.Is(err, agents.ErrSchemaViolation):
		return datatypes.FailSchemaViolation
	case errors.Is(err, agents.ErrAgentUnavailable):
		return datatypes.FailAgentUnavailable
	default:
		// Everything else reaches the engine through the persistence
		// layer or a directory adapter.
		return datatypes.FailPersistence
	}
}

func slogCompensationError(op, sessionID string, err error) {
	slog.Error("call initiation compensation failed",
		"op", op, "session_id", sessionID, "error", err)
}

// flattenTranscript renders a transcript as "speaker: text" lines for the
// synthesizer prompt, dropping empty utterances.
func flattenTranscript(transcript []datatypes.TranscriptEntry) string {
	var b strings.Builder
	for _, entry := range transcript {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		b.WriteString(entry.Speaker)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// subjectLine derives a short ticket subject from the raw query. The cut
// point backs up to a rune boundary so a multi-byte character is never
// split.
func subjectLine(query string) string {
	const maxSubject = 80
	line := strings.TrimSpace(query)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) > maxSubject {
		cut := maxSubject - 3
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut] + "..."
	}
	return line
}
