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

import "fmt"

// =============================================================================
// Step Identity
// =============================================================================

// StepID names a node in the fixed workflow graph.
type StepID string

const (
	StepReformulate     StepID = "coordinator_reformulate"
	StepKnowledgeSearch StepID = "knowledge_search"
	StepExpertMatch     StepID = "expert_match"
	StepCallInitiate    StepID = "call_initiate"
	StepCallEnded       StepID = "call_ended"
	StepRedirectAnalyze StepID = "redirect_analyze"
	StepCandidateSelect StepID = "candidate_select"
	StepFinalCompose    StepID = "final_compose"
)

// StepStatus is the outcome class of one executed step. Decision functions
// branch on this and on the typed payload fields, never on free text.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// FailReason classifies why a step failed. Empty on success.
type FailReason string

const (
	FailNone             FailReason = ""
	FailTimeout          FailReason = "timeout"
	FailAgentUnavailable FailReason = "agent_unavailable"
	FailSchemaViolation  FailReason = "schema_violation"
	FailPersistence      FailReason = "persistence"
	FailCancelled        FailReason = "cancelled"
)

// =============================================================================
// Typed Step Payloads
// =============================================================================

// ScopeStatus is the knowledge retriever's verdict on whether the request
// falls inside the support domain this deployment answers for.
type ScopeStatus string

const (
	ScopeWithin  ScopeStatus = "WITHIN_SCOPE"
	ScopeOutside ScopeStatus = "OUTSIDE_SCOPE"
)

// Valid reports whether the value is one of the closed set.
func (s ScopeStatus) Valid() bool {
	return s == ScopeWithin || s == ScopeOutside
}

// InformationFound is the retriever's verdict on knowledge-base coverage.
type InformationFound string

const (
	InfoYes     InformationFound = "YES"
	InfoNo      InformationFound = "NO"
	InfoPartial InformationFound = "PARTIAL"
)

func (f InformationFound) Valid() bool {
	return f == InfoYes || f == InfoNo || f == InfoPartial
}

// AnswerConfidence grades how well the retrieved material supports a direct
// answer. Ordered NONE < LOW < MEDIUM < HIGH.
type AnswerConfidence string

const (
	ConfidenceHigh   AnswerConfidence = "HIGH"
	ConfidenceMedium AnswerConfidence = "MEDIUM"
	ConfidenceLow    AnswerConfidence = "LOW"
	ConfidenceNone   AnswerConfidence = "NONE"
)

func (c AnswerConfidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return true
	}
	return false
}

// rank orders confidence for threshold comparisons.
func (c AnswerConfidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c is at or above the given confidence level.
func (c AnswerConfidence) AtLeast(min AnswerConfidence) bool {
	return c.rank() >= min.rank()
}

// KnowledgeResult is the typed payload of the knowledge_search step.
type KnowledgeResult struct {
	Scope      ScopeStatus      `json:"scope_status"`
	Found      InformationFound `json:"information_found"`
	Confidence AnswerConfidence `json:"answer_confidence"`
	Answer     string           `json:"answer,omitempty"`
}

// MatchResult is the typed payload of the expert_match and candidate_select
// steps.
type MatchResult struct {
	Candidate *EmployeeCandidate `json:"candidate,omitempty"`
}

// CallRef is the typed payload of the call_initiate step.
type CallRef struct {
	SessionID string `json:"session_id"`
	ExpertID  string `json:"expert_id"`
}

// =============================================================================
// Step Output and Workflow State
// =============================================================================

// StepOutput is one entry in the workflow's results ledger.
//
// Status and FailReason drive routing; at most one of the typed payload
// pointers is set, matching the step that produced the entry. Text carries
// free-form output (reformulated query, summary) for steps whose payload is
// a string.
type StepOutput struct {
	Step       StepID     `json:"step"`
	Status     StepStatus `json:"status"`
	FailReason FailReason `json:"fail_reason,omitempty"`

	Text      string           `json:"text,omitempty"`
	Knowledge *KnowledgeResult `json:"knowledge,omitempty"`
	Match     *MatchResult     `json:"match,omitempty"`
	Redirect  *RedirectRequest `json:"redirect,omitempty"`
	Call      *CallRef         `json:"call,omitempty"`
}

// WorkflowState is the in-memory state of one engine invocation.
//
// # Description
//
// The state is created at the start of Run or ResumeAfterCall and discarded
// when the invocation returns; anything that must survive a suspension
// lives on the ticket or the call session instead. Results is an
// append-only ledger: a step writes its output exactly once, and decision
// functions read earlier entries without ever mutating them.
//
// # Thread Safety
//
// Owned by a single goroutine. Never shared.
type WorkflowState struct {
	TicketID string
	Query    string
	Step     StepID
	Results  map[StepID]StepOutput
	Metadata map[string]string

	// ExcludedIdentities accumulates experts who must not receive the
	// ticket during this invocation, beyond the ticket's own history.
	ExcludedIdentities map[string]struct{}
}

// NewWorkflowState creates an empty state for one invocation.
func NewWorkflowState(ticketID, query string, metadata map[string]string) *WorkflowState {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &WorkflowState{
		TicketID:           ticketID,
		Query:              query,
		Results:            make(map[StepID]StepOutput),
		Metadata:           metadata,
		ExcludedIdentities: make(map[string]struct{}),
	}
}

// Exclude marks an identity as ineligible for auto-assignment during
// this invocation. The requester is excluded this way at entry; a ticket
// must never be handed to the person who opened it. Empty ids are
// ignored.
func (w *WorkflowState) Exclude(id string) {
	if id == "" {
		return
	}
	w.ExcludedIdentities[id] = struct{}{}
}

// ExclusionsWith returns the union of the invocation's excluded
// identities and the given set. Neither input is mutated.
func (w *WorkflowState) ExclusionsWith(extra map[string]struct{}) map[string]struct{} {
	merged := make(map[string]struct{}, len(w.ExcludedIdentities)+len(extra))
	for id := range extra {
		merged[id] = struct{}{}
	}
	for id := range w.ExcludedIdentities {
		merged[id] = struct{}{}
	}
	return merged
}

// AppendResult records a step's output in the ledger.
//
// The ledger is append-only: writing a step that already has an entry is a
// programming error and is rejected rather than silently overwritten.
func (w *WorkflowState) AppendResult(out StepOutput) error {
	if out.Step == "" {
		return fmt.Errorf("workflow state: step output missing step id")
	}
	if _, exists := w.Results[out.Step]; exists {
		return fmt.Errorf("workflow state: step %s already recorded", out.Step)
	}
	w.Results[out.Step] = out
	w.Step = out.Step
	return nil
}

// Result returns the ledger entry for a step, if recorded.
func (w *WorkflowState) Result(step StepID) (StepOutput, bool) {
	out, ok := w.Results[step]
	return out, ok
}
