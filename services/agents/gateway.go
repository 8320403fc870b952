// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents is the boundary between the workflow engine and the LLM
// agent roles it consults.
//
// # Description
//
// Each workflow step that needs model output goes through one typed method
// on Gateway. The gateway owns everything the engine must not care about:
// prompt construction per role, the per-call timeout, rate limiting toward
// the backend, one retry on transport failure, and strict parsing of the
// role's key/value output schema. The engine only ever sees typed payloads
// or a classified error.
//
// # Error Contract
//
//   - ErrAgentUnavailable: the backend could not be reached or kept
//     failing after the single retry. Transient.
//   - ErrSchemaViolation: the model answered, but not in the role's
//     schema. Callers fail closed; nothing secondary re-parses the text.
//   - context.DeadlineExceeded: the per-call timeout elapsed.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianDesk/services/llm"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.agents.gateway")

var (
	// ErrAgentUnavailable means the LLM backend could not serve the call.
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrSchemaViolation means the agent's output did not match the
	// role's fixed key/value schema.
	ErrSchemaViolation = errors.New("agent response schema violation")
)

// Agent role names, used for spans and logs.
const (
	RoleCoordinator = "coordinator"
	RoleKnowledge   = "knowledge_retriever"
	RoleFacilitator = "call_facilitator"
	RoleSynthesizer = "synthesizer"
)

// Gateway is the typed agent surface the engine calls.
type Gateway interface {
	// Reformulate turns a raw user query into a precise support request.
	Reformulate(ctx context.Context, query string) (string, error)

	// SearchKnowledge asks the knowledge retriever for an answer plus its
	// scope, coverage and confidence verdicts.
	SearchKnowledge(ctx context.Context, query string) (*datatypes.KnowledgeResult, error)

	// ExtractRedirect pulls a structured redirect verdict out of a call
	// transcript. Returns ErrSchemaViolation when the output breaks the
	// schema; the caller decides what fail-closed means.
	ExtractRedirect(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error)

	// SummarizeCall synthesizes a user-facing answer from the transcript
	// of a completed call.
	SummarizeCall(ctx context.Context, query, transcript string) (string, error)
}

// Config tunes the gateway. Zero values get defaults from NewGateway.
type Config struct {
	// Timeout bounds each backend call. Default 30s.
	Timeout time.Duration

	// RatePerSecond and Burst feed the token bucket in front of the
	// backend. Defaults: 5/s with burst 10.
	RatePerSecond float64
	Burst         int
}

type llmGateway struct {
	client  llm.LLMClient
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGateway creates a Gateway over the given LLM client.
func NewGateway(client llm.LLMClient, cfg Config) Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &llmGateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		timeout: cfg.Timeout,
	}
}

// invoke runs one rate-limited, deadline-bounded backend call for a role,
// retrying exactly once on transport failure. Timeouts are not retried;
// the caller's budget is already gone.
func (g *llmGateway) invoke(ctx context.Context, role, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "Gateway.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("agent.role", role))

	if err := g.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		raw, err := g.client.Generate(callCtx, prompt, llm.GenerationParams{})
		cancel()
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		lastErr = err
		slog.Warn("agent call failed", "role", role, "attempt", attempt+1, "error", err)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", fmt.Errorf("%w: role %s: %v", ErrAgentUnavailable, role, lastErr)
}

func (g *llmGateway) Reformulate(ctx context.Context, query string) (string, error) {
	raw, err := g.invoke(ctx, RoleCoordinator, reformulatePrompt(query))
	if err != nil {
		return "", err
	}
	reformulated := firstNonEmptyLine(raw)
	if reformulated == "" {
		// An empty reformulation would poison every downstream prompt.
		return "", fmt.Errorf("%w: coordinator returned empty reformulation", ErrSchemaViolation)
	}
	return reformulated, nil
}

func (g *llmGateway) SearchKnowledge(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
	raw, err := g.invoke(ctx, RoleKnowledge, knowledgePrompt(query))
	if err != nil {
		return nil, err
	}
	return parseKnowledge(raw)
}

func (g *llmGateway) ExtractRedirect(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
	raw, err := g.invoke(ctx, RoleFacilitator, redirectPrompt(transcript))
	if err != nil {
		return nil, err
	}
	return parseRedirect(raw)
}

func (g *llmGateway) SummarizeCall(ctx context.Context, query, transcript string) (string, error) {
	raw, err := g.invoke(ctx, RoleSynthesizer, summaryPrompt(query, transcript))
	if err != nil {
		return "", err
	}
	summary := firstNonEmptyBlock(raw)
	if summary == "" {
		return "", fmt.Errorf("%w: synthesizer returned empty summary", ErrSchemaViolation)
	}
	return summary, nil
}

var _ Gateway = (*llmGateway)(nil)
