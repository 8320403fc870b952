// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redirect decides whether an ended call asks for a hand-off and,
// if so, who gets the ticket next.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianDesk/services/agents"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// Analyzer extracts a redirect verdict from a call transcript.
type Analyzer struct {
	gateway agents.Gateway
}

// NewAnalyzer creates an Analyzer over the agent gateway.
func NewAnalyzer(gateway agents.Gateway) *Analyzer {
	return &Analyzer{gateway: gateway}
}

// Analyze returns the redirect verdict for a transcript.
//
// # Description
//
// An empty or whitespace-only transcript short-circuits to "no redirect"
// without an agent call; there is nothing to extract from. When the agent
// answers outside its schema the verdict fails closed to "no redirect":
// a malformed extraction must never move a ticket. Transport failures
// propagate so the caller can surface a failed step.
//
// # Outputs
//
//   - *datatypes.RedirectRequest: The verdict. Never nil when error is nil.
//   - error: Non-nil only for agent transport failures or timeouts.
func (a *Analyzer) Analyze(ctx context.Context, transcript []datatypes.TranscriptEntry) (*datatypes.RedirectRequest, error) {
	flattened := flattenTranscript(transcript)
	if flattened == "" {
		return &datatypes.RedirectRequest{}, nil
	}

	req, err := a.gateway.ExtractRedirect(ctx, flattened)
	if err != nil {
		if errors.Is(err, agents.ErrSchemaViolation) {
			slog.Warn("redirect extraction violated schema, failing closed", "error", err)
			return &datatypes.RedirectRequest{}, nil
		}
		return nil, fmt.Errorf("redirect extraction: %w", err)
	}
	return req, nil
}

// flattenTranscript renders entries as "speaker: text" lines, dropping
// empty utterances.
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
