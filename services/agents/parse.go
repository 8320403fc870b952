// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// noneSentinel is what a role writes for an absent field. Normalized to
// the empty string before any payload leaves this package.
const noneSentinel = "NONE"

// parseKnowledge parses the knowledge retriever's fixed header format.
//
// The three header keys are mandatory and their values must come from the
// closed enum sets; anything else is ErrSchemaViolation. The answer body
// is everything after the ANSWER: marker.
func parseKnowledge(raw string) (*datatypes.KnowledgeResult, error) {
	headers, body := splitHeaders(raw, "ANSWER:")

	scope, ok := headers["SCOPE_STATUS"]
	if !ok {
		return nil, fmt.Errorf("%w: missing SCOPE_STATUS", ErrSchemaViolation)
	}
	found, ok := headers["INFORMATION_FOUND"]
	if !ok {
		return nil, fmt.Errorf("%w: missing INFORMATION_FOUND", ErrSchemaViolation)
	}
	confidence, ok := headers["ANSWER_CONFIDENCE"]
	if !ok {
		return nil, fmt.Errorf("%w: missing ANSWER_CONFIDENCE", ErrSchemaViolation)
	}

	result := &datatypes.KnowledgeResult{
		Scope:      datatypes.ScopeStatus(strings.ToUpper(scope)),
		Found:      datatypes.InformationFound(strings.ToUpper(found)),
		Confidence: datatypes.AnswerConfidence(strings.ToUpper(confidence)),
		Answer:     strings.TrimSpace(body),
	}
	if !result.Scope.Valid() {
		return nil, fmt.Errorf("%w: SCOPE_STATUS %q", ErrSchemaViolation, scope)
	}
	if !result.Found.Valid() {
		return nil, fmt.Errorf("%w: INFORMATION_FOUND %q", ErrSchemaViolation, found)
	}
	if !result.Confidence.Valid() {
		return nil, fmt.Errorf("%w: ANSWER_CONFIDENCE %q", ErrSchemaViolation, confidence)
	}
	return result, nil
}

// parseRedirect parses the call facilitator's redirect verdict.
//
// REDIRECT_REQUESTED is mandatory and must decode to a boolean. Target
// fields default to empty via the NONE sentinel; an all-whitespace target
// name is normalized to empty so the selector never sees a blank-but-set
// target.
func parseRedirect(raw string) (*datatypes.RedirectRequest, error) {
	headers, _ := splitHeaders(raw, "")

	verdict, ok := headers["REDIRECT_REQUESTED"]
	if !ok {
		return nil, fmt.Errorf("%w: missing REDIRECT_REQUESTED", ErrSchemaViolation)
	}

	var requested bool
	switch strings.ToUpper(verdict) {
	case "YES", "TRUE":
		requested = true
	case "NO", "FALSE":
		requested = false
	default:
		return nil, fmt.Errorf("%w: REDIRECT_REQUESTED %q", ErrSchemaViolation, verdict)
	}

	return &datatypes.RedirectRequest{
		Requested:  requested,
		TargetName: normalizeField(headers["TARGET_NAME"]),
		TargetRole: normalizeField(headers["TARGET_ROLE"]),
		Reason:     normalizeField(headers["REASON"]),
	}, nil
}

// splitHeaders scans raw output line by line, collecting KEY: value pairs
// until bodyMarker (when non-empty) starts the free-text body. Keys are
// recognized only in ALL_CAPS with an immediate colon; everything else is
// ignored rather than guessed at.
func splitHeaders(raw, bodyMarker string) (map[string]string, string) {
	headers := make(map[string]string)
	var body strings.Builder
	inBody := false

	for _, line := range strings.Split(raw, "\n") {
		if inBody {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		trimmed := strings.TrimSpace(line)
		if bodyMarker != "" && strings.HasPrefix(trimmed, bodyMarker) {
			inBody = true
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, bodyMarker))
			if rest != "" {
				body.WriteString(rest)
				body.WriteString("\n")
			}
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || key != strings.ToUpper(key) || strings.ContainsAny(key, " \t") {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, body.String()
}

// normalizeField strips the NONE sentinel and whitespace-only values.
func normalizeField(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, noneSentinel) {
		return ""
	}
	return v
}

// firstNonEmptyLine returns the first line with content, trimmed.
func firstNonEmptyLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// firstNonEmptyBlock trims the output and returns it whole; empty or
// whitespace-only output becomes "".
func firstNonEmptyBlock(raw string) string {
	return strings.TrimSpace(raw)
}
