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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

func TestRouteAfterSearch(t *testing.T) {
	tests := []struct {
		name string
		k    datatypes.KnowledgeResult
		want route
	}{
		{
			name: "outside scope wins over everything",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeOutside, Found: datatypes.InfoYes,
				Confidence: datatypes.ConfidenceHigh, Answer: "an answer",
			},
			want: routeOutOfScope,
		},
		{
			name: "full coverage at medium confidence answers",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeWithin, Found: datatypes.InfoYes,
				Confidence: datatypes.ConfidenceMedium, Answer: "an answer",
			},
			want: routeDirectAnswer,
		},
		{
			name: "full coverage at low confidence goes to a human",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeWithin, Found: datatypes.InfoYes,
				Confidence: datatypes.ConfidenceLow, Answer: "an answer",
			},
			want: routeHumanExpert,
		},
		{
			name: "partial coverage needs high confidence",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeWithin, Found: datatypes.InfoPartial,
				Confidence: datatypes.ConfidenceHigh, Answer: "an answer",
			},
			want: routeDirectAnswer,
		},
		{
			name: "partial coverage at medium confidence goes to a human",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeWithin, Found: datatypes.InfoPartial,
				Confidence: datatypes.ConfidenceMedium, Answer: "an answer",
			},
			want: routeHumanExpert,
		},
		{
			name: "no coverage goes to a human",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeWithin, Found: datatypes.InfoNo,
				Confidence: datatypes.ConfidenceNone,
			},
			want: routeHumanExpert,
		},
		{
			name: "empty answer body never answers directly",
			k: datatypes.KnowledgeResult{
				Scope: datatypes.ScopeWithin, Found: datatypes.InfoYes,
				Confidence: datatypes.ConfidenceHigh, Answer: "   ",
			},
			want: routeHumanExpert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routeAfterSearch(&tt.k))
		})
	}
}

func TestSubjectLine(t *testing.T) {
	assert.Equal(t, "short question", subjectLine("  short question  "))
	assert.Equal(t, "first line", subjectLine("first line\nsecond line"))

	long := strings.Repeat("x", 200)
	got := subjectLine(long)
	assert.Len(t, got, 80)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSubjectLine_TruncatesOnRuneBoundary(t *testing.T) {
	// 100 two-byte runes; a byte-indexed cut would land mid-rune.
	query := strings.Repeat("é", 100)
	got := subjectLine(query)

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 80)
}

func TestComposeFailure(t *testing.T) {
	for _, reason := range []datatypes.FailReason{
		datatypes.FailTimeout,
		datatypes.FailCancelled,
		datatypes.FailAgentUnavailable,
		datatypes.FailSchemaViolation,
		datatypes.FailPersistence,
	} {
		out := datatypes.StepOutput{
			Step:       datatypes.StepKnowledgeSearch,
			Status:     datatypes.StepFailed,
			FailReason: reason,
		}
		final := composeFailure("t-1", out)
		assert.NotEmpty(t, final.Message, "reason %s", reason)
		if reason == datatypes.FailTimeout {
			assert.Equal(t, datatypes.StatusTimeout, final.Status)
		} else {
			assert.Equal(t, datatypes.StatusEscalated, final.Status)
		}
	}
}
