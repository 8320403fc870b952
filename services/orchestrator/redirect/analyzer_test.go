// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package redirect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDesk/services/agents"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// fakeGateway scripts agent responses for redirect tests.
type fakeGateway struct {
	extractFunc  func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error)
	extractCalls int
}

func (f *fakeGateway) Reformulate(ctx context.Context, query string) (string, error) {
	return query, nil
}

func (f *fakeGateway) SearchKnowledge(ctx context.Context, query string) (*datatypes.KnowledgeResult, error) {
	return &datatypes.KnowledgeResult{}, nil
}

func (f *fakeGateway) ExtractRedirect(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
	f.extractCalls++
	return f.extractFunc(ctx, transcript)
}

func (f *fakeGateway) SummarizeCall(ctx context.Context, query, transcript string) (string, error) {
	return "summary", nil
}

func TestAnalyzer_EmptyTranscriptSkipsGateway(t *testing.T) {
	fake := &fakeGateway{extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
		t.Fatal("gateway must not be called for an empty transcript")
		return nil, nil
	}}
	analyzer := NewAnalyzer(fake)

	for _, transcript := range [][]datatypes.TranscriptEntry{
		nil,
		{},
		{{Speaker: "expert", Text: "   "}, {Speaker: "caller", Text: ""}},
	} {
		req, err := analyzer.Analyze(context.Background(), transcript)
		require.NoError(t, err)
		assert.False(t, req.Requested)
	}
	assert.Equal(t, 0, fake.extractCalls)
}

func TestAnalyzer_SchemaViolationFailsClosed(t *testing.T) {
	fake := &fakeGateway{extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
		return nil, agents.ErrSchemaViolation
	}}
	analyzer := NewAnalyzer(fake)

	req, err := analyzer.Analyze(context.Background(), []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "send this to, hmm, maybe someone"},
	})
	require.NoError(t, err)
	assert.False(t, req.Requested)
	assert.Equal(t, 1, fake.extractCalls)
}

func TestAnalyzer_TransportFailurePropagates(t *testing.T) {
	fake := &fakeGateway{extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
		return nil, agents.ErrAgentUnavailable
	}}
	analyzer := NewAnalyzer(fake)

	_, err := analyzer.Analyze(context.Background(), []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "hello"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, agents.ErrAgentUnavailable)
}

func TestAnalyzer_FlattensSpeakersIntoPrompt(t *testing.T) {
	var seen string
	fake := &fakeGateway{extractFunc: func(ctx context.Context, transcript string) (*datatypes.RedirectRequest, error) {
		seen = transcript
		return &datatypes.RedirectRequest{Requested: true, TargetName: "maria.lopez"}, nil
	}}
	analyzer := NewAnalyzer(fake)

	req, err := analyzer.Analyze(context.Background(), []datatypes.TranscriptEntry{
		{Speaker: "expert", Text: "ask maria.lopez"},
		{Speaker: "caller", Text: "will do"},
	})
	require.NoError(t, err)
	assert.True(t, req.Requested)
	assert.Contains(t, seen, "expert: ask maria.lopez")
	assert.Contains(t, seen, "caller: will do")
}
