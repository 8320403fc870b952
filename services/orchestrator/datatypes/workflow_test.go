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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowState_AppendResult_IsAppendOnly(t *testing.T) {
	state := NewWorkflowState("t-1", "how do I reset my badge", nil)

	first := StepOutput{Step: StepKnowledgeSearch, Status: StepSuccess}
	require.NoError(t, state.AppendResult(first))
	assert.Equal(t, StepKnowledgeSearch, state.Step)

	// A second write for the same step must be rejected, not overwritten.
	err := state.AppendResult(StepOutput{Step: StepKnowledgeSearch, Status: StepFailed})
	require.Error(t, err)

	got, ok := state.Result(StepKnowledgeSearch)
	require.True(t, ok)
	assert.Equal(t, StepSuccess, got.Status)
}

func TestWorkflowState_AppendResult_RequiresStepID(t *testing.T) {
	state := NewWorkflowState("t-1", "query", nil)
	assert.Error(t, state.AppendResult(StepOutput{Status: StepSuccess}))
}

func TestAnswerConfidence_AtLeast(t *testing.T) {
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceMedium.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceNone.AtLeast(ConfidenceLow))
}

func TestScopeStatus_Valid(t *testing.T) {
	assert.True(t, ScopeWithin.Valid())
	assert.True(t, ScopeOutside.Valid())
	assert.False(t, ScopeStatus("MAYBE").Valid())
	assert.False(t, ScopeStatus("").Valid())
}

func TestCallStatus_JSONRoundTrip(t *testing.T) {
	for _, status := range []CallStatus{CallInitiated, CallActive, CallEnded} {
		data, err := json.Marshal(status)
		require.NoError(t, err)

		var decoded CallStatus
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, status, decoded)
	}

	var decoded CallStatus
	assert.Error(t, json.Unmarshal([]byte(`"paused"`), &decoded))
}

func TestSubmitRequestBody_Validate(t *testing.T) {
	t.Run("valid body passes", func(t *testing.T) {
		body := SubmitRequestBody{Query: "who owns payroll tickets", Channel: "web"}
		assert.NoError(t, body.Validate())
	})

	t.Run("empty query rejected", func(t *testing.T) {
		body := SubmitRequestBody{Query: ""}
		assert.Error(t, body.Validate())
	})

	t.Run("unknown channel rejected", func(t *testing.T) {
		body := SubmitRequestBody{Query: "q", Channel: "fax"}
		assert.Error(t, body.Validate())
	})
}

func TestCallEndedBody_Validate(t *testing.T) {
	t.Run("empty transcript is legal", func(t *testing.T) {
		body := CallEndedBody{}
		assert.NoError(t, body.Validate())
		assert.Nil(t, body.Entries())
	})

	t.Run("entry without speaker rejected", func(t *testing.T) {
		body := CallEndedBody{Transcript: []CallEndedEntry{{Text: "hello"}}}
		assert.Error(t, body.Validate())
	})

	t.Run("entries convert in order", func(t *testing.T) {
		body := CallEndedBody{Transcript: []CallEndedEntry{
			{Speaker: "expert", Text: "hello"},
			{Speaker: "caller", Text: "hi"},
		}}
		require.NoError(t, body.Validate())
		entries := body.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, "expert", entries[0].Speaker)
		assert.Equal(t, "caller", entries[1].Speaker)
	})
}
