// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request bodies for the orchestrator's HTTP surface.
// Responses are FinalResult (outcome.go) and TicketContext (ticket.go).
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

const (
	// MaxQueryBytes bounds a submitted request query. Larger payloads are
	// rejected at the boundary to keep prompts and storage bounded.
	MaxQueryBytes = 16 * 1024 // 16KB

	// MaxTranscriptEntries bounds a single call-ended notification.
	MaxTranscriptEntries = 2000

	// MaxTranscriptEntryBytes bounds one utterance's text.
	MaxTranscriptEntryBytes = 16 * 1024 // 16KB
)

// apiValidate is the validator instance for API request bodies.
var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()
	_ = apiValidate.RegisterValidation("querybytes", validateQueryBytes)
	_ = apiValidate.RegisterValidation("utterancebytes", validateUtteranceBytes)
}

// validateQueryBytes checks byte length, not rune count, so multi-byte
// input cannot exceed the storage bound.
func validateQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

func validateUtteranceBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxTranscriptEntryBytes
}

// SubmitRequestBody is the body of POST /v1/requests.
type SubmitRequestBody struct {
	Query       string            `json:"query" validate:"required,min=1,querybytes"`
	RequesterID string            `json:"requester_id,omitempty" validate:"omitempty,max=256"`
	Channel     string            `json:"channel,omitempty" validate:"omitempty,oneof=web chat voice email"`
	Metadata    map[string]string `json:"metadata,omitempty" validate:"omitempty,max=32"`
}

// Validate validates the SubmitRequestBody fields after JSON binding.
func (r *SubmitRequestBody) Validate() error {
	return apiValidate.Struct(r)
}

// CallEndedBody is the body of POST /v1/calls/:sessionId/ended.
//
// An empty transcript is legal: a call can end before anyone spoke. The
// redirect analyzer treats it as "no redirect requested" without invoking
// the extraction agent.
type CallEndedBody struct {
	Transcript []CallEndedEntry `json:"transcript" validate:"max=2000,dive"`
}

// CallEndedEntry is one transcript utterance as submitted by the voice
// stack. Converted to TranscriptEntry after validation.
type CallEndedEntry struct {
	Speaker   string `json:"speaker" validate:"required,max=256"`
	Text      string `json:"text" validate:"utterancebytes"`
	Timestamp int64  `json:"timestamp,omitempty" validate:"gte=0"`
}

// Validate validates the CallEndedBody fields after JSON binding.
func (r *CallEndedBody) Validate() error {
	return apiValidate.Struct(r)
}

// Entries converts the validated body into transcript entries.
func (r *CallEndedBody) Entries() []TranscriptEntry {
	if len(r.Transcript) == 0 {
		return nil
	}
	entries := make([]TranscriptEntry, 0, len(r.Transcript))
	for _, e := range r.Transcript {
		entries = append(entries, TranscriptEntry{
			Speaker:   e.Speaker,
			Text:      e.Text,
			Timestamp: e.Timestamp,
		})
	}
	return entries
}
