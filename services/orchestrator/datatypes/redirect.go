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

// RedirectRequest is the structured verdict extracted from a call
// transcript: did the expert ask for the request to be handed to someone
// else, and to whom.
//
// The zero value means "no redirect requested" and is the fail-closed
// result whenever extraction cannot produce a schema-valid verdict.
// TargetName and TargetRole are empty when the expert named nobody; an
// all-whitespace name is normalized to empty before it reaches the
// selector.
type RedirectRequest struct {
	Requested  bool   `json:"requested"`
	TargetName string `json:"target_name,omitempty"`
	TargetRole string `json:"target_role,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// ExcludeIdentities seeds the selector's exclusion set, on top of the
	// ticket's redirect history.
	ExcludeIdentities map[string]struct{} `json:"-"`
}

// HasTarget reports whether the expert named a concrete person or role.
func (r *RedirectRequest) HasTarget() bool {
	return r.TargetName != "" || r.TargetRole != ""
}
