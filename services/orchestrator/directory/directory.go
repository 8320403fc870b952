// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package directory is the read-only gateway to the employee roster.
//
// Two implementations exist: a Weaviate-backed adapter for production
// (the roster lives in the Employee class alongside the knowledge base)
// and an in-memory roster for tests and single-node deployments without
// Weaviate. The directory only retrieves and prefilters; scoring and
// ranking belong to the redirect selector.
package directory

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// ErrUnavailable means the roster backend could not be reached.
var ErrUnavailable = errors.New("employee directory unavailable")

// Directory retrieves employee candidates for ticket hand-offs.
//
// Both methods drop every identity in excluding before returning; the
// exclusion set is how redirect loop prevention reaches the data layer.
// Returned slices are owned by the caller.
type Directory interface {
	// ListAvailable returns employees whose availability is not offline.
	ListAvailable(ctx context.Context, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error)

	// Search returns employees loosely matching the query against name,
	// role or skills. An empty query behaves like ListAvailable. The
	// match here is a broad prefilter; precise ranking happens in the
	// selector.
	Search(ctx context.Context, query string, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error)
}

func excluded(id string, excluding map[string]struct{}) bool {
	if len(excluding) == 0 {
		return false
	}
	_, ok := excluding[id]
	return ok
}
