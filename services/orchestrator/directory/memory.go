// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// Memory is an in-process roster for tests and deployments without
// Weaviate. Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	employees []datatypes.EmployeeCandidate
}

// NewMemory creates a roster with the given employees.
func NewMemory(employees ...datatypes.EmployeeCandidate) *Memory {
	return &Memory{employees: employees}
}

// NewMemoryFromFile loads a roster from a JSON file holding an array of
// employee records. Used by the lightweight-mode deployment where the
// roster is shipped as a config artifact.
func NewMemoryFromFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file %s: %w", path, err)
	}
	var employees []datatypes.EmployeeCandidate
	if err := json.Unmarshal(data, &employees); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}
	return NewMemory(employees...), nil
}

// Add appends an employee to the roster.
func (m *Memory) Add(e datatypes.EmployeeCandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = append(m.employees, e)
}

// SetAvailability updates one employee's availability in place.
func (m *Memory) SetAvailability(id string, availability datatypes.Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.employees {
		if m.employees[i].ID == id {
			m.employees[i].Availability = availability
			return
		}
	}
}

func (m *Memory) ListAvailable(ctx context.Context, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []datatypes.EmployeeCandidate
	for _, e := range m.employees {
		if e.Availability == datatypes.AvailabilityOffline || excluded(e.ID, excluding) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Search(ctx context.Context, query string, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return m.ListAvailable(ctx, excluding)
	}

	terms := strings.Fields(query)

	m.mu.RLock()
	var out []datatypes.EmployeeCandidate
	for _, e := range m.employees {
		if e.Availability == datatypes.AvailabilityOffline || excluded(e.ID, excluding) {
			continue
		}
		if matchesAnyTerm(e, terms) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	if out == nil {
		// Same fallback as the Weaviate adapter: a too-narrow query must
		// not starve the selector, which re-scores whatever comes back.
		return m.ListAvailable(ctx, excluding)
	}
	return out, nil
}

func matchesAnyTerm(e datatypes.EmployeeCandidate, terms []string) bool {
	haystack := strings.ToLower(e.Name + " " + e.Role + " " + strings.Join(e.Skills, " "))
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

var _ Directory = (*Memory)(nil)
