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

// Availability is an employee's current presence state.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

// Rank orders availability for candidate ranking: available experts beat
// busy ones, busy beats offline.
func (a Availability) Rank() int {
	switch a {
	case AvailabilityAvailable:
		return 2
	case AvailabilityBusy:
		return 1
	default:
		return 0
	}
}

// EmployeeCandidate is a directory entry considered for a ticket hand-off.
//
// MatchScore and MatchReasons are assigned by the candidate selector for
// the duration of one selection pass; they are never persisted and never
// come from the directory itself.
type EmployeeCandidate struct {
	ID           string       `json:"employee_id"`
	Name         string       `json:"name"`
	Role         string       `json:"role"`
	Skills       []string     `json:"skills,omitempty"`
	Availability Availability `json:"availability"`

	// Workload is the count of tickets currently assigned to the
	// employee. Used as the final ranking tiebreaker.
	Workload int `json:"workload"`

	MatchScore   float64  `json:"match_score,omitempty"`
	MatchReasons []string `json:"match_reasons,omitempty"`
}
