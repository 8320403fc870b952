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
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/directory"
)

// Match scores. An exact name hit dominates everything else; skills are
// additive per matched keyword.
const (
	scoreExactName   = 20.0
	scorePartialName = 15.0
	scoreRoleMatch   = 10.0
	scoreSkillMatch  = 8.0
)

// SelectionOutcome classifies a selection pass.
type SelectionOutcome int

const (
	// Selected means a candidate was chosen.
	Selected SelectionOutcome = iota

	// NotFound means no eligible candidate matched. The caller escalates;
	// NotFound is never a cue to retry.
	NotFound

	// EscalationRequired means the ticket's redirect budget is exhausted.
	// Distinct from NotFound so operators can see loop-prevention firing.
	EscalationRequired
)

// String implements fmt.Stringer.
func (o SelectionOutcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case NotFound:
		return "not_found"
	case EscalationRequired:
		return "escalation_required"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Selector ranks directory candidates for redirect hand-offs.
type Selector struct {
	dir directory.Directory
}

// NewSelector creates a Selector over the given directory.
func NewSelector(dir directory.Directory) *Selector {
	return &Selector{dir: dir}
}

// Select picks the expert a redirect request should hand the ticket to.
//
// # Description
//
// Loop prevention runs before any directory access: a ticket out of
// redirect budget returns EscalationRequired immediately, and the
// exclusion set (ticket history plus the request's own exclusions) is
// pushed into the directory query so prior holders never come back as
// candidates. Ranking follows the match scores above, with availability
// and then lowest workload breaking ties; the full order is deterministic.
//
// # Outputs
//
//   - *datatypes.EmployeeCandidate: The chosen candidate, with MatchScore
//     and MatchReasons populated. Nil unless the outcome is Selected.
//   - SelectionOutcome: Selected, NotFound or EscalationRequired.
//   - error: Non-nil only on directory failure.
func (s *Selector) Select(ctx context.Context, req *datatypes.RedirectRequest, ticket *datatypes.TicketContext) (*datatypes.EmployeeCandidate, SelectionOutcome, error) {
	if !ticket.CanRedirect() {
		return nil, EscalationRequired, nil
	}
	if !req.HasTarget() {
		// A redirect with nobody named cannot be routed mechanically.
		return nil, NotFound, nil
	}

	excluding := ticket.ExcludedExperts()
	for id := range req.ExcludeIdentities {
		excluding[id] = struct{}{}
	}

	query := strings.TrimSpace(req.TargetName + " " + req.TargetRole)
	candidates, err := s.dir.Search(ctx, query, excluding)
	if err != nil {
		return nil, NotFound, fmt.Errorf("candidate search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, NotFound, nil
	}

	scored := scoreCandidates(candidates, req)
	best := scored[0]
	if best.MatchScore <= 0 {
		// Candidates exist, but none matches who the expert asked for.
		return nil, NotFound, nil
	}
	return &best, Selected, nil
}

// MatchForQuery picks the initial expert for a fresh ticket, ranking the
// roster against the reformulated request text. Unlike Select there is no
// named target, so a zero score still yields the least-loaded available
// expert rather than NotFound.
func (s *Selector) MatchForQuery(ctx context.Context, query string, excluding map[string]struct{}) (*datatypes.EmployeeCandidate, bool, error) {
	candidates, err := s.dir.Search(ctx, query, excluding)
	if err != nil {
		return nil, false, fmt.Errorf("expert match: %w", err)
	}
	if len(candidates) == 0 {
		candidates, err = s.dir.ListAvailable(ctx, excluding)
		if err != nil {
			return nil, false, err
		}
		if len(candidates) == 0 {
			return nil, false, nil
		}
	}

	req := &datatypes.RedirectRequest{TargetRole: query, Reason: query}
	scored := scoreCandidates(candidates, req)
	return &scored[0], true, nil
}

// scoreCandidates assigns match scores and sorts best first.
func scoreCandidates(candidates []datatypes.EmployeeCandidate, req *datatypes.RedirectRequest) []datatypes.EmployeeCandidate {
	targetName := strings.ToLower(strings.TrimSpace(req.TargetName))
	targetRole := strings.ToLower(strings.TrimSpace(req.TargetRole))
	keywords := keywordTerms(targetRole + " " + strings.ToLower(req.Reason))

	scored := make([]datatypes.EmployeeCandidate, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].MatchScore, scored[i].MatchReasons = scoreOne(&scored[i], targetName, targetRole, keywords)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.Availability.Rank() != b.Availability.Rank() {
			return a.Availability.Rank() > b.Availability.Rank()
		}
		if a.Workload != b.Workload {
			return a.Workload < b.Workload
		}
		return a.Name < b.Name
	})
	return scored
}

func scoreOne(c *datatypes.EmployeeCandidate, targetName, targetRole string, keywords []string) (float64, []string) {
	var score float64
	var reasons []string

	name := strings.ToLower(c.Name)
	if targetName != "" {
		if name == targetName {
			score += scoreExactName
			reasons = append(reasons, "exact name match")
		} else if strings.Contains(name, targetName) || strings.Contains(targetName, name) {
			score += scorePartialName
			reasons = append(reasons, "partial name match")
		}
	}

	role := strings.ToLower(c.Role)
	if targetRole != "" && role != "" &&
		(strings.Contains(role, targetRole) || strings.Contains(targetRole, role)) {
		score += scoreRoleMatch
		reasons = append(reasons, "role match")
	}

	for _, skill := range c.Skills {
		skillLower := strings.ToLower(skill)
		for _, kw := range keywords {
			if strings.Contains(skillLower, kw) || strings.Contains(kw, skillLower) {
				score += scoreSkillMatch
				reasons = append(reasons, "skill match: "+skill)
				break
			}
		}
	}
	return score, reasons
}

// keywordTerms splits free text into ranking keywords, dropping words too
// short to be meaningful.
func keywordTerms(text string) []string {
	var terms []string
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, ".,;:!?")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}
