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

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// route is the branch taken after the knowledge search step.
type route int

const (
	// routeDirectAnswer resolves the request from the knowledge base.
	routeDirectAnswer route = iota

	// routeOutOfScope rejects the request as outside the support domain.
	routeOutOfScope

	// routeHumanExpert hands the ticket to a human expert.
	routeHumanExpert
)

// String implements fmt.Stringer.
func (r route) String() string {
	switch r {
	case routeDirectAnswer:
		return "direct_answer"
	case routeOutOfScope:
		return "out_of_scope"
	default:
		return "human_expert"
	}
}

// routeAfterSearch decides where the workflow goes after knowledge_search.
//
// The decision reads only the typed enum fields of the knowledge result.
// A direct answer requires full coverage at medium confidence or better,
// or partial coverage at high confidence, and a non-empty answer body.
// Everything else goes to a human.
func routeAfterSearch(k *datatypes.KnowledgeResult) route {
	if k.Scope == datatypes.ScopeOutside {
		return routeOutOfScope
	}
	if strings.TrimSpace(k.Answer) == "" {
		return routeHumanExpert
	}
	switch k.Found {
	case datatypes.InfoYes:
		if k.Confidence.AtLeast(datatypes.ConfidenceMedium) {
			return routeDirectAnswer
		}
	case datatypes.InfoPartial:
		if k.Confidence == datatypes.ConfidenceHigh {
			return routeDirectAnswer
		}
	}
	return routeHumanExpert
}
