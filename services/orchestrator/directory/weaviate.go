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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.orchestrator.directory")

// employeeClass is the Weaviate class holding the roster.
const employeeClass = "Employee"

// queryLimit bounds one roster query. The roster is small relative to the
// knowledge base; 200 covers every deployment seen so far.
const queryLimit = 200

// Weaviate adapts the Employee class in Weaviate to the Directory
// interface.
type Weaviate struct {
	client *weaviate.Client
}

// NewWeaviate creates a directory over an initialized Weaviate client.
func NewWeaviate(client *weaviate.Client) *Weaviate {
	return &Weaviate{client: client}
}

func (w *Weaviate) ListAvailable(ctx context.Context, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error) {
	ctx, span := tracer.Start(ctx, "Weaviate.ListAvailable")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"availability"}).
		WithOperator(filters.NotEqual).
		WithValueString(string(datatypes.AvailabilityOffline))

	resp, err := w.query(ctx, where)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	candidates, err := parseEmployees(resp, excluding)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("directory.candidates", len(candidates)))
	return candidates, nil
}

func (w *Weaviate) Search(ctx context.Context, query string, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error) {
	if query == "" {
		return w.ListAvailable(ctx, excluding)
	}

	ctx, span := tracer.Start(ctx, "Weaviate.Search")
	defer span.End()
	span.SetAttributes(attribute.String("directory.query", query))

	// Broad prefilter: name or role substring, still excluding offline.
	// Skill matching happens in the selector over the returned rows.
	pattern := "*" + query + "*"
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"availability"}).
				WithOperator(filters.NotEqual).
				WithValueString(string(datatypes.AvailabilityOffline)),
			filters.Where().
				WithOperator(filters.Or).
				WithOperands([]*filters.WhereBuilder{
					filters.Where().
						WithPath([]string{"name"}).
						WithOperator(filters.Like).
						WithValueString(pattern),
					filters.Where().
						WithPath([]string{"role"}).
						WithOperator(filters.Like).
						WithValueString(pattern),
				}),
		})

	resp, err := w.query(ctx, where)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	candidates, err := parseEmployees(resp, excluding)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// A too-narrow substring should not starve the selector; fall back
	// to the full available roster and let scoring sort it out.
	if len(candidates) == 0 {
		return w.ListAvailable(ctx, excluding)
	}
	return candidates, nil
}

func (w *Weaviate) query(ctx context.Context, where *filters.WhereBuilder) (*models.GraphQLResponse, error) {
	resp, err := w.client.GraphQL().Get().
		WithClassName(employeeClass).
		WithWhere(where).
		WithLimit(queryLimit).
		WithFields(
			graphql.Field{Name: "employee_id"},
			graphql.Field{Name: "name"},
			graphql.Field{Name: "role"},
			graphql.Field{Name: "skills"},
			graphql.Field{Name: "availability"},
			graphql.Field{Name: "workload"},
		).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// employeeQueryResult mirrors the GraphQL Get response shape.
type employeeQueryResult struct {
	Get struct {
		Employee []struct {
			EmployeeID   string   `json:"employee_id"`
			Name         string   `json:"name"`
			Role         string   `json:"role"`
			Skills       []string `json:"skills"`
			Availability string   `json:"availability"`
			Workload     float64  `json:"workload"`
		} `json:"Employee"`
	} `json:"Get"`
}

// parseEmployees converts a GraphQL response into candidates, dropping
// excluded identities. Marshal and unmarshal converts the untyped map
// into the typed result.
func parseEmployees(resp *models.GraphQLResponse, excluding map[string]struct{}) ([]datatypes.EmployeeCandidate, error) {
	if resp == nil || resp.Data == nil {
		return nil, nil
	}
	jsonBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal directory response: %w", err)
	}
	var result employeeQueryResult
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil, fmt.Errorf("unmarshal directory response: %w", err)
	}

	candidates := make([]datatypes.EmployeeCandidate, 0, len(result.Get.Employee))
	for _, row := range result.Get.Employee {
		if excluded(row.EmployeeID, excluding) {
			continue
		}
		candidates = append(candidates, datatypes.EmployeeCandidate{
			ID:           row.EmployeeID,
			Name:         row.Name,
			Role:         row.Role,
			Skills:       row.Skills,
			Availability: datatypes.Availability(row.Availability),
			Workload:     int(row.Workload),
		})
	}
	return candidates, nil
}

var _ Directory = (*Weaviate)(nil)
