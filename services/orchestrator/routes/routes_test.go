// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/directory"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/engine"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/store"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// nullGateway satisfies agents.Gateway; route registration never calls it.
type nullGateway struct{}

func (nullGateway) Reformulate(_ context.Context, query string) (string, error) {
	return query, nil
}

func (nullGateway) SearchKnowledge(_ context.Context, _ string) (*datatypes.KnowledgeResult, error) {
	return &datatypes.KnowledgeResult{}, nil
}

func (nullGateway) ExtractRedirect(_ context.Context, _ string) (*datatypes.RedirectRequest, error) {
	return &datatypes.RedirectRequest{}, nil
}

func (nullGateway) SummarizeCall(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := engine.New(nullGateway{}, directory.NewMemory(), st, nil, nil, engine.Config{})
	router := gin.New()
	SetupRoutes(router, eng)
	return router
}

// ============================================================================
// Route Registration Tests
// ============================================================================

func TestSetupRoutes_CoreRoutesRegistered(t *testing.T) {
	router := newTestRouter(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/requests"},
		{"GET", "/v1/tickets/:id"},
		{"POST", "/v1/calls/:sessionId/accepted"},
		{"POST", "/v1/calls/:sessionId/ended"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", want.method, want.path)
		}
	}
}

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	// Prometheus metrics endpoint should return 200
	if w.Code != http.StatusOK {
		t.Errorf("Metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Error("Metrics endpoint should return Content-Type header")
	}
}

func TestSetupRoutes_UnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/nope", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Unknown route returned %d, want %d", w.Code, http.StatusNotFound)
	}
}
