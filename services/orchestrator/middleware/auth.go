// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// The orchestrator normally runs on an internal network where the voice
// stack and the intake channels are the only callers. For deployments
// that expose it further, RequireToken adds a shared-secret gate in
// front of the API without pulling in an identity provider.
//
// # Authentication Flow
//
//	Request
//	   │
//	   ▼
//	RequireToken
//	   │
//	   ├─► /health and /metrics pass through (probes and scrapers)
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   └─► Constant-time compare against the configured secret
//	           │
//	           ▼
//	       Handler, or 401
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// unguardedPaths are reachable without a token. Probes and the metrics
// scraper do not carry credentials.
var unguardedPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequireToken creates a middleware that rejects requests whose bearer
// token does not match the configured secret.
//
// # Description
//
// Extracts the token from the Authorization header and compares it to
// the secret in constant time. An empty secret disables the check
// entirely, which is the default for internal deployments.
//
// # Inputs
//
//   - token: The shared secret. Empty disables authentication.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	router.Use(middleware.RequireToken(cfg.APIToken))
//
// # Limitations
//
//   - Only supports Bearer token authentication
//   - A single shared secret, no per-caller identity
//
// # Thread Safety
//
// Safe for concurrent use. The secret is captured at construction and
// never mutated.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || unguardedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		presented := bearerToken(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing API token",
			})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns "" for a missing or malformed header.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
