// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the orchestrator's HTTP
// surface. Each handler is a closure over the workflow engine; request
// bodies are validated at this boundary before anything reaches the engine.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/calls"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/engine"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/store"
)

var workflowTracer = otel.Tracer("aleutian.orchestrator.handlers")

// SubmitRequest handles POST /v1/requests: runs the initial workflow
// pipeline and returns the FinalResult. A pending result (expert call in
// flight) answers 202, terminal results answer 200.
func SubmitRequest(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := workflowTracer.Start(c.Request.Context(), "SubmitRequest")
		defer span.End()

		var body datatypes.SubmitRequestBody
		if err := c.BindJSON(&body); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to parse submit request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := body.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		final, err := eng.Run(ctx, engine.RunRequest{
			Query:       body.Query,
			RequesterID: body.RequesterID,
			Channel:     body.Channel,
			Metadata:    body.Metadata,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("workflow run failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "request could not be processed"})
			return
		}
		c.JSON(statusCodeFor(final), final)
	}
}

// NotifyCallEnded handles POST /v1/calls/:sessionId/ended: resumes the
// workflow over the submitted transcript. Duplicate notifications are
// answered from the cached result.
func NotifyCallEnded(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := workflowTracer.Start(c.Request.Context(), "NotifyCallEnded")
		defer span.End()
		sessionID := c.Param("sessionId")

		var body datatypes.CallEndedBody
		if err := c.BindJSON(&body); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to parse call-ended notification",
				"session_id", sessionID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := body.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		final, err := eng.ResumeAfterCall(ctx, sessionID, body.Entries())
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown call session"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("workflow resume failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "notification could not be processed"})
			return
		}
		c.JSON(statusCodeFor(final), final)
	}
}

// NotifyCallAccepted handles POST /v1/calls/:sessionId/accepted: the
// expert picked up. Repeat notifications are no-ops; a notification for an
// already-ended call answers 409.
func NotifyCallAccepted(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := workflowTracer.Start(c.Request.Context(), "NotifyCallAccepted")
		defer span.End()
		sessionID := c.Param("sessionId")

		if err := eng.MarkCallActive(ctx, sessionID); err != nil {
			switch {
			case errors.Is(err, store.ErrSessionNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown call session"})
			case errors.Is(err, calls.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": "call already ended"})
			default:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				slog.Error("failed to mark call active", "session_id", sessionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "notification could not be processed"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "active", "session_id": sessionID})
	}
}

// GetTicket handles GET /v1/tickets/:id: returns the durable ticket record,
// redirect history included.
func GetTicket(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ticket, err := eng.Ticket(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrTicketNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown ticket"})
				return
			}
			slog.Error("failed to load ticket", "ticket_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ticket could not be loaded"})
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// statusCodeFor maps a FinalResult to its HTTP status: pending work is 202,
// everything terminal is 200. Escalation is a successful conclusion of the
// workflow, not a server error.
func statusCodeFor(final *datatypes.FinalResult) int {
	if final.Status == datatypes.StatusPending {
		return http.StatusAccepted
	}
	return http.StatusOK
}
