// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the AleutianDesk orchestrator HTTP server.
//
// This is the main entry point for the containerized orchestrator service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate employee directory URL (optional)
//   - ROSTER_PATH: JSON roster file for the in-memory directory (optional)
//   - STORE_PATH: BadgerDB directory for tickets and sessions (default: ./data/desk)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//   - GIN_MODE: Gin framework mode - debug, release, test
//   - STEP_TIMEOUT_SECONDS: Per-step timeout (default: 30)
//   - RESUME_TIMEOUT_SECONDS: Resume pipeline timeout (default: 60)
//   - MAX_RESUME_WORKERS: Concurrent resume pipelines (default: 4)
//   - DISABLE_METRICS: Turn off the Prometheus workflow metrics (default: false)
//   - ALLOW_REASSIGN: Allow redirecting a ticket back to a previous expert (default: false)
//   - LOG_DIR: Directory for JSON log files in addition to stderr (optional)
//   - DESK_API_TOKEN: Shared bearer token guarding the API (optional)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianDesk/pkg/logging"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator"
)

func main() {
	// Setup structured logging; LOG_DIR additionally writes JSON files
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "desk-orchestrator",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:             getEnvInt("ORCHESTRATOR_PORT", 12310),
		LLMBackend:       getEnvString("LLM_BACKEND_TYPE", "ollama"),
		WeaviateURL:      os.Getenv("WEAVIATE_SERVICE_URL"),
		RosterPath:       os.Getenv("ROSTER_PATH"),
		StorePath:        getEnvString("STORE_PATH", "./data/desk"),
		OTelEndpoint:     getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
		APIToken:         os.Getenv("DESK_API_TOKEN"),
		GinMode:          os.Getenv("GIN_MODE"),
		StepTimeout:      time.Duration(getEnvInt("STEP_TIMEOUT_SECONDS", 30)) * time.Second,
		ResumeTimeout:    time.Duration(getEnvInt("RESUME_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxResumeWorkers: getEnvInt("MAX_RESUME_WORKERS", 4),
		DisableMetrics:   getEnvBool("DISABLE_METRICS", false),
		AllowReassign:    getEnvBool("ALLOW_REASSIGN", false),
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
		"roster_path", cfg.RosterPath,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("Invalid integer in environment, using default",
			"key", key, "default", defaultValue)
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		slog.Warn("Invalid boolean in environment, using default",
			"key", key, "default", defaultValue)
	}
	return defaultValue
}
