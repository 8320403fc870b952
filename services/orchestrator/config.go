// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables (see cmd/orchestrator), config
// files, or programmatically for testing. All fields have defaults
// applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int `validate:"gte=0,lte=65535"`

	// LLMBackend specifies the LLM provider behind the agent gateway.
	// Valid values: "openai", "ollama". Default: "ollama"
	LLMBackend string `validate:"omitempty,oneof=openai ollama"`

	// WeaviateURL is the employee directory backend. If empty, the roster
	// file (or an empty in-memory roster) is used instead.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// RosterPath is a JSON roster file for the in-memory directory, used
	// when Weaviate is not configured.
	RosterPath string

	// StorePath is the BadgerDB directory for tickets and call sessions.
	// Default: "./data/desk"
	StorePath string

	// StoreInMemory runs the store without disk persistence. Testing only.
	StoreInMemory bool

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// DisableMetrics turns off the Prometheus metrics endpoint. Metrics
	// are on by default; the zero value keeps them on.
	DisableMetrics bool

	// APIToken protects the API with a shared bearer token. Empty
	// disables authentication; /health and /metrics are always open.
	APIToken string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string `validate:"omitempty,oneof=debug release test"`

	// StepTimeout bounds each workflow step. Default 30s.
	StepTimeout time.Duration `validate:"gte=0"`

	// ResumeTimeout bounds one resume-pipeline run. Default 60s.
	ResumeTimeout time.Duration `validate:"gte=0"`

	// MaxResumeWorkers bounds concurrent resume-pipeline runs. Default 4.
	MaxResumeWorkers int `validate:"gte=0"`

	// AllowReassign lets a redirect return a ticket to an expert who
	// already handled it. Operator override; off by default.
	AllowReassign bool
}

var configValidate = validator.New()

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	return configValidate.Struct(c)
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/desk"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.ResumeTimeout == 0 {
		cfg.ResumeTimeout = 60 * time.Second
	}
	if cfg.MaxResumeWorkers == 0 {
		cfg.MaxResumeWorkers = 4
	}
	return cfg
}
