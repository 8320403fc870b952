// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the support desk orchestration service.
//
// This package contains the main service type that wires all components
// together: HTTP routing, the workflow engine, the LLM agent gateway, the
// employee directory, the embedded ticket store, and observability
// infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12310, LLMBackend: "ollama"}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianDesk/services/agents"
	"github.com/AleutianAI/AleutianDesk/services/llm"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/directory"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/engine"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianDesk/services/orchestrator/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and alternative
// implementations. Only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers must
	// not modify routes after construction.
	Router() *gin.Engine
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration
//   - router: Gin HTTP engine
//   - llmClient: LLM provider client
//   - weaviateClient: Employee directory backend (may be nil)
//   - ticketStore: Embedded BadgerDB ticket/session store
//   - engine: The workflow engine all handlers close over
//   - tracerCleanup: Function to shut down the tracer on exit
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	router         *gin.Engine
	llmClient      llm.LLMClient
	weaviateClient *weaviate.Client
	ticketStore    store.Store
	engine         *engine.Engine
	tracerCleanup  func(context.Context)
}

// New creates the orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies default configuration and validates it
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Opens the embedded ticket store
//  5. Builds the employee directory (Weaviate, or roster file fallback)
//  6. Creates the LLM client and the agent gateway over it
//  7. Builds the workflow engine and the HTTP router
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the LLM provider (API keys, URLs)
//   - The OTel collector is reachable at the configured endpoint
func New(cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &service{config: cfg}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.WorkflowMetrics
	if !s.config.DisableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for the workflow")
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open ticket store: %w", err)
	}

	dir, err := s.initDirectory()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize employee directory: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	gateway := agents.NewGateway(s.llmClient, agents.Config{
		Timeout: s.config.StepTimeout,
	})

	s.engine = engine.New(gateway, dir, s.ticketStore, nil, metrics, engine.Config{
		StepTimeout:      s.config.StepTimeout,
		ResumeTimeout:    s.config.ResumeTimeout,
		MaxResumeWorkers: int64(s.config.MaxResumeWorkers),
		AllowReassign:    s.config.AllowReassign,
	})

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error. Cleanup
// is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting orchestrator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("desk-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the embedded BadgerDB ticket store.
func (s *service) initStore() error {
	var (
		st  store.Store
		err error
	)
	if s.config.StoreInMemory {
		st, err = store.OpenInMemory()
	} else {
		st, err = store.Open(store.DefaultConfig(s.config.StorePath))
	}
	if err != nil {
		return err
	}
	s.ticketStore = st
	return nil
}

// initDirectory builds the employee directory.
//
// Weaviate is preferred when configured. Without it the roster file is
// loaded into the in-memory directory; without either the roster is empty
// and every request that needs a human escalates.
func (s *service) initDirectory() (directory.Directory, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		parsedURL, err := url.Parse(weaviateURL)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
		}
		client, err := weaviate.NewClient(weaviate.Config{
			Host:   parsedURL.Host,
			Scheme: parsedURL.Scheme,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
		}
		s.weaviateClient = client
		slog.Info("Employee directory backed by Weaviate", "url", weaviateURL)
		return directory.NewWeaviate(client), nil
	}

	if s.config.RosterPath != "" {
		dir, err := directory.NewMemoryFromFile(s.config.RosterPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Employee directory loaded from roster file", "path", s.config.RosterPath)
		return dir, nil
	}

	slog.Warn("No employee directory configured; requests needing a human will escalate")
	return directory.NewMemory(), nil
}

// initLLMClient initializes the LLM provider client.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}

	return err
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("desk-orchestrator"))
	s.router.Use(middleware.RequireToken(s.config.APIToken))

	routes.SetupRoutes(s.router, s.engine)
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure.
func (s *service) cleanup() {
	if s.ticketStore != nil {
		if err := s.ticketStore.Close(); err != nil {
			slog.Warn("ticket store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
