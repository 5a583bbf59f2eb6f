// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pagemark/pagemark/cmd/pagemark/handlers"
	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/llm"
	"github.com/pagemark/pagemark/internal/observability"
	"github.com/pagemark/pagemark/internal/pdf"
	"github.com/pagemark/pagemark/internal/pipeline"
)

// NewRouter wires the pipeline and returns the API router.
func NewRouter(logger *observability.Logger, cfg *config.Config) http.Handler {
	gates := pipeline.NewController(cfg.Pipeline.MaxConcurrentRenders, cfg.Pipeline.MaxConcurrentTranscribes)
	renderer := pdf.NewRenderer(cfg.Render, gates.Render, logger)
	client := llm.NewClient(cfg.LLM, logger)
	retry := llm.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, logger)
	orchestrator := pipeline.NewOrchestrator(renderer, client, retry, gates, cfg.Pipeline.BatchSize, logger)

	fetcher := pdf.NewFetcher(cfg.Fetch, logger)
	validator := pdf.NewValidator(cfg.Server.MaxUploadBytes)

	ocrHandler := handlers.NewOCRHandler(logger, orchestrator, fetcher, validator, cfg.Server.MaxUploadBytes)
	healthHandler := handlers.NewHealthHandler(version, cfg.LLM.APIKey != "")

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Post("/ocr", ocrHandler.Convert)

	return r
}
