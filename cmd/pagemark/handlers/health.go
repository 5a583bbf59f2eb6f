package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler serves the health-check surface.
type HealthHandler struct {
	version       string
	llmConfigured bool
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, llmConfigured bool) *HealthHandler {
	return &HealthHandler{version: version, llmConfigured: llmConfigured}
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	LLMConfigured bool      `json:"llm_configured"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC(),
		LLMConfigured: h.llmConfigured,
	})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ready"}`))
}
