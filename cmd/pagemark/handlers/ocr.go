// Package handlers provides HTTP handlers for the pagemark API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/observability"
)

// Converter runs one document conversion. Implemented by the pipeline
// orchestrator.
type Converter interface {
	Run(ctx context.Context, data []byte) (*domain.RunResult, error)
}

// Fetcher downloads a document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Validator checks document bytes before conversion.
type Validator interface {
	Validate(data []byte) error
}

// OCRHandler handles PDF to Markdown conversion requests.
type OCRHandler struct {
	logger    *observability.Logger
	converter Converter
	fetcher   Fetcher
	validator Validator
	maxUpload int64
}

// NewOCRHandler creates an OCR handler.
func NewOCRHandler(logger *observability.Logger, converter Converter, fetcher Fetcher, validator Validator, maxUpload int64) *OCRHandler {
	return &OCRHandler{
		logger:    logger,
		converter: converter,
		fetcher:   fetcher,
		validator: validator,
		maxUpload: maxUpload,
	}
}

// OCRResponse is the success body for POST /ocr.
type OCRResponse struct {
	Text             string `json:"text"`
	Status           string `json:"status"`
	PagesProcessed   int    `json:"pages_processed"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// Convert handles POST /ocr. The caller provides either a multipart
// "file" upload or a "url" form value, never both.
func (h *OCRHandler) Convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := h.documentBytes(ctx, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.validator.Validate(data); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.converter.Run(ctx, data)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info().
		Int("pages", result.PagesProcessed).
		Int("chars", len(result.Markdown)).
		Dur("elapsed", result.Duration).
		Msg("Conversion request complete")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OCRResponse{
		Text:             result.Markdown,
		Status:           "success",
		PagesProcessed:   result.PagesProcessed,
		ProcessingTimeMs: result.Duration.Milliseconds(),
	})
}

// documentBytes resolves the request input to raw PDF bytes. Supplying
// both a file and a URL, or neither, is a validation error enforced
// here, before the pipeline is invoked.
func (h *OCRHandler) documentBytes(ctx context.Context, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, domain.ValidationError("failed to parse request body", err)
	}

	url := r.FormValue("url")
	file, _, fileErr := r.FormFile("file")
	hasFile := fileErr == nil

	switch {
	case !hasFile && url == "":
		return nil, domain.ValidationError("no PDF provided: upload a file or provide a url", nil)
	case hasFile && url != "":
		file.Close()
		return nil, domain.ValidationError("provide either a file or a url, not both", nil)
	case hasFile:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, domain.ValidationError("failed to read uploaded file", err)
		}
		return data, nil
	default:
		return h.fetcher.Fetch(ctx, url)
	}
}

func (h *OCRHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var de *domain.Error
	if errors.As(err, &de) {
		status = de.HTTPStatus()
	}

	h.logger.Error().Err(err).Int("status", status).Msg("Conversion request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "error",
		"error":  http.StatusText(status),
		"detail": err.Error(),
	})
}
