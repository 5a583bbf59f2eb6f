package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/observability"
)

// Fetcher downloads a source document by URL. Fetch failures surface as
// unavailable-class errors, with timeouts mapped to 504 so callers can
// tell a slow origin from a bad one.
type Fetcher struct {
	cfg        config.FetchConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// NewFetcher creates a fetcher from config.
func NewFetcher(cfg config.FetchConfig, logger *observability.Logger) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithComponent("fetch"),
	}
}

// Fetch downloads the PDF at url, enforcing the configured timeout and
// size limit and verifying the payload is actually a PDF.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.logger.Info().Str("url", url).Msg("Downloading document")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.ValidationError("invalid document URL", err)
	}
	req.Header.Set("User-Agent", "pagemark/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &domain.Error{
				Class:   domain.ClassUnavailable,
				Message: "timed out downloading document",
				Status:  http.StatusGatewayTimeout,
				Err:     err,
			}
		}
		return nil, domain.UnavailableError("failed to download document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.UnavailableError(fmt.Sprintf("document origin returned %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, domain.UnavailableError("failed to read document body", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, domain.ValidationError(fmt.Sprintf("document exceeds %d byte limit", f.cfg.MaxBytes), nil)
	}

	// Origins frequently misreport Content-Type, so trust the bytes over
	// the header.
	if err := NewValidator(0).Validate(data); err != nil {
		return nil, domain.UnavailableError("URL does not point to a valid PDF", err)
	}

	f.logger.Info().Str("url", url).Int("bytes", len(data)).Msg("Document downloaded")
	return data, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}
