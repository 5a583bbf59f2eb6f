// Package llm provides the vision transcription client and its retry
// policy.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pagemark/pagemark/internal/config"
	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/observability"
)

// Client submits page-image batches to an OpenAI-compatible vision
// endpoint and classifies failures for the retry policy.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image).
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message.
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
}

// Response represents the API response structure.
type Response struct {
	ID      string       `json:"id"`
	Choices []Choice     `json:"choices"`
	Usage   domain.Usage `json:"usage"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage holds the completion content.
type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates a transcription client from config.
func NewClient(cfg config.LLMConfig, logger *observability.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.WithComponent("llm"),
	}
}

// Transcribe sends one batch to the vision endpoint and returns its
// Markdown fragment. Each call carries its own deadline; expiry is
// classified as a timeout, never surfaced as a raw transport error.
func (c *Client) Transcribe(ctx context.Context, batch domain.Batch) (*domain.TranscriptionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(batch))
	if err != nil {
		return nil, domain.InternalError("marshal transcription request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.InternalError("build transcription request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("HTTP-Referer", "https://github.com/pagemark/pagemark")
	req.Header.Set("X-Title", "pagemark")

	c.logger.Debug().
		Int("batch", batch.Seq).
		Int("pages", len(batch.Pages)).
		Msg("Submitting batch")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	return parseResponse(resp.Body, batch.Seq)
}

// buildRequest constructs the chat-completion payload for one batch.
// Multi-page batches interleave page-number labels with the images so
// the model keeps reading order across pages.
func (c *Client) buildRequest(batch domain.Batch) *Request {
	messages := []Message{
		{Role: "system", Content: []ContentPart{{Type: "text", Text: systemPrompt}}},
		{Role: "user", Content: []ContentPart{{Type: "text", Text: userPrompt}}},
	}

	var content []ContentPart
	if len(batch.Pages) > 1 {
		content = append(content, ContentPart{Type: "text", Text: multiPageInstruction})
	}
	for _, page := range batch.Pages {
		content = append(content,
			ContentPart{Type: "text", Text: fmt.Sprintf("Page %d:", page.Number)},
			ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: dataURL(page.PNG)}},
		)
	}
	messages = append(messages, Message{Role: "user", Content: content})

	return &Request{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
	}
}

func dataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// classifyTransportError maps transport failures to error classes: the
// call's own deadline means timeout, caller cancellation propagates
// untouched, everything else (resets, refused connections) is transient.
func (c *Client) classifyTransportError(parent, call context.Context, err error) error {
	if errors.Is(call.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return domain.TimeoutError("transcription call timed out", err)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return domain.TransientError("transcription request failed", err)
}

// classifyStatus maps non-200 upstream responses to error classes.
func classifyStatus(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))

	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return domain.TransientError(msg, nil)
	case http.StatusRequestTimeout:
		return domain.TimeoutError(msg, nil)
	default:
		// Auth failures, malformed requests, content rejections.
		return domain.FatalError(msg, nil)
	}
}

// parseResponse decodes the completion and extracts the Markdown text.
func parseResponse(body io.Reader, seq int) (*domain.TranscriptionResult, error) {
	var r Response
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, domain.FatalError("decode transcription response", err)
	}

	if len(r.Choices) == 0 || strings.TrimSpace(r.Choices[0].Message.Content) == "" {
		return nil, domain.FatalError("no text in transcription response", nil)
	}

	return &domain.TranscriptionResult{
		Seq:      seq,
		Markdown: strings.TrimSpace(r.Choices[0].Message.Content),
		Usage:    r.Usage,
	}, nil
}
