// Package analysis is the HTTP client for the external document analysis
// service. Documents go out as multipart uploads; results come back as
// structured JSON.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/docsift/mailscan/internal/config"
	"github.com/docsift/mailscan/internal/models"
)

// Finding is one item the service flagged in a document.
type Finding struct {
	Section  string `json:"section"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Result is the structured outcome of one analyze or evaluate call.
type Result struct {
	DocumentTitle string    `json:"document_title"`
	Summary       string    `json:"summary"`
	Score         float64   `json:"score"`
	Findings      []Finding `json:"findings"`
}

// Service submits one document on behalf of a user and returns the result.
type Service interface {
	Submit(ctx context.Context, kind models.Kind, user *models.User, filename string, document io.Reader) (*Result, error)
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client is the HTTP implementation of Service, authenticated with static
// API key/secret headers.
type Client struct {
	cfg        config.Analysis
	httpClient *http.Client
}

// NewClient creates a client for the configured analysis service.
func NewClient(cfg config.Analysis) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Submit posts the document to /analyze or /evaluate depending on kind.
func (c *Client) Submit(ctx context.Context, kind models.Kind, user *models.User, filename string, document io.Reader) (*Result, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	// Stream the multipart body so large documents never sit in memory twice.
	go func() {
		err := writeForm(form, user, filename, document)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(form.Close())
	}()

	url := fmt.Sprintf("%s/%s", c.cfg.BaseURL, string(kind))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Api-Secret", c.cfg.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}

	return &result, nil
}

func writeForm(form *multipart.Writer, user *models.User, filename string, document io.Reader) error {
	if err := form.WriteField("user_id", strconv.FormatInt(user.ID, 10)); err != nil {
		return err
	}
	if err := form.WriteField("user_name", user.Name); err != nil {
		return err
	}
	if err := form.WriteField("user_email", user.Email); err != nil {
		return err
	}

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, document); err != nil {
		return fmt.Errorf("failed to stream document: %w", err)
	}

	return nil
}
