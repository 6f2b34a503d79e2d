// Package backend provides the HTTP client for the enterprise procurement
// backend. Each plan step maps to one named remote operation which returns
// either a structured success payload or a structured business error.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/procureflow/agent/internal/domain"
)

// Client invokes named operations on the procurement backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. The timeout covers one operation call;
// a timeout surfaces as a step failure, the engine enforces none of its own.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// errorEnvelope is the backend's business error response shape.
type errorEnvelope struct {
	Error *domain.BackendError `json:"error"`
}

// Call invokes one named backend operation. On a business error the returned
// error is a *domain.BackendError carrying the backend's code, message,
// severity and details verbatim.
func (c *Client) Call(ctx context.Context, op string, input map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	url := c.baseURL + "/ops/" + op
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend call %s failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	// Prefer the structured business error; fall back to the raw body when
	// the backend answered with something else entirely.
	var envelope errorEnvelope
	if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error != nil && envelope.Error.Code != "" {
		return nil, envelope.Error
	}
	var direct domain.BackendError
	if err := json.Unmarshal(respBody, &direct); err == nil && direct.Code != "" {
		return nil, &direct
	}
	return nil, &domain.BackendError{
		Code:     fmt.Sprintf("http_%d", resp.StatusCode),
		Message:  strings.TrimSpace(string(respBody)),
		Severity: "error",
	}
}
