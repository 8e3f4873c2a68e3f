package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPExtractor posts images to a remote embedding service.
//
// Request:  {"model": "...", "path": "...", "image": "<base64>"}
// Response: {"embedding": [...]} or {"error": {"message": "..."}}
type HTTPExtractor struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

type extractRequest struct {
	Model string `json:"model"`
	Path  string `json:"path"`
	Image string `json:"image"`
}

type extractResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewHTTPExtractor creates an extractor for url. The API key is read from
// apiKeyEnv when set; an empty variable sends no Authorization header.
func NewHTTPExtractor(url, apiKeyEnv, model string, timeout time.Duration) (*HTTPExtractor, error) {
	if url == "" {
		return nil, fmt.Errorf("http extractor requires a url")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var apiKey string
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
	}

	return &HTTPExtractor{
		apiKey: apiKey,
		model:  model,
		url:    url,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (e *HTTPExtractor) Extract(ctx context.Context, path string, image []byte) ([]float32, error) {
	reqBody := extractRequest{
		Model: e.model,
		Path:  path,
		Image: base64.StdEncoding.EncodeToString(image),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: preview(body)}
	}

	var extResp extractResponse
	if err := json.Unmarshal(body, &extResp); err != nil {
		return nil, Permanent(fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err))
	}

	if extResp.Error != nil {
		return nil, Permanent(fmt.Errorf("API error: %s", extResp.Error.Message))
	}

	return extResp.Embedding, nil
}

func (e *HTTPExtractor) Version() string {
	return "http:" + e.model
}

// StatusError is a non-200 response. 5xx and 429 are retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request may succeed on retry.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
