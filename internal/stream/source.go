package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xiaot623/agentflow/internal/domain"
)

// ErrNoBackend is returned by an HTTPSource without a URL.
var ErrNoBackend = fmt.Errorf("%w: no stream backend configured", domain.ErrTransport)

// Source opens the body of a streaming backend response.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// InvokeRequest is the payload posted to a streaming backend.
type InvokeRequest struct {
	RunID  string `json:"run_id"`
	RunKey string `json:"run_key"`
}

// HTTPSource posts a run request and streams the response body.
type HTTPSource struct {
	httpClient *http.Client
	url        string
	req        InvokeRequest
}

// NewHTTPSource creates a source for the backend at url.
func NewHTTPSource(url string, req InvokeRequest) *HTTPSource {
	return &HTTPSource{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
		url: url,
		req: req,
	}
}

// WithClient replaces the HTTP client.
func (s *HTTPSource) WithClient(c *http.Client) *HTTPSource {
	s.httpClient = c
	return s
}

// Open posts the run request. Any non-200 response is a transport failure.
func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.url == "" {
		return nil, ErrNoBackend
	}
	body, err := json.Marshal(s.req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Run-ID", s.req.RunID)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to reach backend: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: backend returned status %d: %s", domain.ErrTransport, resp.StatusCode, string(bytes.TrimSpace(bodyBytes)))
	}
	return resp.Body, nil
}

// ReaderSource serves a fixed reader, mostly for tests and replays.
// A reader that is also an io.Closer is closed when the session ends.
type ReaderSource struct {
	R io.Reader
}

func (s ReaderSource) Open(context.Context) (io.ReadCloser, error) {
	if rc, ok := s.R.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.R), nil
}
