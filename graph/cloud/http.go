package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ramarlina/agx-go/graph"
)

// HTTPRequest is the default net/http-backed Request implementation:
// JSON in, JSON out, against a base URL plus a bearer token.
type HTTPRequest struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPRequest returns an HTTPRequest with a default *http.Client.
// Timeouts are the caller's responsibility via context.
func NewHTTPRequest(baseURL, token string) *HTTPRequest {
	return &HTTPRequest{BaseURL: baseURL, Token: token, Client: &http.Client{}}
}

// Do implements Request.
func (h *HTTPRequest) Do(ctx context.Context, method, endpoint string, payload interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", method, endpoint, resp.StatusCode, respBody)
	}

	if len(respBody) == 0 {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return out, nil
}

// Client adapts the package's free Load/Save functions into graph.GraphLoader
// and graph.GraphSaver. It satisfies both interfaces by matching their
// method sets.
type Client struct {
	Req     Request
	Retries int
}

// Load implements graph.GraphLoader.
func (c Client) Load(ctx context.Context, taskID string, retries int) (*graph.Graph, error) {
	if retries <= 0 {
		retries = c.Retries
	}
	return Load(ctx, c.Req, taskID, retries)
}

// Save implements graph.GraphSaver.
func (c Client) Save(ctx context.Context, taskID string, g *graph.Graph) (*graph.Graph, error) {
	return Save(ctx, c.Req, taskID, g)
}
