package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks JSON over HTTP to the remote system of record.
// It implements both Client and Probe.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout bounds every request. Default 10s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// NewHTTPClient creates a client for the given base URL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Online probes the base URL with a HEAD request. Any response,
// error status included, means the network path is up.
func (c *HTTPClient) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// FetchAll GETs a collection endpoint. Each element's "id" and
// "tenant_id" keys, when present, become the Record's identifiers;
// everything else stays in the payload for schema normalization.
func (c *HTTPClient) FetchAll(ctx context.Context, endpoint string) ([]Record, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("remote %s: decode collection: %w", endpoint, err)
	}

	recs := make([]Record, 0, len(raw))
	for _, obj := range raw {
		rec := Record{Payload: obj}
		if id, ok := obj["id"].(string); ok {
			rec.ID = id
		}
		if tenant, ok := obj["tenant_id"].(string); ok {
			rec.TenantID = tenant
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Create POSTs one payload and decodes the server-assigned id from the
// response body's "id" field.
func (c *HTTPClient) Create(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("remote %s: decode create response: %w", endpoint, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("remote %s: create response missing id", endpoint)
	}
	return resp.ID, nil
}

// Update PUTs the payload to endpoint/remoteID.
func (c *HTTPClient) Update(ctx context.Context, endpoint, remoteID string, payload map[string]any) error {
	_, err := c.do(ctx, http.MethodPut, endpoint+"/"+remoteID, payload)
	return err
}

// CreateSub POSTs to a sub-resource endpoint.
func (c *HTTPClient) CreateSub(ctx context.Context, endpoint string, payload map[string]any) error {
	_, err := c.do(ctx, http.MethodPost, endpoint, payload)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload map[string]any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("remote %s: encode payload: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("remote %s: build request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: no HTTP status was received.
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote %s: read response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Status:   resp.StatusCode,
			Endpoint: endpoint,
			Body:     truncate(string(body), 200),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
