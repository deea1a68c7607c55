// Package inverted is the inverted-index store client, speaking the
// Elasticsearch HTTP API directly. Files are stored as one parent document
// plus chunked child documents; retrieval is a hybrid of full-text and kNN
// vector search fused by Reciprocal Rank Fusion.
package inverted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/praxisworks/tabula/o11y"
)

// DefaultIndex is the single index holding every knowledge-base document.
const DefaultIndex = "knowledge_base"

// Client talks to an Elasticsearch deployment over HTTP.
type Client struct {
	baseURL    string
	index      string
	dimension  int
	httpClient *http.Client
	logger     *o11y.Logger
	enabled    bool
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithIndex overrides the index name.
func WithIndex(index string) Option {
	return func(c *Client) { c.index = index }
}

// WithDimension sets the dense-vector dimension of the index mapping.
func WithDimension(dim int) Option {
	return func(c *Client) { c.dimension = dim }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDisabled marks the backend as disabled; operations become no-ops
// returning empty results.
func WithDisabled() Option {
	return func(c *Client) { c.enabled = false }
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		index:      DefaultIndex,
		dimension:  1024,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     o11y.NewLogger(),
		enabled:    true,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether the backend is active.
func (c *Client) Enabled() bool { return c.enabled }

// HealthCheck probes the deployment.
func (c *Client) HealthCheck(ctx context.Context) o11y.HealthResult {
	if !c.enabled {
		return o11y.HealthResult{Status: o11y.Degraded, Message: "disabled by configuration"}
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, nil); err != nil {
		return o11y.HealthResult{Status: o11y.Unhealthy, Message: err.Error()}
	}
	return o11y.HealthResult{Status: o11y.Healthy}
}

// do sends one JSON request and decodes the response into out (which may be
// nil). Transient transport failures are retried with exponential backoff;
// HTTP-level errors are returned as-is.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("inverted: encoding request: %w", err)
		}
	}

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("elasticsearch %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
		}
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("inverted: %s %s: %w", method, path, err)
	}
	return nil
}

// bulk sends an ndjson payload to the _bulk endpoint and fails if any item
// errored.
func (c *Client) bulk(ctx context.Context, lines []string) error {
	body := strings.Join(lines, "\n") + "\n"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/_bulk", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inverted: bulk: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("inverted: bulk: decoding response: %w", err)
	}
	if result.Errors {
		for _, item := range result.Items {
			for _, op := range item {
				if op.Status >= 400 {
					return fmt.Errorf("inverted: bulk item failed (%d): %s", op.Status, string(op.Error))
				}
			}
		}
		return fmt.Errorf("inverted: bulk reported errors")
	}
	return nil
}

// EnsureIndex creates the index with its mapping if it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	// HEAD-equivalent existence probe.
	var exists bool
	{
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/"+c.index, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("inverted: probing index: %w", err)
		}
		resp.Body.Close()
		exists = resp.StatusCode == http.StatusOK
	}
	if exists {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"knowledge_id":        map[string]any{"type": "keyword"},
				"file_id":             map[string]any{"type": "keyword"},
				"user_id":             map[string]any{"type": "keyword"},
				"permission_level":    map[string]any{"type": "keyword"},
				"doc_type":            map[string]any{"type": "keyword"},
				"parent_id":           map[string]any{"type": "keyword"},
				"chunk_index":         map[string]any{"type": "integer"},
				"total_chunks":        map[string]any{"type": "integer"},
				"start_offset":        map[string]any{"type": "integer"},
				"end_offset":          map[string]any{"type": "integer"},
				"full_content_length": map[string]any{"type": "integer"},
				"title":               map[string]any{"type": "text"},
				"content":             map[string]any{"type": "text"},
				"summary":             map[string]any{"type": "text"},
				"title_vector": map[string]any{
					"type": "dense_vector", "dims": c.dimension, "index": true, "similarity": "cosine",
				},
				"content_vector": map[string]any{
					"type": "dense_vector", "dims": c.dimension, "index": true, "similarity": "cosine",
				},
			},
		},
	}
	return c.do(ctx, http.MethodPut, "/"+c.index, mapping, nil)
}
