// Package vector is the dense-vector index client, speaking the Milvus HTTP
// v2 API. Document vectors live in one collection per knowledge base with one
// partition per file; schema-graph nodes live in a single shared collection
// partitioned by SQL-database id with dual embeddings.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/praxisworks/tabula/o11y"
)

// insertBatchSize bounds how many rows a single insert call carries. Flushing
// is deferred until the end of a batched ingestion.
const insertBatchSize = 50

// Client talks to a Milvus deployment over its v2 REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *o11y.Logger
	enabled    bool
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithDisabled marks the backend as disabled. Every operation on a disabled
// client is a no-op returning empty results, so pipelines continue with
// reduced evidence.
func WithDisabled() Option {
	return func(cl *Client) { cl.enabled = false }
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cl := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     o11y.NewLogger(),
		enabled:    true,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Enabled reports whether the backend is active.
func (c *Client) Enabled() bool { return c.enabled }

// HealthCheck probes the deployment.
func (c *Client) HealthCheck(ctx context.Context) o11y.HealthResult {
	if !c.enabled {
		return o11y.HealthResult{Status: o11y.Degraded, Message: "disabled by configuration"}
	}
	var out struct {
		Code int `json:"code"`
	}
	if err := c.post(ctx, "/v2/vectordb/collections/list", map[string]any{}, &out); err != nil {
		return o11y.HealthResult{Status: o11y.Unhealthy, Message: err.Error()}
	}
	return o11y.HealthResult{Status: o11y.Healthy}
}

// apiResponse is the envelope every v2 endpoint returns.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// post sends one JSON request and decodes the data payload into out (which
// may be nil). Transient transport failures are retried with exponential
// backoff.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("vector: encoding request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var envelope apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if envelope.Code != 0 {
			return backoff.Permanent(fmt.Errorf("milvus error %d: %s", envelope.Code, envelope.Message))
		}
		if out != nil && len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding data: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("vector: %s: %w", path, err)
	}
	return nil
}

// HasPartition reports whether a partition exists in a collection.
func (c *Client) HasPartition(ctx context.Context, collection, partition string) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	var out struct {
		Has bool `json:"has"`
	}
	err := c.post(ctx, "/v2/vectordb/partitions/has", map[string]any{
		"collectionName": collection,
		"partitionName":  partition,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Has, nil
}

// EnsurePartition creates a partition if it does not already exist.
func (c *Client) EnsurePartition(ctx context.Context, collection, partition string) error {
	if !c.enabled {
		return nil
	}
	has, err := c.HasPartition(ctx, collection, partition)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return c.post(ctx, "/v2/vectordb/partitions/create", map[string]any{
		"collectionName": collection,
		"partitionName":  partition,
	}, nil)
}

// DropPartition removes a partition and everything in it.
func (c *Client) DropPartition(ctx context.Context, collection, partition string) error {
	if !c.enabled {
		return nil
	}
	if err := c.post(ctx, "/v2/vectordb/partitions/release", map[string]any{
		"collectionName": collection,
		"partitionNames": []string{partition},
	}, nil); err != nil {
		return err
	}
	return c.post(ctx, "/v2/vectordb/partitions/drop", map[string]any{
		"collectionName": collection,
		"partitionName":  partition,
	}, nil)
}

// DropCollection removes an entire collection.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	if !c.enabled {
		return nil
	}
	return c.post(ctx, "/v2/vectordb/collections/drop", map[string]any{
		"collectionName": collection,
	}, nil)
}

// CountPartitionEntities counts the entities currently queryable in a
// partition.
func (c *Client) CountPartitionEntities(ctx context.Context, collection, partition string) (int, error) {
	if !c.enabled {
		return 0, nil
	}
	var out []struct {
		Count int `json:"count(*)"`
	}
	err := c.post(ctx, "/v2/vectordb/entities/query", map[string]any{
		"collectionName": collection,
		"partitionNames": []string{partition},
		"outputFields":   []string{"count(*)"},
		"filter":         "",
	}, &out)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Count, nil
}
