package vector

import (
	"context"
	"fmt"

	"github.com/praxisworks/tabula/schema"
)

// DocumentRow is one vector chunk as stored in a knowledge base's collection.
// The partition it lives in is the file id; the collection is the KB id. The
// file id is also stored as a field so search hits can report their partition
// without a second lookup.
type DocumentRow struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	Vector     []float32 `json:"vector"`
}

// DocumentHit is one search result from a document collection. FileID equals
// the partition the hit came from.
type DocumentHit struct {
	ID      string  `json:"id"`
	FileID  string  `json:"file_id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"distance"`
}

// EnsureDocumentCollection creates the per-KB collection if missing. The
// index is HNSW over inner product, which on normalised embeddings matches
// cosine ranking.
func (c *Client) EnsureDocumentCollection(ctx context.Context, kbID string, dim int) error {
	if !c.enabled {
		return nil
	}
	var out struct {
		Has bool `json:"has"`
	}
	if err := c.post(ctx, "/v2/vectordb/collections/has", map[string]any{
		"collectionName": kbID,
	}, &out); err != nil {
		return err
	}
	if out.Has {
		return nil
	}

	createReq := map[string]any{
		"collectionName": kbID,
		"schema": map[string]any{
			"fields": []map[string]any{
				{"fieldName": "id", "dataType": "VarChar", "isPrimary": true,
					"elementTypeParams": map[string]any{"max_length": 256}},
				{"fieldName": "file_id", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 256}},
				{"fieldName": "title", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 1024}},
				{"fieldName": "content", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 4096}},
				{"fieldName": "visibility", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 16}},
				{"fieldName": "vector", "dataType": "FloatVector",
					"elementTypeParams": map[string]any{"dim": fmt.Sprint(dim)}},
			},
		},
		"indexParams": []map[string]any{
			{"fieldName": "vector", "indexName": "vector_idx", "metricType": "IP",
				"params": map[string]any{"index_type": "HNSW", "M": 16, "efConstruction": 200}},
		},
	}
	if err := c.post(ctx, "/v2/vectordb/collections/create", createReq, nil); err != nil {
		return err
	}
	return c.post(ctx, "/v2/vectordb/collections/load", map[string]any{
		"collectionName": kbID,
	}, nil)
}

// InsertDocuments upserts vector chunks into a file's partition in batches.
// Rows are keyed by id, so re-ingesting the same chunk ids does not create
// duplicates.
func (c *Client) InsertDocuments(ctx context.Context, kbID, fileID string, rows []DocumentRow) error {
	if !c.enabled || len(rows) == 0 {
		return nil
	}
	if err := c.EnsurePartition(ctx, kbID, fileID); err != nil {
		return err
	}
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := c.post(ctx, "/v2/vectordb/entities/upsert", map[string]any{
			"collectionName": kbID,
			"partitionName":  fileID,
			"data":           rows[start:end],
		}, nil); err != nil {
			return err
		}
	}
	// Flush once at the end rather than per batch.
	return c.post(ctx, "/v2/vectordb/collections/flush", map[string]any{
		"collectionName": kbID,
	}, nil)
}

// SearchDocuments runs a dense search over a knowledge base's collection.
// When publicOnly is set (caller does not own the KB), hits are restricted to
// public visibility. The partition of each hit is the file id it came from.
func (c *Client) SearchDocuments(ctx context.Context, kbID string, queryVector []float32, topK int, publicOnly bool) ([]DocumentHit, error) {
	if !c.enabled {
		return nil, nil
	}
	req := map[string]any{
		"collectionName": kbID,
		"data":           [][]float32{queryVector},
		"annsField":      "vector",
		"limit":          topK,
		"outputFields":   []string{"id", "file_id", "title", "content", "visibility"},
	}
	if publicOnly {
		req["filter"] = fmt.Sprintf("visibility == %q", string(schema.VisibilityPublic))
	}

	var hits []DocumentHit
	if err := c.post(ctx, "/v2/vectordb/entities/search", req, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// DeleteFilePartition drops a file's partition from its KB collection.
func (c *Client) DeleteFilePartition(ctx context.Context, kbID, fileID string) error {
	return c.DropPartition(ctx, kbID, fileID)
}
