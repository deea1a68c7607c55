package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/praxisworks/tabula/schema"
)

// SchemaNodeCollection is the shared collection holding every schema-graph
// node, partitioned by SQL-database id.
const SchemaNodeCollection = "sql_graph_nodes_default"

// Weighted-ranker weights for the dual-vector hybrid search: the description
// embedding dominates the name embedding.
const (
	nameWeight        = 0.4
	descriptionWeight = 0.6
)

// SchemaNodeRow is one schema-graph node as stored in the shared collection.
type SchemaNodeRow struct {
	SQLID           string    `json:"sql_id"`
	NodeID          string    `json:"node_id"`
	NodeType        string    `json:"node_type"`
	NodeName        string    `json:"node_name"`
	NodeDescription string    `json:"node_description"`
	ColName         string    `json:"col_name"`
	TableName       string    `json:"table_name"`
	TableID         string    `json:"table_id"`
	Content         string    `json:"content"`
	NameVector      []float32 `json:"node_name_embedding"`
	DescVector      []float32 `json:"node_description_embedding"`
}

// RowFromSchemaNode converts a schema-graph node plus its two embeddings into
// a storable row.
func RowFromSchemaNode(n schema.SchemaGraphNode, nameVec, descVec []float32) SchemaNodeRow {
	return SchemaNodeRow{
		SQLID:           n.SQLID,
		NodeID:          n.NodeID,
		NodeType:        string(n.Type),
		NodeName:        n.Name,
		NodeDescription: n.Description,
		ColName:         n.ColumnName,
		TableName:       n.TableName,
		TableID:         n.TableID,
		Content:         n.Name + " " + n.Description,
		NameVector:      nameVec,
		DescVector:      descVec,
	}
}

// SchemaNodeHit is one fused search result over the schema-node collection.
type SchemaNodeHit struct {
	NodeID          string  `json:"node_id"`
	NodeType        string  `json:"node_type"`
	NodeName        string  `json:"node_name"`
	NodeDescription string  `json:"node_description"`
	ColName         string  `json:"col_name"`
	TableName       string  `json:"table_name"`
	TableID         string  `json:"table_id"`
	Score           float64 `json:"distance"`
}

// SchemaNodeQuery is the input of a dual-vector hybrid search.
type SchemaNodeQuery struct {
	SQLID      string
	NameVector []float32
	DescVector []float32
	NodeType   schema.NodeType
	Limit      int
}

// EnsureSchemaNodeCollection creates the shared schema-node collection if it
// is missing.
func (c *Client) EnsureSchemaNodeCollection(ctx context.Context, dim int) error {
	if !c.enabled {
		return nil
	}
	var out struct {
		Has bool `json:"has"`
	}
	if err := c.post(ctx, "/v2/vectordb/collections/has", map[string]any{
		"collectionName": SchemaNodeCollection,
	}, &out); err != nil {
		return err
	}
	if out.Has {
		return nil
	}

	createReq := map[string]any{
		"collectionName": SchemaNodeCollection,
		"schema": map[string]any{
			"fields": []map[string]any{
				{"fieldName": "node_id", "dataType": "VarChar", "isPrimary": true,
					"elementTypeParams": map[string]any{"max_length": 512}},
				{"fieldName": "sql_id", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 256}},
				{"fieldName": "node_type", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 32}},
				{"fieldName": "node_name", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 512}},
				{"fieldName": "node_description", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 4096}},
				{"fieldName": "col_name", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 256}},
				{"fieldName": "table_name", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 256}},
				{"fieldName": "table_id", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 256}},
				{"fieldName": "content", "dataType": "VarChar",
					"elementTypeParams": map[string]any{"max_length": 8192}},
				{"fieldName": "node_name_embedding", "dataType": "FloatVector",
					"elementTypeParams": map[string]any{"dim": fmt.Sprint(dim)}},
				{"fieldName": "node_description_embedding", "dataType": "FloatVector",
					"elementTypeParams": map[string]any{"dim": fmt.Sprint(dim)}},
			},
		},
		"indexParams": []map[string]any{
			{"fieldName": "node_name_embedding", "indexName": "name_idx", "metricType": "IP",
				"params": map[string]any{"index_type": "HNSW", "M": 16, "efConstruction": 200}},
			{"fieldName": "node_description_embedding", "indexName": "desc_idx", "metricType": "IP",
				"params": map[string]any{"index_type": "HNSW", "M": 16, "efConstruction": 200}},
		},
	}
	if err := c.post(ctx, "/v2/vectordb/collections/create", createReq, nil); err != nil {
		return err
	}
	return c.post(ctx, "/v2/vectordb/collections/load", map[string]any{
		"collectionName": SchemaNodeCollection,
	}, nil)
}

// UpsertSchemaNodes writes schema-graph nodes into the SQL database's
// partition in batches of at most 50 rows, flushing once at the end. Rows are
// keyed by node_id, so reinserting the same batch is idempotent.
func (c *Client) UpsertSchemaNodes(ctx context.Context, sqlID string, rows []SchemaNodeRow) error {
	if !c.enabled || len(rows) == 0 {
		return nil
	}
	if err := c.EnsurePartition(ctx, SchemaNodeCollection, sqlID); err != nil {
		return err
	}
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := c.post(ctx, "/v2/vectordb/entities/upsert", map[string]any{
			"collectionName": SchemaNodeCollection,
			"partitionName":  sqlID,
			"data":           rows[start:end],
		}, nil); err != nil {
			return err
		}
	}
	return c.post(ctx, "/v2/vectordb/collections/flush", map[string]any{
		"collectionName": SchemaNodeCollection,
	}, nil)
}

// SearchSchemaNodes runs the dual-vector hybrid search: one knn sub-request
// per stored embedding, fused by a weighted ranker (0.4 name, 0.6
// description). Results come back sorted by fused score and truncated to the
// query limit.
func (c *Client) SearchSchemaNodes(ctx context.Context, q SchemaNodeQuery) ([]SchemaNodeHit, error) {
	if !c.enabled {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	filter := ""
	if q.NodeType != "" {
		filter = fmt.Sprintf("node_type == %q", string(q.NodeType))
	}

	sub := func(field string, vec []float32) map[string]any {
		s := map[string]any{
			"data":      [][]float32{vec},
			"annsField": field,
			"limit":     limit,
		}
		if filter != "" {
			s["filter"] = filter
		}
		return s
	}

	req := map[string]any{
		"collectionName": SchemaNodeCollection,
		"search": []map[string]any{
			sub("node_name_embedding", q.NameVector),
			sub("node_description_embedding", q.DescVector),
		},
		"rerank": map[string]any{
			"strategy": "weighted",
			"params":   map[string]any{"weights": []float64{nameWeight, descriptionWeight}},
		},
		"limit": limit,
		"outputFields": []string{
			"node_id", "node_type", "node_name", "node_description",
			"col_name", "table_name", "table_id",
		},
	}
	if q.SQLID != "" {
		req["partitionNames"] = []string{q.SQLID}
	}

	var hits []SchemaNodeHit
	if err := c.post(ctx, "/v2/vectordb/entities/hybrid_search", req, &hits); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DropSchemaNodes removes a SQL database's entire schema-node partition.
func (c *Client) DropSchemaNodes(ctx context.Context, sqlID string) error {
	return c.DropPartition(ctx, SchemaNodeCollection, sqlID)
}
