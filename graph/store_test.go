package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/schema"
)

// fakeRunner records every executed statement and serves canned reads.
type fakeRunner struct {
	writes []struct {
		cypher string
		params map[string]any
	}
	reads       []record
	readErr     error
	readCyphers []string
}

func (f *fakeRunner) executeWrite(ctx context.Context, cypher string, params map[string]any) error {
	f.writes = append(f.writes, struct {
		cypher string
		params map[string]any
	}{cypher, params})
	return nil
}

func (f *fakeRunner) executeRead(ctx context.Context, cypher string, params map[string]any) ([]record, error) {
	f.readCyphers = append(f.readCyphers, cypher)
	return f.reads, f.readErr
}

func (f *fakeRunner) close(ctx context.Context) error { return nil }

func TestCreateNode_MergesByNodeID(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)

	err := store.CreateNode(context.Background(), Node{
		ID: "t1_amount", Label: "Metric",
		Props: map[string]any{"name": "amount", "sql_id": "d1"},
	})
	require.NoError(t, err)

	require.Len(t, runner.writes, 1)
	assert.Contains(t, runner.writes[0].cypher, "MERGE (n:Metric {node_id: $id})")
	assert.Equal(t, "t1_amount", runner.writes[0].params["id"])
}

func TestCreateNode_IdempotentShape(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)

	node := Node{ID: "n1", Label: "Entity", Props: map[string]any{"name": "orders"}}
	require.NoError(t, store.CreateNode(context.Background(), node))
	require.NoError(t, store.CreateNode(context.Background(), node))

	// Both statements are MERGEs on the same key, so the second run cannot
	// create a duplicate.
	for _, w := range runner.writes {
		assert.Contains(t, w.cypher, "MERGE")
	}
}

func TestDeleteBySourceContains(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)

	require.NoError(t, store.DeleteBySourceContains(context.Background(), "f1_chunk_2"))
	require.Len(t, runner.writes, 1)
	assert.Contains(t, runner.writes[0].cypher, "n.source_id CONTAINS $chunkId")
	assert.Contains(t, runner.writes[0].cypher, "DETACH DELETE")
	assert.Equal(t, "f1_chunk_2", runner.writes[0].params["chunkId"])
}

func TestDeleteBySQLID(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)

	require.NoError(t, store.DeleteBySQLID(context.Background(), "d1"))
	require.Len(t, runner.writes, 1)
	assert.Contains(t, runner.writes[0].cypher, "{sql_id: $sqlId}")
	assert.Equal(t, "d1", runner.writes[0].params["sqlId"])
}

func TestQuery_CollectsNodesAndRelations(t *testing.T) {
	runner := &fakeRunner{
		reads: []record{
			{values: []any{
				nodeWrapper{elementID: "e1", labels: []string{"Entity"}, props: map[string]any{"node_id": "t1_orders", "name": "orders"}},
				relWrapper{elementID: "r1", relType: "HAS_METRIC", startElementID: "e1", endElementID: "e2"},
				nodeWrapper{elementID: "e2", labels: []string{"Metric"}, props: map[string]any{"node_id": "t1_amount", "name": "amount"}},
			}},
			// The same node again must not duplicate.
			{values: []any{
				nodeWrapper{elementID: "e1", labels: []string{"Entity"}, props: map[string]any{"node_id": "t1_orders", "name": "orders"}},
			}},
		},
	}
	store := newWithRunner(runner)

	result, err := store.Query(context.Background(), "MATCH (n) RETURN n", nil)
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 2)
	assert.Len(t, result.Relations, 1)
	assert.Equal(t, "HAS_METRIC", result.Relations[0].Type)
}

func TestNeighborhood_VisibilityFilter(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)
	// Capture cypher via a read-recording runner.
	_, err := store.Neighborhood(context.Background(), "scheduler", true)
	require.NoError(t, err)
	require.Len(t, runner.readCyphers, 1)
	assert.Contains(t, runner.readCyphers[0], "coalesce(m.permission_level, 'public') = 'public'")
}

func TestDisabledStore_NoOps(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)
	store.enabled = false

	require.NoError(t, store.CreateNode(context.Background(), Node{ID: "x"}))
	result, err := store.Query(context.Background(), "MATCH (n) RETURN n", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
	assert.Empty(t, runner.writes)
}

func TestBuildSchemaGraph(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)

	analyses := []TableAnalysis{
		{
			Table: schema.SQLTable{ID: "t1", SQLID: "d1", Name: "orders"},
			Analysis: schema.SchemaAnalysis{
				SQLID: "d1", TableID: "t1",
				Entity: schema.AnalysisEntity{Name: "orders", Description: "customer orders"},
				Identifiers: []schema.AnalysisColumn{
					{Name: "order id", ColumnName: "id"},
				},
				Attributes: []schema.AnalysisColumn{
					{Name: "customer", ColumnName: "customer_id", Description: "buyer reference"},
				},
				Metrics: []schema.AnalysisColumn{
					{Name: "amount", ColumnName: "amount", Description: "order total"},
				},
				ForeignKeys: []schema.AnalysisForeignKey{
					{FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
				},
			},
		},
		{
			Table: schema.SQLTable{ID: "t2", SQLID: "d1", Name: "customers"},
			Analysis: schema.SchemaAnalysis{
				SQLID: "d1", TableID: "t2",
				Entity: schema.AnalysisEntity{Name: "customers"},
				Attributes: []schema.AnalysisColumn{
					{Name: "customer id", ColumnName: "id"},
				},
			},
		},
	}

	nodes, err := store.BuildSchemaGraph(context.Background(), "d1", analyses)
	require.NoError(t, err)

	// 2 entities + 1 identifier + 2 attributes + 1 metric.
	assert.Len(t, nodes, 6)

	ids := make(map[string]schema.NodeType)
	for _, n := range nodes {
		ids[n.NodeID] = n.Type
	}
	assert.Equal(t, schema.NodeEntity, ids["t1_orders"])
	assert.Equal(t, schema.NodeMetric, ids["t1_amount"])
	assert.Equal(t, schema.NodeUniqueIdentifier, ids["t1_id"])
	assert.Equal(t, schema.NodeAttribute, ids["t2_id"])

	var relTypes []string
	var similarity int
	for _, w := range runner.writes {
		for _, rel := range []string{"HAS_ATTRIBUTE", "HAS_IDENTIFIER", "HAS_METRIC", "REFERENCES", "REFERENCED_BY"} {
			if strings.Contains(w.cypher, ":"+rel) {
				relTypes = append(relTypes, rel)
			}
		}
		if strings.Contains(w.cypher, "SIMILAR") {
			similarity++
		}
	}
	assert.Contains(t, relTypes, "HAS_ATTRIBUTE")
	assert.Contains(t, relTypes, "HAS_IDENTIFIER")
	assert.Contains(t, relTypes, "HAS_METRIC")
	assert.Contains(t, relTypes, "REFERENCES")
	assert.Contains(t, relTypes, "REFERENCED_BY")
	assert.Zero(t, similarity, "no similarity edges, only structural ones")
}

func TestBuildSchemaGraph_SkipsMissingForeignKeyTarget(t *testing.T) {
	runner := &fakeRunner{}
	store := newWithRunner(runner)

	analyses := []TableAnalysis{
		{
			Table: schema.SQLTable{ID: "t1", SQLID: "d1", Name: "orders"},
			Analysis: schema.SchemaAnalysis{
				Entity: schema.AnalysisEntity{Name: "orders"},
				ForeignKeys: []schema.AnalysisForeignKey{
					{FromColumn: "warehouse_id", ToTable: "warehouses", ToColumn: "id"},
				},
			},
		},
	}

	_, err := store.BuildSchemaGraph(context.Background(), "d1", analyses)
	require.NoError(t, err)

	for _, w := range runner.writes {
		assert.NotContains(t, w.cypher, "REFERENCES", "dangling foreign key creates no edge")
	}
}
