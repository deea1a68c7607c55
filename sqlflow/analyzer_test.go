package sqlflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/graph"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/vector"
)

type analyzerCatalog struct {
	*mockCatalog
	analyses []schema.SchemaAnalysis
}

func (a *analyzerCatalog) ListSQLRelations(ctx context.Context, sqlID string) ([]schema.SQLRelation, error) {
	return []schema.SQLRelation{
		{ID: "r1", SQLID: "d1", FromTable: "orders", FromColumn: "customer", ToTable: "customers", ToColumn: "id"},
	}, nil
}

func (a *analyzerCatalog) UpsertSchemaAnalysis(ctx context.Context, analysis schema.SchemaAnalysis) error {
	a.analyses = append(a.analyses, analysis)
	return nil
}

type recordingIndexer struct {
	rows []vector.SchemaNodeRow
}

func (r *recordingIndexer) Enabled() bool { return true }

func (r *recordingIndexer) UpsertSchemaNodes(ctx context.Context, sqlID string, rows []vector.SchemaNodeRow) error {
	r.rows = append(r.rows, rows...)
	return nil
}

type disabledGraph struct{}

func (disabledGraph) Enabled() bool { return false }

func (disabledGraph) BuildSchemaGraph(ctx context.Context, sqlID string, analyses []graph.TableAnalysis) ([]schema.SchemaGraphNode, error) {
	return nil, nil
}

func TestHeuristicAnalysis(t *testing.T) {
	table := schema.SQLTable{ID: "t1", SQLID: "d1", Name: "orders", Description: "customer orders"}
	cols := []schema.SQLColumn{
		{Name: "id", Type: "int"},
		{Name: "amount", Type: "decimal", Info: schema.ColumnInfo{Comment: "order amount", AnaType: schema.AnaNumeric}},
		{Name: "customer", Type: "varchar", Info: schema.ColumnInfo{AnaType: schema.AnaAttribute}},
		{Name: "created_at", Type: "datetime", Info: schema.ColumnInfo{AnaType: schema.AnaDatetime}},
	}
	rels := []schema.SQLRelation{
		{FromTable: "orders", FromColumn: "customer", ToTable: "customers", ToColumn: "id"},
		{FromTable: "shipments", FromColumn: "order_id", ToTable: "orders", ToColumn: "id"},
	}

	analysis := heuristicAnalysis(table, cols, rels)

	assert.Equal(t, "orders", analysis.Entity.Name)
	require.Len(t, analysis.Identifiers, 1)
	assert.Equal(t, "id", analysis.Identifiers[0].ColumnName)
	require.Len(t, analysis.Metrics, 1)
	assert.Equal(t, "amount", analysis.Metrics[0].ColumnName)
	assert.Len(t, analysis.Attributes, 2)
	require.Len(t, analysis.ForeignKeys, 1, "only this table's outgoing relations")
	assert.Equal(t, "customers", analysis.ForeignKeys[0].ToTable)
}

func TestAnalyzeDatabase_StoresAndIndexes(t *testing.T) {
	cat := &analyzerCatalog{mockCatalog: newMockCatalog()}
	indexer := &recordingIndexer{}

	analyzer := NewAnalyzer(cat, disabledGraph{}, indexer, fixedEmbedder{}, nil, nil)
	require.NoError(t, analyzer.AnalyzeDatabase(context.Background(), "d1"))

	// One analysis per table, persisted.
	require.Len(t, cat.analyses, 1)
	assert.Equal(t, "t1", cat.analyses[0].TableID)

	// Every derived node reached the vector index with both embeddings.
	require.NotEmpty(t, indexer.rows)
	ids := map[string]bool{}
	for _, row := range indexer.rows {
		ids[row.NodeID] = true
		assert.NotEmpty(t, row.NameVector)
		assert.NotEmpty(t, row.DescVector)
		assert.Equal(t, "d1", row.SQLID)
	}
	assert.True(t, ids["t1_orders"], "entity node indexed")
	assert.True(t, ids["t1_amount"], "metric node indexed")
}
