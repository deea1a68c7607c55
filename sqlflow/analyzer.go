package sqlflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/praxisworks/tabula/graph"
	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/vector"
)

// AnalyzerCatalog is the catalog slice the schema analyzer needs.
type AnalyzerCatalog interface {
	ListSQLTables(ctx context.Context, sqlID string) ([]schema.SQLTable, error)
	ListSQLColumns(ctx context.Context, tableID string) ([]schema.SQLColumn, error)
	ListSQLRelations(ctx context.Context, sqlID string) ([]schema.SQLRelation, error)
	UpsertSchemaAnalysis(ctx context.Context, a schema.SchemaAnalysis) error
}

// NodeIndexer is the vector capability the analyzer pushes schema nodes to.
type NodeIndexer interface {
	Enabled() bool
	UpsertSchemaNodes(ctx context.Context, sqlID string, rows []vector.SchemaNodeRow) error
}

// GraphBuilder builds the structural schema graph.
type GraphBuilder interface {
	Enabled() bool
	BuildSchemaGraph(ctx context.Context, sqlID string, analyses []graph.TableAnalysis) ([]schema.SchemaGraphNode, error)
}

// Analyzer derives per-table schema analyses and materialises them into the
// catalog, the graph store, and the vector index's schema-node partition.
type Analyzer struct {
	catalog  AnalyzerCatalog
	graphs   GraphBuilder
	vectors  NodeIndexer
	embedder llm.Embedder
	chat     llm.ChatModel
	logger   *o11y.Logger
}

// NewAnalyzer creates the Analyzer. chat may be nil; analyses then come from
// the ana_type heuristics alone.
func NewAnalyzer(cat AnalyzerCatalog, graphs GraphBuilder, vectors NodeIndexer, embedder llm.Embedder, chat llm.ChatModel, logger *o11y.Logger) *Analyzer {
	if logger == nil {
		logger = o11y.NewLogger()
	}
	return &Analyzer{catalog: cat, graphs: graphs, vectors: vectors, embedder: embedder, chat: chat, logger: logger}
}

// heuristicAnalysis derives an analysis from column metadata alone: the
// table is the entity, numeric columns are metrics, datetime and attribute
// columns are attributes, and primary-key-looking columns are identifiers.
// Declared relations become foreign keys.
func heuristicAnalysis(t schema.SQLTable, cols []schema.SQLColumn, rels []schema.SQLRelation) schema.SchemaAnalysis {
	analysis := schema.SchemaAnalysis{
		SQLID:   t.SQLID,
		TableID: t.ID,
		Entity:  schema.AnalysisEntity{Name: t.Name, Description: t.Description},
	}
	for _, c := range cols {
		described := c.Info.Comment
		if described == "" {
			described = c.Name
		}
		col := schema.AnalysisColumn{Name: described, ColumnName: c.Name, Description: c.Info.Comment}
		switch {
		case c.Name == "id" || c.Name == t.Name+"_id":
			analysis.Identifiers = append(analysis.Identifiers, col)
		case c.Info.AnaType == schema.AnaNumeric:
			analysis.Metrics = append(analysis.Metrics, col)
		default:
			analysis.Attributes = append(analysis.Attributes, col)
		}
	}
	for _, r := range rels {
		if r.FromTable != t.Name {
			continue
		}
		analysis.ForeignKeys = append(analysis.ForeignKeys, schema.AnalysisForeignKey{
			FromColumn: r.FromColumn,
			ToTable:    r.ToTable,
			ToColumn:   r.ToColumn,
		})
	}
	return analysis
}

// analyzeTable produces one table's analysis, via the model when available,
// with the heuristic analysis as the documented fallback.
func (a *Analyzer) analyzeTable(ctx context.Context, t schema.SQLTable, cols []schema.SQLColumn, rels []schema.SQLRelation) schema.SchemaAnalysis {
	fallback := func() schema.SchemaAnalysis { return heuristicAnalysis(t, cols, rels) }
	if a.chat == nil {
		return fallback()
	}

	colsJSON, _ := json.Marshal(cols)
	prompt := fmt.Sprintf(`Analyse this table into semantic roles. Respond with a JSON object:
{"entity": {"name": "...", "description": "..."},
 "attributes": [{"name": "...", "col_name": "...", "description": "..."}],
 "unique_identifiers": [{"name": "...", "col_name": "..."}],
 "metrics": [{"name": "...", "col_name": "...", "description": "..."}],
 "foreign_keys": [{"from_col": "...", "to_table": "...", "to_col": "..."}]}

Table %s: %s
Columns:
%s`, t.Name, t.Description, colsJSON)

	analysis, err := llm.GenerateJSON(ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User("analyse the table"),
	}, fallback)
	if err != nil {
		return fallback()
	}
	analysis.SQLID = t.SQLID
	analysis.TableID = t.ID
	if analysis.Entity.Name == "" {
		analysis.Entity.Name = t.Name
	}
	return analysis
}

// AnalyzeDatabase analyses every table of a SQL database, stores the results
// in the catalog (replacing previous rows per table), rebuilds the schema
// graph, and upserts every node with its dual embeddings into the vector
// index. Re-running over the same schema is idempotent end to end.
func (a *Analyzer) AnalyzeDatabase(ctx context.Context, sqlID string) error {
	tables, err := a.catalog.ListSQLTables(ctx, sqlID)
	if err != nil {
		return err
	}
	rels, err := a.catalog.ListSQLRelations(ctx, sqlID)
	if err != nil {
		return err
	}

	analyses := make([]graph.TableAnalysis, 0, len(tables))
	for _, t := range tables {
		cols, err := a.catalog.ListSQLColumns(ctx, t.ID)
		if err != nil {
			return err
		}
		analysis := a.analyzeTable(ctx, t, cols, rels)
		if err := a.catalog.UpsertSchemaAnalysis(ctx, analysis); err != nil {
			return err
		}
		analyses = append(analyses, graph.TableAnalysis{Table: t, Analysis: analysis})
	}

	var nodes []schema.SchemaGraphNode
	if a.graphs != nil && a.graphs.Enabled() {
		nodes, err = a.graphs.BuildSchemaGraph(ctx, sqlID, analyses)
		if err != nil {
			return err
		}
	} else {
		// Without a graph backend the vector partition is still populated.
		for _, ta := range analyses {
			nodes = append(nodes, nodesFromAnalysis(sqlID, ta)...)
		}
	}

	if a.vectors == nil || !a.vectors.Enabled() || len(nodes) == 0 {
		return nil
	}

	names := make([]string, len(nodes))
	descriptions := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
		description := n.Description
		if description == "" {
			description = n.Name
		}
		descriptions[i] = description
	}
	nameVectors, err := a.embedder.EmbedDocuments(ctx, names)
	if err != nil {
		return fmt.Errorf("sqlflow: embedding node names: %w", err)
	}
	descVectors, err := a.embedder.EmbedDocuments(ctx, descriptions)
	if err != nil {
		return fmt.Errorf("sqlflow: embedding node descriptions: %w", err)
	}

	rows := make([]vector.SchemaNodeRow, len(nodes))
	for i, n := range nodes {
		rows[i] = vector.RowFromSchemaNode(n, nameVectors[i], descVectors[i])
	}
	return a.vectors.UpsertSchemaNodes(ctx, sqlID, rows)
}

// nodesFromAnalysis mirrors the graph builder's node derivation for the
// graph-disabled case.
func nodesFromAnalysis(sqlID string, ta graph.TableAnalysis) []schema.SchemaGraphNode {
	entityName := ta.Analysis.Entity.Name
	if entityName == "" {
		entityName = ta.Table.Name
	}
	nodes := []schema.SchemaGraphNode{{
		SQLID:       sqlID,
		NodeID:      schema.EntityNodeID(ta.Table.ID, entityName),
		Type:        schema.NodeEntity,
		Name:        entityName,
		Description: ta.Analysis.Entity.Description,
		TableName:   ta.Table.Name,
		TableID:     ta.Table.ID,
	}}
	groups := []struct {
		cols     []schema.AnalysisColumn
		nodeType schema.NodeType
	}{
		{ta.Analysis.Attributes, schema.NodeAttribute},
		{ta.Analysis.Identifiers, schema.NodeUniqueIdentifier},
		{ta.Analysis.Metrics, schema.NodeMetric},
	}
	for _, group := range groups {
		for _, col := range group.cols {
			nodes = append(nodes, schema.SchemaGraphNode{
				SQLID:       sqlID,
				NodeID:      schema.ColumnNodeID(ta.Table.ID, col.ColumnName),
				Type:        group.nodeType,
				Name:        col.Name,
				Description: col.Description,
				ColumnName:  col.ColumnName,
				TableName:   ta.Table.Name,
				TableID:     ta.Table.ID,
			})
		}
	}
	return nodes
}
