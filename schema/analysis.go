package schema

import "fmt"

// SchemaAnalysis is the per-table result of analysing a registered table into
// semantic roles. Stored once per (sql_id, table_id); re-analysis replaces the
// previous row.
type SchemaAnalysis struct {
	SQLID       string             `json:"sql_id"`
	TableID     string             `json:"table_id"`
	Entity      AnalysisEntity     `json:"entity"`
	Attributes  []AnalysisColumn   `json:"attributes,omitempty"`
	Identifiers []AnalysisColumn   `json:"unique_identifiers,omitempty"`
	Metrics     []AnalysisColumn   `json:"metrics,omitempty"`
	ForeignKeys []AnalysisForeignKey `json:"foreign_keys,omitempty"`
}

// AnalysisEntity is the single entity a table represents.
type AnalysisEntity struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AnalysisColumn is a column-bound role (attribute, unique identifier, or
// metric) within a schema analysis.
type AnalysisColumn struct {
	Name        string `json:"name"`
	ColumnName  string `json:"col_name"`
	Description string `json:"description,omitempty"`
}

// AnalysisForeignKey is an inferred or declared reference from one column of
// the analysed table to a column of another table.
type AnalysisForeignKey struct {
	FromColumn string `json:"from_col"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_col"`
}

// NodeType classifies a schema-graph node.
type NodeType string

const (
	NodeEntity           NodeType = "entity"
	NodeAttribute        NodeType = "attribute"
	NodeUniqueIdentifier NodeType = "unique_identifier"
	NodeMetric           NodeType = "metric"
)

// RelationType labels a structural edge of the schema graph. Only structural
// edges exist; no similarity edges are ever created.
type RelationType string

const (
	RelHasAttribute  RelationType = "HAS_ATTRIBUTE"
	RelHasIdentifier RelationType = "HAS_IDENTIFIER"
	RelHasMetric     RelationType = "HAS_METRIC"
	RelReferences    RelationType = "REFERENCES"
	RelReferencedBy  RelationType = "REFERENCED_BY"
)

// SchemaGraphNode is a vector-indexed node of the schema graph, stored in the
// shared collection partitioned by SQL-database id with dual embeddings (name
// and description). NodeID is unique within its partition; reinsertion of the
// same NodeID is idempotent.
type SchemaGraphNode struct {
	SQLID       string   `json:"sql_id"`
	NodeID      string   `json:"node_id"`
	Type        NodeType `json:"node_type"`
	Name        string   `json:"node_name"`
	Description string   `json:"node_description"`
	ColumnName  string   `json:"col_name,omitempty"`
	TableName   string   `json:"table_name"`
	TableID     string   `json:"table_id"`
}

// EntityNodeID returns the node id of a table's entity node.
func EntityNodeID(tableID, entityName string) string {
	return fmt.Sprintf("%s_%s", tableID, entityName)
}

// ColumnNodeID returns the node id of a column-bound node.
func ColumnNodeID(tableID, colName string) string {
	return fmt.Sprintf("%s_%s", tableID, colName)
}

// SchemaGraphRelation is one structural edge between two schema-graph nodes.
type SchemaGraphRelation struct {
	SQLID      string       `json:"sql_id"`
	Type       RelationType `json:"relation_type"`
	FromNodeID string       `json:"from_node_id"`
	ToNodeID   string       `json:"to_node_id"`
	Properties map[string]any `json:"properties,omitempty"`
}
