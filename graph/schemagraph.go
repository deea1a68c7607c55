package graph

import (
	"context"
	"fmt"

	"github.com/praxisworks/tabula/schema"
)

// TableAnalysis pairs one table with its stored schema analysis.
type TableAnalysis struct {
	Table    schema.SQLTable
	Analysis schema.SchemaAnalysis
}

// BuildSchemaGraph constructs the schema graph of one SQL database from its
// per-table analyses:
//
//  1. Per table: the Entity node, then Attribute, UniqueIdentifier, and
//     Metric nodes for each analysed column.
//  2. HAS_ATTRIBUTE / HAS_IDENTIFIER / HAS_METRIC edges from the Entity to
//     each child node.
//  3. Per foreign key: Entity→Entity REFERENCES and Attribute→Attribute
//     REFERENCED_BY edges with identifying properties, created only when
//     both endpoints exist.
//
// Only structural edges are created. The returned node list is what the
// caller pushes into the vector index's schema-node partition.
func (s *Store) BuildSchemaGraph(ctx context.Context, sqlID string, analyses []TableAnalysis) ([]schema.SchemaGraphNode, error) {
	entityByTableName := make(map[string]string)  // table name -> entity node id
	entityByTableID := make(map[string]string)    // table id -> entity node id
	columnNode := make(map[string]bool)           // node id -> exists
	var nodes []schema.SchemaGraphNode

	addNode := func(n schema.SchemaGraphNode) error {
		props := map[string]any{
			"sql_id":           n.SQLID,
			"name":             n.Name,
			"node_type":        string(n.Type),
			"node_description": n.Description,
			"table_id":         n.TableID,
			"table_name":       n.TableName,
		}
		if n.ColumnName != "" {
			props["col_name"] = n.ColumnName
		}
		if err := s.CreateNode(ctx, Node{ID: n.NodeID, Label: labelFor(n.Type), Props: props}); err != nil {
			return err
		}
		nodes = append(nodes, n)
		return nil
	}

	// Pass one: nodes and HAS_* edges.
	for _, ta := range analyses {
		entityName := ta.Analysis.Entity.Name
		if entityName == "" {
			entityName = ta.Table.Name
		}
		entityID := schema.EntityNodeID(ta.Table.ID, entityName)
		entityByTableName[ta.Table.Name] = entityID
		entityByTableID[ta.Table.ID] = entityID

		if err := addNode(schema.SchemaGraphNode{
			SQLID:       sqlID,
			NodeID:      entityID,
			Type:        schema.NodeEntity,
			Name:        entityName,
			Description: ta.Analysis.Entity.Description,
			TableName:   ta.Table.Name,
			TableID:     ta.Table.ID,
		}); err != nil {
			return nil, err
		}

		children := []struct {
			cols     []schema.AnalysisColumn
			nodeType schema.NodeType
			relType  schema.RelationType
		}{
			{ta.Analysis.Attributes, schema.NodeAttribute, schema.RelHasAttribute},
			{ta.Analysis.Identifiers, schema.NodeUniqueIdentifier, schema.RelHasIdentifier},
			{ta.Analysis.Metrics, schema.NodeMetric, schema.RelHasMetric},
		}
		for _, group := range children {
			for _, col := range group.cols {
				childID := schema.ColumnNodeID(ta.Table.ID, col.ColumnName)
				if err := addNode(schema.SchemaGraphNode{
					SQLID:       sqlID,
					NodeID:      childID,
					Type:        group.nodeType,
					Name:        col.Name,
					Description: col.Description,
					ColumnName:  col.ColumnName,
					TableName:   ta.Table.Name,
					TableID:     ta.Table.ID,
				}); err != nil {
					return nil, err
				}
				columnNode[childID] = true

				if err := s.CreateRelation(ctx, Relation{
					Type: string(group.relType),
					From: entityID,
					To:   childID,
					Props: map[string]any{
						"sql_id": sqlID,
					},
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	// Pass two: foreign keys, once every endpoint is in place.
	for _, ta := range analyses {
		for _, fk := range ta.Analysis.ForeignKeys {
			targetEntity, ok := entityByTableName[fk.ToTable]
			if !ok {
				s.logger.Warn(ctx, "foreign key target table not analysed",
					"from_table", ta.Table.Name, "to_table", fk.ToTable)
				continue
			}
			sourceEntity := entityByTableID[ta.Table.ID]

			if err := s.CreateRelation(ctx, Relation{
				Type: string(schema.RelReferences),
				From: sourceEntity,
				To:   targetEntity,
				Props: map[string]any{
					"sql_id":     sqlID,
					"from_table": ta.Table.ID,
					"from_col":   fk.FromColumn,
					"to_table":   fk.ToTable,
					"to_col":     fk.ToColumn,
				},
			}); err != nil {
				return nil, err
			}

			// Attribute→Attribute edge only when both endpoint attribute
			// nodes exist.
			fromAttr := schema.ColumnNodeID(ta.Table.ID, fk.FromColumn)
			toAttr := targetAttributeID(analyses, fk.ToTable, fk.ToColumn)
			if columnNode[fromAttr] && toAttr != "" && columnNode[toAttr] {
				if err := s.CreateRelation(ctx, Relation{
					Type: string(schema.RelReferencedBy),
					From: fromAttr,
					To:   toAttr,
					Props: map[string]any{
						"sql_id":     sqlID,
						"from_table": ta.Table.ID,
						"from_col":   fk.FromColumn,
						"to_table":   fk.ToTable,
						"to_col":     fk.ToColumn,
					},
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	return nodes, nil
}

// targetAttributeID resolves the node id of the referenced column in the
// target table, or "" when the target table is not among the analyses.
func targetAttributeID(analyses []TableAnalysis, tableName, colName string) string {
	for _, ta := range analyses {
		if ta.Table.Name == tableName {
			return schema.ColumnNodeID(ta.Table.ID, colName)
		}
	}
	return ""
}

func labelFor(t schema.NodeType) string {
	switch t {
	case schema.NodeEntity:
		return "Entity"
	case schema.NodeAttribute:
		return "Attribute"
	case schema.NodeUniqueIdentifier:
		return "UniqueIdentifier"
	case schema.NodeMetric:
		return "Metric"
	}
	return "Entity"
}

// String renders a node reference for logs.
func (n Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Label, n.ID)
}
