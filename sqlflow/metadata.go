package sqlflow

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/praxisworks/tabula/schema"
)

// MetadataQueryKind classifies a metadata shortcut query.
type MetadataQueryKind string

const (
	MetadataNone          MetadataQueryKind = ""
	MetadataListTables    MetadataQueryKind = "list_tables"
	MetadataDescribeTable MetadataQueryKind = "describe_table"
	MetadataListColumns   MetadataQueryKind = "list_columns"
)

// MetadataResult is the shortcut's answer, or its failure detail when the
// referenced table or column does not exist.
type MetadataResult struct {
	Kind             MetadataQueryKind `json:"query_type"`
	Success          bool              `json:"success"`
	Message          string            `json:"message,omitempty"`
	Tables           []schema.SQLTable `json:"tables,omitempty"`
	Columns          []ColumnDetail    `json:"columns,omitempty"`
	TableName        string            `json:"table_name,omitempty"`
	Error            string            `json:"error,omitempty"`
	AvailableTables  []string          `json:"available_tables,omitempty"`
	AvailableColumns []string          `json:"available_columns,omitempty"`
}

var (
	listTablesPattern = regexp.MustCompile(`(?i)\b(list|show|what|which)\b.*\btables?\b|\btables?\b.*\b(exist|available|are there)\b|有(哪些|什么)表|列出.*表`)
	describePattern   = regexp.MustCompile(`(?i)\b(describe|structure of|schema of|definition of)\b|的(结构|定义)`)
	listColumnsPattern = regexp.MustCompile(`(?i)\b(columns?|fields?)\b.*\b(of|in|for)\b|\b(list|show|what)\b.*\b(columns?|fields?)\b|有(哪些|什么)(列|字段)`)
)

// ClassifyMetadataQuery decides whether a question is a plain metadata
// lookup that should bypass the generation pipeline entirely.
func ClassifyMetadataQuery(query string) MetadataQueryKind {
	switch {
	case listColumnsPattern.MatchString(query):
		return MetadataListColumns
	case describePattern.MatchString(query):
		return MetadataDescribeTable
	case listTablesPattern.MatchString(query):
		return MetadataListTables
	}
	return MetadataNone
}

// runMetadataQuery answers a classified metadata query directly from the
// catalog. A reference to an unknown table or column fails with the
// available names attached; the pipeline surfaces the failure and stops
// rather than falling through to generation.
func (p *Pipeline) runMetadataQuery(ctx context.Context, sqlID, query string, kind MetadataQueryKind) (MetadataResult, error) {
	tables, err := p.catalog.ListSQLTables(ctx, sqlID)
	if err != nil {
		return MetadataResult{}, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}

	switch kind {
	case MetadataListTables:
		return MetadataResult{
			Kind:    kind,
			Success: true,
			Message: "found " + strconv.Itoa(len(tables)) + " tables",
			Tables:  tables,
		}, nil

	case MetadataDescribeTable, MetadataListColumns:
		table, ok := matchTable(tables, query)
		if !ok {
			return MetadataResult{
				Kind:            kind,
				Success:         false,
				Error:           "table not found in query",
				AvailableTables: names,
			}, nil
		}
		cols, err := p.catalog.ListSQLColumns(ctx, table.ID)
		if err != nil {
			return MetadataResult{}, err
		}
		details := make([]ColumnDetail, len(cols))
		colNames := make([]string, len(cols))
		for i, c := range cols {
			details[i] = ColumnDetail{Name: c.Name, Type: c.Type, Comment: c.Info.Comment, AnaType: c.Info.AnaType}
			colNames[i] = c.Name
		}
		return MetadataResult{
			Kind:             kind,
			Success:          true,
			Message:          "table " + table.Name + " has " + strconv.Itoa(len(cols)) + " columns",
			TableName:        table.Name,
			Columns:          details,
			AvailableColumns: colNames,
		}, nil
	}
	return MetadataResult{Kind: kind, Success: false, Error: "unsupported metadata query"}, nil
}

// matchTable finds the first registered table whose name appears in the
// query text.
func matchTable(tables []schema.SQLTable, query string) (schema.SQLTable, bool) {
	lower := strings.ToLower(query)
	for _, t := range tables {
		if t.Name != "" && strings.Contains(lower, strings.ToLower(t.Name)) {
			return t, true
		}
	}
	return schema.SQLTable{}, false
}
