package sqlflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeResult_RenamesCaseInsensitively(t *testing.T) {
	execution := ExecutionResult{
		Executed: true,
		Columns:  []string{"AMOUNT", "created_at"},
		Data: []map[string]any{
			{"AMOUNT": 129.5, "created_at": "2023-01-04"},
		},
	}
	columns := []ColumnUsed{
		{TableName: "orders", ColName: "amount"},
		{TableName: "orders", ColName: "created_at"},
	}

	shaped := ShapeResult(execution, columns)

	assert.Equal(t, []string{"orders.amount", "orders.created_at"}, shaped.Columns)
	require.Len(t, shaped.Data, 1)
	assert.Equal(t, 129.5, shaped.Data[0]["orders.amount"])
	assert.Equal(t, "2023-01-04", shaped.Data[0]["orders.created_at"])
}

func TestShapeResult_UnknownColumnsPassThrough(t *testing.T) {
	execution := ExecutionResult{
		Executed: true,
		Columns:  []string{"total"},
		Data:     []map[string]any{{"total": 7}},
	}
	shaped := ShapeResult(execution, []ColumnUsed{{TableName: "orders", ColName: "amount"}})
	assert.Equal(t, []string{"total"}, shaped.Columns)
}

func TestShapeResult_NotExecuted(t *testing.T) {
	execution := ExecutionResult{Executed: false, Error: "boom"}
	shaped := ShapeResult(execution, []ColumnUsed{{TableName: "t", ColName: "c"}})
	assert.Equal(t, execution, shaped)
}

func TestColumnsUsedFromSQL(t *testing.T) {
	tables := []TableInfo{
		{
			TableName: "orders",
			Columns: []ColumnDetail{
				{Name: "amount", Comment: "order amount"},
				{Name: "customer", Comment: ""},
				{Name: "warehouse_id"},
			},
		},
	}
	used := columnsUsedFromSQL("SELECT SUM(AMOUNT) FROM orders GROUP BY customer", tables)

	names := make([]string, len(used))
	for i, c := range used {
		names[i] = c.ColName
	}
	assert.ElementsMatch(t, []string{"amount", "customer"}, names)
	for _, c := range used {
		if c.ColName == "customer" {
			assert.Equal(t, "customer", c.Description, "empty comment falls back to the column name")
		}
	}
}
