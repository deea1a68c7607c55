package sqlflow

import "strings"

// ShapeResult rewrites an execution result's column names to table.col form
// using the columns the generator reported, matching case-insensitively.
// Unknown columns pass through untouched.
func ShapeResult(execution ExecutionResult, columns []ColumnUsed) ExecutionResult {
	if !execution.Executed || len(columns) == 0 {
		return execution
	}

	mapping := make(map[string]string, len(columns))
	for _, c := range columns {
		if c.ColName == "" {
			continue
		}
		qualified := c.ColName
		if c.TableName != "" {
			qualified = c.TableName + "." + c.ColName
		}
		mapping[strings.ToLower(c.ColName)] = qualified
	}

	renamed := make([]string, len(execution.Columns))
	for i, col := range execution.Columns {
		if q, ok := mapping[strings.ToLower(col)]; ok {
			renamed[i] = q
		} else {
			renamed[i] = col
		}
	}

	data := make([]map[string]any, len(execution.Data))
	for i, row := range execution.Data {
		shaped := make(map[string]any, len(row))
		for j, col := range execution.Columns {
			value, ok := row[col]
			if !ok {
				continue
			}
			shaped[renamed[j]] = value
		}
		data[i] = shaped
	}

	execution.Columns = renamed
	execution.Data = data
	return execution
}

// columnsUsedFromSQL is the fallback when the generator reported no columns:
// every known column whose name appears in the statement (case-insensitive)
// is assumed used.
func columnsUsedFromSQL(sqlText string, tables []TableInfo) []ColumnUsed {
	lower := strings.ToLower(sqlText)
	var used []ColumnUsed
	for _, t := range tables {
		for _, c := range t.Columns {
			if c.Name == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(c.Name)) {
				description := c.Comment
				if description == "" {
					description = c.Name
				}
				used = append(used, ColumnUsed{
					TableName:   t.TableName,
					ColName:     c.Name,
					Description: description,
				})
			}
		}
	}
	return used
}
