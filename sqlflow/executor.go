package sqlflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/praxisworks/tabula/schema"
)

// Executor runs one read statement against a registered target database.
// Execution errors are data, not Go errors: they feed the correction loop.
type Executor interface {
	Execute(ctx context.Context, db schema.SQLDatabase, query string) ExecutionResult
}

// SQLExecutor is the database/sql-backed Executor. MySQL is the supported
// dialect; the connection is opened per run and closed after, since target
// databases are external and sporadic.
type SQLExecutor struct {
	// MaxRows bounds how many rows an execution returns. Defaults to 1000.
	MaxRows int
	// Timeout bounds a single execution. Defaults to 30 seconds.
	Timeout time.Duration
}

// NewSQLExecutor creates an executor with defaults.
func NewSQLExecutor() *SQLExecutor {
	return &SQLExecutor{MaxRows: 1000, Timeout: 30 * time.Second}
}

func (e *SQLExecutor) dsn(db schema.SQLDatabase) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		db.Username, db.Password, db.Host, db.Port, db.Name)
}

// Execute opens the target connection, runs the query, and shapes rows into
// column-keyed maps.
func (e *SQLExecutor) Execute(ctx context.Context, db schema.SQLDatabase, query string) ExecutionResult {
	maxRows := e.MaxRows
	if maxRows <= 0 {
		maxRows = 1000
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := sql.Open("mysql", e.dsn(db))
	if err != nil {
		return ExecutionResult{Error: err.Error()}
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return ExecutionResult{Error: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return ExecutionResult{Error: err.Error()}
	}

	var data []map[string]any
	values := make([]any, len(columns))
	scanners := make([]any, len(columns))
	for i := range values {
		scanners[i] = &values[i]
	}
	for rows.Next() && len(data) < maxRows {
		if err := rows.Scan(scanners...); err != nil {
			return ExecutionResult{Error: err.Error(), Columns: columns}
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return ExecutionResult{Error: err.Error(), Columns: columns}
	}

	return ExecutionResult{Executed: true, Columns: columns, Data: data}
}

// normalizeValue turns driver byte slices into strings so results serialise
// as JSON text rather than base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
