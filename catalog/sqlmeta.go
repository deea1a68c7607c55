package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/praxisworks/tabula/schema"
)

// InsertSQLDatabase registers a target database connection descriptor.
func (s *Store) InsertSQLDatabase(ctx context.Context, d schema.SQLDatabase) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO base_sql (sql_id, user_id, host, port, sql_type, sql_name, username, password, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.OwnerID, d.Host, d.Port, d.Dialect, d.Name, d.Username, d.Password, d.Description)
		if err != nil {
			return &Error{Op: "catalog.InsertSQLDatabase", Err: err}
		}
		if d.Description != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO sql_des (sql_id, description) VALUES (?, ?)`,
				d.ID, d.Description); err != nil {
				return &Error{Op: "catalog.InsertSQLDatabase", Err: err}
			}
		}
		return nil
	})
}

// UpdateSQLDatabase rewrites an existing connection descriptor.
func (s *Store) UpdateSQLDatabase(ctx context.Context, d schema.SQLDatabase) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE base_sql SET host = ?, port = ?, sql_type = ?, sql_name = ?, username = ?, password = ?, description = ?
		 WHERE sql_id = ?`,
		d.Host, d.Port, d.Dialect, d.Name, d.Username, d.Password, d.Description, d.ID)
	if err != nil {
		return &Error{Op: "catalog.UpdateSQLDatabase", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("catalog.UpdateSQLDatabase", "sql database")
	}
	return nil
}

// GetSQLDatabase fetches a connection descriptor by id.
func (s *Store) GetSQLDatabase(ctx context.Context, sqlID string) (schema.SQLDatabase, error) {
	var d schema.SQLDatabase
	err := s.db.QueryRowContext(ctx,
		`SELECT sql_id, user_id, host, port, sql_type, sql_name, COALESCE(username, ''), COALESCE(password, ''), COALESCE(description, '')
		 FROM base_sql WHERE sql_id = ?`, sqlID).
		Scan(&d.ID, &d.OwnerID, &d.Host, &d.Port, &d.Dialect, &d.Name, &d.Username, &d.Password, &d.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.SQLDatabase{}, notFound("catalog.GetSQLDatabase", "sql database")
	}
	if err != nil {
		return schema.SQLDatabase{}, &Error{Op: "catalog.GetSQLDatabase", Err: err}
	}
	return d, nil
}

// ListSQLDatabasesByUser returns every SQL database a user registered.
func (s *Store) ListSQLDatabasesByUser(ctx context.Context, userID string) ([]schema.SQLDatabase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sql_id, user_id, host, port, sql_type, sql_name, COALESCE(description, '')
		 FROM base_sql WHERE user_id = ?`, userID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListSQLDatabasesByUser", Err: err}
	}
	defer rows.Close()

	var dbs []schema.SQLDatabase
	for rows.Next() {
		var d schema.SQLDatabase
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Host, &d.Port, &d.Dialect, &d.Name, &d.Description); err != nil {
			return nil, &Error{Op: "catalog.ListSQLDatabasesByUser", Err: err}
		}
		dbs = append(dbs, d)
	}
	return dbs, rows.Err()
}

// DeleteSQLDatabase removes the descriptor and every table, column, relation,
// description, and analysis row under it. The vector partition and the graph
// nodes live in other stores and are swept by the caller.
func (s *Store) DeleteSQLDatabase(ctx context.Context, sqlID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM col_sql WHERE table_id IN (SELECT table_id FROM table_sql WHERE sql_id = ?)`, sqlID); err != nil {
			return &Error{Op: "catalog.DeleteSQLDatabase", Err: err}
		}
		for _, stmt := range []string{
			`DELETE FROM table_sql WHERE sql_id = ?`,
			`DELETE FROM rel_sql WHERE sql_id = ?`,
			`DELETE FROM sql_des WHERE sql_id = ?`,
			`DELETE FROM schema_analysis_result WHERE sql_id = ?`,
			`DELETE FROM base_sql WHERE sql_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, sqlID); err != nil {
				return &Error{Op: "catalog.DeleteSQLDatabase", Err: err}
			}
		}
		return nil
	})
}

// InsertSQLTable stores one table record.
func (s *Store) InsertSQLTable(ctx context.Context, t schema.SQLTable) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_sql (table_id, sql_id, table_name, table_description) VALUES (?, ?, ?, ?)`,
		t.ID, t.SQLID, t.Name, t.Description)
	if err != nil {
		return &Error{Op: "catalog.InsertSQLTable", Err: err}
	}
	return nil
}

// ListSQLTables returns every table of a SQL database.
func (s *Store) ListSQLTables(ctx context.Context, sqlID string) ([]schema.SQLTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_id, sql_id, table_name, COALESCE(table_description, '')
		 FROM table_sql WHERE sql_id = ?`, sqlID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListSQLTables", Err: err}
	}
	defer rows.Close()

	var tables []schema.SQLTable
	for rows.Next() {
		var t schema.SQLTable
		if err := rows.Scan(&t.ID, &t.SQLID, &t.Name, &t.Description); err != nil {
			return nil, &Error{Op: "catalog.ListSQLTables", Err: err}
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// InsertSQLColumn stores one column record; Info is serialised to JSON.
func (s *Store) InsertSQLColumn(ctx context.Context, c schema.SQLColumn) error {
	info, err := json.Marshal(c.Info)
	if err != nil {
		return &Error{Op: "catalog.InsertSQLColumn", Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO col_sql (col_id, table_id, col_name, col_type, col_info) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.TableID, c.Name, c.Type, string(info))
	if err != nil {
		return &Error{Op: "catalog.InsertSQLColumn", Err: err}
	}
	return nil
}

// ListSQLColumns returns every column of a table.
func (s *Store) ListSQLColumns(ctx context.Context, tableID string) ([]schema.SQLColumn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT col_id, table_id, col_name, COALESCE(col_type, ''), COALESCE(col_info, '')
		 FROM col_sql WHERE table_id = ?`, tableID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListSQLColumns", Err: err}
	}
	defer rows.Close()

	var cols []schema.SQLColumn
	for rows.Next() {
		var c schema.SQLColumn
		var info string
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &info); err != nil {
			return nil, &Error{Op: "catalog.ListSQLColumns", Err: err}
		}
		if info != "" {
			_ = json.Unmarshal([]byte(info), &c.Info)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// SearchTablesByDescription finds tables of a SQL database whose description
// mentions the term (LIKE, case-insensitive by sqlite's default collation for
// ASCII).
func (s *Store) SearchTablesByDescription(ctx context.Context, sqlID, term string) ([]schema.SQLTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_id, sql_id, table_name, COALESCE(table_description, '')
		 FROM table_sql WHERE sql_id = ? AND table_description LIKE ?`,
		sqlID, "%"+term+"%")
	if err != nil {
		return nil, &Error{Op: "catalog.SearchTablesByDescription", Err: err}
	}
	defer rows.Close()

	var tables []schema.SQLTable
	for rows.Next() {
		var t schema.SQLTable
		if err := rows.Scan(&t.ID, &t.SQLID, &t.Name, &t.Description); err != nil {
			return nil, &Error{Op: "catalog.SearchTablesByDescription", Err: err}
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// SearchColumnsByDescription finds columns of a SQL database whose stored
// col_info mentions the term. Matching runs over the serialised info because
// the comment lives inside the JSON payload.
func (s *Store) SearchColumnsByDescription(ctx context.Context, sqlID, term string) ([]schema.SQLColumn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.col_id, c.table_id, c.col_name, COALESCE(c.col_type, ''), COALESCE(c.col_info, '')
		 FROM col_sql c JOIN table_sql t ON c.table_id = t.table_id
		 WHERE t.sql_id = ? AND c.col_info LIKE ?`,
		sqlID, "%"+term+"%")
	if err != nil {
		return nil, &Error{Op: "catalog.SearchColumnsByDescription", Err: err}
	}
	defer rows.Close()

	var cols []schema.SQLColumn
	for rows.Next() {
		var c schema.SQLColumn
		var info string
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &info); err != nil {
			return nil, &Error{Op: "catalog.SearchColumnsByDescription", Err: err}
		}
		if info != "" {
			_ = json.Unmarshal([]byte(info), &c.Info)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// InsertSQLRelation stores one declared column-to-column reference.
func (s *Store) InsertSQLRelation(ctx context.Context, r schema.SQLRelation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rel_sql (rel_id, sql_id, from_table, from_col, to_table, to_col) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SQLID, r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
	if err != nil {
		return &Error{Op: "catalog.InsertSQLRelation", Err: err}
	}
	return nil
}

// ListSQLRelations returns the declared relations of a SQL database.
func (s *Store) ListSQLRelations(ctx context.Context, sqlID string) ([]schema.SQLRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_id, sql_id, from_table, from_col, to_table, to_col FROM rel_sql WHERE sql_id = ?`, sqlID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListSQLRelations", Err: err}
	}
	defer rows.Close()

	var rels []schema.SQLRelation
	for rows.Next() {
		var r schema.SQLRelation
		if err := rows.Scan(&r.ID, &r.SQLID, &r.FromTable, &r.FromColumn, &r.ToTable, &r.ToColumn); err != nil {
			return nil, &Error{Op: "catalog.ListSQLRelations", Err: err}
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// DeleteSQLRelation removes one declared relation.
func (s *Store) DeleteSQLRelation(ctx context.Context, relID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rel_sql WHERE rel_id = ?`, relID)
	if err != nil {
		return &Error{Op: "catalog.DeleteSQLRelation", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("catalog.DeleteSQLRelation", "relation")
	}
	return nil
}

// UpsertSchemaAnalysis stores a per-table analysis, replacing any previous
// one for the same (sql_id, table_id).
func (s *Store) UpsertSchemaAnalysis(ctx context.Context, a schema.SchemaAnalysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return &Error{Op: "catalog.UpsertSchemaAnalysis", Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_analysis_result (sql_id, table_id, result) VALUES (?, ?, ?)`,
		a.SQLID, a.TableID, string(payload))
	if err != nil {
		return &Error{Op: "catalog.UpsertSchemaAnalysis", Err: err}
	}
	return nil
}

// GetSchemaAnalysis fetches a stored analysis by (sql_id, table_id).
func (s *Store) GetSchemaAnalysis(ctx context.Context, sqlID, tableID string) (schema.SchemaAnalysis, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM schema_analysis_result WHERE sql_id = ? AND table_id = ?`, sqlID, tableID).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.SchemaAnalysis{}, notFound("catalog.GetSchemaAnalysis", "schema analysis")
	}
	if err != nil {
		return schema.SchemaAnalysis{}, &Error{Op: "catalog.GetSchemaAnalysis", Err: err}
	}
	var a schema.SchemaAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return schema.SchemaAnalysis{}, &Error{Op: "catalog.GetSchemaAnalysis", Err: err}
	}
	return a, nil
}

// CountSchemaAnalyses counts stored analyses for a (sql_id, table_id) pair.
func (s *Store) CountSchemaAnalyses(ctx context.Context, sqlID, tableID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_analysis_result WHERE sql_id = ? AND table_id = ?`, sqlID, tableID).
		Scan(&n)
	if err != nil {
		return 0, &Error{Op: "catalog.CountSchemaAnalyses", Err: err}
	}
	return n, nil
}
