package catalog

import "context"

// ddl is the full catalog schema. Every statement is idempotent so bootstrap
// can run on every open. Timestamps are stored as ISO-8601 text.
const ddl = `
CREATE TABLE IF NOT EXISTS user_info (
	user_id    TEXT PRIMARY KEY,
	user_name  TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS knowledge_base (
	knowledge_id   TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	knowledge_name TEXT NOT NULL,
	description    TEXT,
	valid_from     TEXT,
	valid_until    TEXT,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_basic_info (
	file_id          TEXT PRIMARY KEY,
	knowledge_id     TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	permission_level TEXT NOT NULL DEFAULT 'private',
	source_url       TEXT,
	local_path       TEXT,
	size             INTEGER NOT NULL DEFAULT 0,
	uploaded_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_detail_info (
	file_id           TEXT PRIMARY KEY,
	title             TEXT,
	summary           TEXT,
	authors           TEXT,
	category          TEXT,
	table_of_contents TEXT
);

CREATE TABLE IF NOT EXISTS graph_chunk (
	chunk_id     TEXT PRIMARY KEY,
	file_id      TEXT NOT NULL,
	knowledge_id TEXT NOT NULL,
	content      TEXT
);

CREATE TABLE IF NOT EXISTS graph_node (
	node_id      TEXT PRIMARY KEY,
	file_id      TEXT NOT NULL,
	knowledge_id TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	name         TEXT NOT NULL,
	kind         TEXT,
	description  TEXT,
	permission_level TEXT NOT NULL DEFAULT 'private'
);

CREATE TABLE IF NOT EXISTS graph_relation (
	relation_id  TEXT PRIMARY KEY,
	file_id      TEXT NOT NULL,
	knowledge_id TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	from_node    TEXT NOT NULL,
	to_node      TEXT NOT NULL,
	label        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS image_file (
	image_id  TEXT PRIMARY KEY,
	file_id   TEXT NOT NULL,
	path      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS table_data (
	table_data_id TEXT PRIMARY KEY,
	file_id       TEXT NOT NULL,
	content       TEXT
);

CREATE TABLE IF NOT EXISTS session (
	session_id     TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	session_name   TEXT NOT NULL,
	knowledge_name TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS discussion_task_record (
	discussion_id TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS base_sql (
	sql_id      TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	host        TEXT NOT NULL,
	port        INTEGER NOT NULL,
	sql_type    TEXT NOT NULL,
	sql_name    TEXT NOT NULL,
	username    TEXT,
	password    TEXT,
	description TEXT
);

CREATE TABLE IF NOT EXISTS table_sql (
	table_id          TEXT PRIMARY KEY,
	sql_id            TEXT NOT NULL,
	table_name        TEXT NOT NULL,
	table_description TEXT
);

CREATE TABLE IF NOT EXISTS col_sql (
	col_id   TEXT PRIMARY KEY,
	table_id TEXT NOT NULL,
	col_name TEXT NOT NULL,
	col_type TEXT,
	col_info TEXT
);

CREATE TABLE IF NOT EXISTS rel_sql (
	rel_id     TEXT PRIMARY KEY,
	sql_id     TEXT NOT NULL,
	from_table TEXT NOT NULL,
	from_col   TEXT NOT NULL,
	to_table   TEXT NOT NULL,
	to_col     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sql_des (
	sql_id      TEXT PRIMARY KEY,
	description TEXT
);

CREATE TABLE IF NOT EXISTS schema_analysis_result (
	sql_id   TEXT NOT NULL,
	table_id TEXT NOT NULL,
	result   TEXT NOT NULL,
	PRIMARY KEY (sql_id, table_id)
);

CREATE INDEX IF NOT EXISTS idx_file_knowledge ON file_basic_info(knowledge_id);
CREATE INDEX IF NOT EXISTS idx_graph_node_file ON graph_node(file_id);
CREATE INDEX IF NOT EXISTS idx_table_sql_sql ON table_sql(sql_id);
CREATE INDEX IF NOT EXISTS idx_col_sql_table ON col_sql(table_id);
CREATE INDEX IF NOT EXISTS idx_session_user ON session(user_id);
`

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return &Error{Op: "catalog.bootstrap", Err: err}
	}
	return nil
}
