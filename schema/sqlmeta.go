package schema

// SQLDatabase is a registered connection descriptor for a target relational
// database the agentic SQL pipeline may query.
type SQLDatabase struct {
	ID          string `json:"sql_id"`
	OwnerID     string `json:"user_id"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Dialect     string `json:"sql_type"`
	Name        string `json:"sql_name"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	Description string `json:"description,omitempty"`
}

// SQLTable is one table of a registered SQL database.
type SQLTable struct {
	ID          string `json:"table_id"`
	SQLID       string `json:"sql_id"`
	Name        string `json:"table_name"`
	Description string `json:"table_description,omitempty"`
}

// AnaType is the analytical category of a column.
type AnaType string

const (
	AnaNumeric   AnaType = "numeric"
	AnaAttribute AnaType = "attribute"
	AnaDatetime  AnaType = "datetime"
)

// ColumnInfo is the structured JSON payload stored alongside a column record.
type ColumnInfo struct {
	Comment string  `json:"comment,omitempty"`
	AnaType AnaType `json:"ana_type,omitempty"`
}

// SQLColumn is one column of a registered table.
type SQLColumn struct {
	ID      string     `json:"col_id"`
	TableID string     `json:"table_id"`
	Name    string     `json:"col_name"`
	Type    string     `json:"col_type"`
	Info    ColumnInfo `json:"col_info"`
}

// SQLRelation is a declared reference between two columns of a registered
// SQL database.
type SQLRelation struct {
	ID         string `json:"rel_id"`
	SQLID      string `json:"sql_id"`
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_col"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_col"`
}
