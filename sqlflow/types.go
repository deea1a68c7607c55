// Package sqlflow is the agentic natural-language-to-SQL engine: a staged
// state machine that loads schema metadata, shortcuts metadata queries,
// retrieves candidate tables, decomposes the question, recognises intent,
// then drives a generate / check-run / correct / optimize / recheck / verify
// sub-flow with bounded retries and rollback.
package sqlflow

import "github.com/praxisworks/tabula/schema"

// Step names, stable across releases; they key the step chunks emitted
// through the streaming transport.
const (
	StepDatabaseInfo       = "step_1_database_info"
	StepMetadataQuery      = "step_1_2_metadata_query"
	StepVectorSearch       = "step_1_3_milvus_search"
	StepQueryDecomposition = "step_1_5_query_decomposition"
	StepIntentRecognition  = "step_2_intent_recognition"
	StepSQLGeneration      = "step_3_sql_generation"
	StepFinalResult        = "step_final_result"

	FlowStepGeneration   = "sql_flow_step_1_generation"
	FlowStepCheckRun     = "sql_flow_step_2_check_run"
	FlowStepCorrection   = "sql_flow_step_3_correction"
	FlowStepOptimization = "sql_flow_step_4_optimization"
	FlowStepRecheckRun   = "sql_flow_step_5_recheck_run"
	FlowStepVerification = "sql_flow_step_6_verification"
)

// StepFunc receives every step transition of a pipeline run.
type StepFunc func(step string, status schema.StepStatus, payload any)

// nopStep is used when the caller passes a nil StepFunc.
func nopStep(string, schema.StepStatus, any) {}

// Entity is one decomposed entity of the user's question.
type Entity struct {
	Name        string `json:"entity_name"`
	Description string `json:"description,omitempty"`
}

// Metric is one decomposed metric of the user's question.
type Metric struct {
	Name        string `json:"metric_name"`
	Description string `json:"description,omitempty"`
}

// LogicalCalculation is one calculation the question implies.
type LogicalCalculation struct {
	Operation   string   `json:"logical_operation"`
	Operands    []string `json:"operands,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Decomposition is the structured breakdown of the user's question. Every
// field is a first-class slice so downstream stages reason by field instead
// of string-matching a blob.
type Decomposition struct {
	Entities              []Entity             `json:"entities"`
	Metrics               []Metric             `json:"metrics"`
	TimeDimensions        []string             `json:"time_dimensions"`
	SpatialDimensions     []string             `json:"spatial_dimensions"`
	Relationships         []string             `json:"relationships"`
	LogicalCalculations   []LogicalCalculation `json:"logical_calculations"`
	SetTheoryRelations    []string             `json:"set_theory_relations"`
	RelationalAlgebra     []string             `json:"relational_algebra"`
	GraphTheoryRelations  []string             `json:"graph_theory_relations"`
	LogicalReasoning      []string             `json:"logical_reasoning"`
	SemanticNetwork       []string             `json:"semantic_network"`
	MathematicalRelations []string             `json:"mathematical_relations"`
	AnalysisSummary       string               `json:"analysis_summary,omitempty"`
}

// ColumnDetail is one column of a candidate table, as shown to sub-agents.
type ColumnDetail struct {
	Name    string         `json:"col_name"`
	Type    string         `json:"col_type"`
	Comment string         `json:"col_comment,omitempty"`
	AnaType schema.AnaType `json:"ana_type,omitempty"`
}

// TableInfo is one candidate table with its columns.
type TableInfo struct {
	TableID     string         `json:"table_id"`
	TableName   string         `json:"table_name"`
	Description string         `json:"table_description,omitempty"`
	Columns     []ColumnDetail `json:"columns"`
}

// RelevantColumn is one column the intent stage shortlisted.
type RelevantColumn struct {
	TableName   string `json:"table_name"`
	ColName     string `json:"col_name"`
	Description string `json:"description,omitempty"`
}

// Intent is the recognised intent of the question against the filtered
// tables.
type Intent struct {
	PrimaryEntities  []string         `json:"primary_entities"`
	EntityAttributes []string         `json:"entity_attributes"`
	EntityMetrics    []string         `json:"entity_metrics"`
	TimeDimensions   []string         `json:"time_dimensions"`
	Relationships    []string         `json:"relationships"`
	RelevantTables   []string         `json:"relevant_tables"`
	RelevantColumns  []RelevantColumn `json:"relevant_columns"`
	SearchStrategy   string           `json:"search_strategy,omitempty"`
}

// ColumnUsed is one (table, column, description) tuple the generator reports
// having used. It drives the table.col result shaping.
type ColumnUsed struct {
	TableName   string `json:"table_name"`
	ColName     string `json:"col_name"`
	Description string `json:"col_description,omitempty"`
}

// GenerationResult is the generator sub-agent's output.
type GenerationResult struct {
	SQL         string       `json:"sql"`
	Explanation string       `json:"explanation,omitempty"`
	ColumnsUsed []ColumnUsed `json:"columns_used,omitempty"`
}

// ExecutionResult captures one execution attempt against the target
// database.
type ExecutionResult struct {
	Executed bool             `json:"executed"`
	Error    string           `json:"error,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	Data     []map[string]any `json:"data,omitempty"`
}

// CheckRunResult is the combined static validation and execution outcome.
type CheckRunResult struct {
	IsValid   bool            `json:"is_valid"`
	IsSafe    bool            `json:"is_safe"`
	Errors    []string        `json:"errors,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Execution ExecutionResult `json:"execution_result"`
}

// CorrectionResult is the corrector sub-agent's output.
type CorrectionResult struct {
	CorrectedSQL string   `json:"corrected_sql"`
	Corrections  []string `json:"corrections,omitempty"`
}

// OptimizationResult is the optimizer sub-agent's output.
type OptimizationResult struct {
	OptimizedSQL            string   `json:"optimized_sql"`
	Optimizations           []string `json:"optimizations,omitempty"`
	PerformanceImprovements string   `json:"performance_improvements,omitempty"`
}

// VerificationResult is the verification sub-agent's advisory verdict. The
// pipeline never loops on it; the verdict is surfaced as-is.
type VerificationResult struct {
	IsSatisfied        bool     `json:"is_satisfied"`
	SatisfactionScore  float64  `json:"satisfaction_score"`
	VerificationReason string   `json:"verification_reason,omitempty"`
	MissingInfo        []string `json:"missing_info,omitempty"`
	Suggestions        []string `json:"suggestions,omitempty"`
}

// FlowResult is the SQL-generation sub-flow's outcome.
type FlowResult struct {
	SQL               string          `json:"sql"`
	Execution         ExecutionResult `json:"final_execution_result"`
	IsSatisfied       bool            `json:"is_satisfied"`
	SatisfactionScore float64         `json:"satisfaction_score"`
	ColumnsUsed       []ColumnUsed    `json:"generation_columns_used"`
}

// Result is the whole pipeline's outcome.
type Result struct {
	SQL               string          `json:"sql"`
	Dialect           string          `json:"sql_type"`
	Execution         ExecutionResult `json:"execution_result"`
	IsSatisfied       bool            `json:"is_satisfied"`
	SatisfactionScore float64         `json:"satisfaction_score"`
	ColumnsUsed       []ColumnUsed    `json:"columns_with_description"`
	TablesUsed        []string        `json:"tables_used"`
	// MetadataAnswer is set when the metadata shortcut handled the query;
	// the generation stages never ran.
	MetadataAnswer *MetadataResult `json:"metadata_result,omitempty"`
}
