package tablefile

import (
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/tablefile/stats"
)

// Stage names, stable across releases; they key the step chunks.
const (
	StepFileReading           = "step_0_file_reading"
	StepFileUnderstanding     = "step_1_file_understanding"
	StepDataTypeAnalysis      = "step_2_data_type_analysis"
	StepStatisticsPlanning    = "step_3_statistics_planning"
	StepStatisticsCalculation = "step_4_statistics_calculation"
	StepCorrelationAnalysis   = "step_5_correlation_analysis"
	StepSemanticAnalysis      = "step_6_semantic_analysis"
	StepResultInterpretation  = "step_7_result_interpretation"
	StepChartGeneration       = "step_8_echarts_generation"
)

// StepFunc receives every stage transition.
type StepFunc func(step string, status schema.StepStatus, payload any)

// ColumnType is the analytical classification of one column.
type ColumnType string

const (
	TypeInteger            ColumnType = "integer"
	TypeFloat              ColumnType = "float"
	TypeDatetime           ColumnType = "datetime"
	TypeBoolean            ColumnType = "boolean"
	TypeCategoricalText    ColumnType = "categorical_text"
	TypeCategoricalNumeric ColumnType = "categorical_numeric"
	TypeText               ColumnType = "text"
	TypeUnknown            ColumnType = "unknown"
)

// IsNumeric reports whether values of this type feed numeric statistics.
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsCategorical reports whether values of this type feed frequency and
// grouping statistics.
func (t ColumnType) IsCategorical() bool {
	return t == TypeCategoricalText || t == TypeCategoricalNumeric || t == TypeBoolean
}

// NumericStats summarises a numeric column at type-analysis time.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
}

// TextStats summarises a text column's lengths.
type TextStats struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// DatetimeStats summarises a datetime column's range.
type DatetimeStats struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// ColumnAnalysis is the stage-2 result for one column.
type ColumnAnalysis struct {
	Name           string         `json:"column"`
	Type           ColumnType     `json:"data_type"`
	NullCount      int            `json:"null_count"`
	NullPercentage float64        `json:"null_percentage"`
	UniqueCount    int            `json:"unique_count"`
	UniqueRatio    float64        `json:"unique_ratio"`
	Numeric        *NumericStats  `json:"numeric_stats,omitempty"`
	Text           *TextStats     `json:"text_stats,omitempty"`
	Datetime       *DatetimeStats `json:"datetime_stats,omitempty"`
}

// SheetTypeAnalysis is the stage-2 result for one sheet.
type SheetTypeAnalysis struct {
	Sheet   string           `json:"sheet"`
	Rows    int              `json:"rows"`
	Columns []ColumnAnalysis `json:"columns"`
}

// FileUnderstanding is the stage-1 result.
type FileUnderstanding struct {
	Purpose    string            `json:"purpose"`
	KeyColumns map[string][]string `json:"key_columns"`
	UserIntent string            `json:"user_intent,omitempty"`
}

// Technique is one entry of the fixed statistics menu.
type Technique string

const (
	TechDescriptive  Technique = "descriptive"
	TechDistribution Technique = "distribution"
	TechCorrelation  Technique = "correlation"
	TechFrequency    Technique = "frequency"
	TechGrouped      Technique = "grouped"
	TechTrend        Technique = "trend"
	TechTimeSeries   Technique = "time_series"
	TechJoint        Technique = "joint"
)

// SheetPlan is the stage-3 plan for one sheet.
type SheetPlan struct {
	Sheet      string      `json:"sheet"`
	Techniques []Technique `json:"techniques"`
}

// Plan is the stage-3 result.
type Plan struct {
	Sheets []SheetPlan `json:"sheets"`
}

// SheetIndicators is the simplified per-sheet evidence charts and the
// interpreter consume. Full matrices never leave the calculation stage.
type SheetIndicators struct {
	Descriptive   map[string]stats.Descriptive  `json:"descriptive,omitempty"`
	Distribution  map[string]stats.Distribution `json:"distribution,omitempty"`
	StrongPairs   []stats.CorrelationPair       `json:"strong_correlations,omitempty"`
	Frequency     map[string]stats.Frequency    `json:"frequency,omitempty"`
	Grouped       map[string][]stats.GroupSummary `json:"grouped,omitempty"`
	Trend         map[string]stats.Trend        `json:"trend,omitempty"`
	Joint         []stats.JointCount            `json:"joint,omitempty"`
}

// Empty reports whether the indicators carry no evidence at all.
func (s SheetIndicators) Empty() bool {
	return len(s.Descriptive) == 0 && len(s.Distribution) == 0 && len(s.StrongPairs) == 0 &&
		len(s.Frequency) == 0 && len(s.Grouped) == 0 && len(s.Trend) == 0 && len(s.Joint) == 0
}

// SheetStatistics is the stage-4 result for one sheet.
type SheetStatistics struct {
	Sheet        string          `json:"sheet"`
	Calculations []Technique     `json:"calculations"`
	Indicators   SheetIndicators `json:"indicators"`
	Charts       []Chart         `json:"charts,omitempty"`
}

// Chart is one ECharts configuration, carried as the serialised option
// payload (prefixed "option=") plus its title for deduplication.
type Chart struct {
	Title  string `json:"title"`
	Kind   string `json:"kind"`
	Option string `json:"option"`
}

// CorrelationAnalysis is the stage-5 result: strong correlations aggregated
// across sheets plus chart recommendations.
type CorrelationAnalysis struct {
	Strong          []stats.CorrelationPair `json:"strong_correlations"`
	Recommendations []Chart                 `json:"recommendations"`
}

// RecommendedAnalysis is one stage-6 analysis suggestion. ExpectedChart and
// TargetColumns feed chart generation alongside the stage-4 and stage-5
// candidates.
type RecommendedAnalysis struct {
	AnalysisType  string   `json:"analysis_type"`
	TargetColumns []string `json:"target_columns,omitempty"`
	ExpectedChart string   `json:"expected_chart,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// SemanticAnalysis is the stage-6 result.
type SemanticAnalysis struct {
	ColumnSemantics       map[string]string     `json:"column_semantics"`
	SemanticRelationships []string              `json:"semantic_relationships"`
	BusinessPatterns      []string              `json:"business_patterns"`
	RecommendedAnalyses   []RecommendedAnalysis `json:"recommended_analyses"`
}

// Result is the whole pipeline's outcome, stage outputs side by side.
type Result struct {
	Understanding  *FileUnderstanding   `json:"file_understanding,omitempty"`
	Types          []SheetTypeAnalysis  `json:"data_type_analysis,omitempty"`
	Plan           *Plan                `json:"statistics_plan,omitempty"`
	Statistics     []SheetStatistics    `json:"statistics,omitempty"`
	Correlation    *CorrelationAnalysis `json:"correlation_analysis,omitempty"`
	Semantics      *SemanticAnalysis    `json:"semantic_analysis,omitempty"`
	Interpretation string               `json:"interpretation,omitempty"`
	Charts         []Chart              `json:"charts,omitempty"`
	Supervision    []SupervisionRecord  `json:"supervision,omitempty"`
}

// SupervisionRecord is one sidecar verdict, as recorded per completed stage.
type SupervisionRecord struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}
