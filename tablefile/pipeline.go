package tablefile

import (
	"context"
	"encoding/json"
	"io"

	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/supervisor"
)

// Callbacks receives the pipeline's streaming output: stage transitions,
// chart payloads, and the interpretation text.
type Callbacks struct {
	Step  StepFunc
	Chart func(option string)
	Text  func(markdown string)
}

func (c *Callbacks) fill() {
	if c.Step == nil {
		c.Step = func(string, schema.StepStatus, any) {}
	}
	if c.Chart == nil {
		c.Chart = func(string) {}
	}
	if c.Text == nil {
		c.Text = func(string) {}
	}
}

// Pipeline is the eight-stage table-file analysis flow with its supervisor
// sidecar.
type Pipeline struct {
	chat       llm.ChatModel
	supervisor *supervisor.Supervisor
	logger     *o11y.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates the pipeline. chat may be nil: every model-backed stage then
// runs on its documented fallback.
func New(chat llm.ChatModel, sup *supervisor.Supervisor, opts ...Option) *Pipeline {
	p := &Pipeline{
		chat:       chat,
		supervisor: sup,
		logger:     o11y.NewLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// supervise records one completed stage's verdict into the sidecar list.
// Verdicts never block progression.
func (p *Pipeline) supervise(ctx context.Context, result *Result, step string, payload map[string]any, previous []supervisor.StepRecord, taskContext string) {
	if p.supervisor == nil {
		return
	}
	eval := p.supervisor.Evaluate(ctx, step, payload, previous, taskContext)
	result.Supervision = append(result.Supervision, SupervisionRecord{
		Step:    step,
		Status:  string(eval.Overall.Status),
		Summary: eval.Overall.Summary,
	})
	if eval.Overall.Status == supervisor.StatusFail {
		p.logger.Warn(ctx, "supervision flagged step", "step", step, "summary", eval.Overall.Summary)
	}
}

// asPayload converts a stage result into the map shape the supervisor's
// baseline checks inspect.
func asPayload(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Run drives stages 0–8 over one CSV input. Stage outputs accumulate into
// the returned Result; stages whose prerequisites are missing skip with a
// typed reason instead of aborting the pipeline.
func (p *Pipeline) Run(ctx context.Context, name string, input io.Reader, query string, cb Callbacks) (*Result, error) {
	cb.fill()
	result := &Result{}
	var previous []supervisor.StepRecord
	record := func(step string, success bool) {
		previous = append(previous, supervisor.StepRecord{Step: step, Success: success})
	}

	// Stage 0: file reading.
	cb.Step(StepFileReading, schema.StepStart, nil)
	wb, err := ReadWorkbookCSV(name, input)
	if err != nil {
		cb.Step(StepFileReading, schema.StepFailed, map[string]any{"error": err.Error()})
		return result, schema.NewError("tablefile.read", schema.KindPipelineFatal, "file reading failed", err)
	}
	cb.Step(StepFileReading, schema.StepCompleted, map[string]any{
		"sheets": len(wb.Sheets),
	})
	record("file_reading", true)

	// Stage 2 runs before stage 1 can be meaningful to a model, but the
	// public order follows the stage numbering: understanding first, typed
	// analysis second. Understanding uses a cheap structural pass.
	typesForUnderstanding := AnalyzeTypes(wb)

	// Stage 1: file understanding.
	cb.Step(StepFileUnderstanding, schema.StepStart, nil)
	understanding := UnderstandFile(ctx, p.chat, typesForUnderstanding, query)
	result.Understanding = &understanding
	cb.Step(StepFileUnderstanding, schema.StepCompleted, understanding)
	record("file_understanding", true)

	// Stage 2: data-type analysis.
	cb.Step(StepDataTypeAnalysis, schema.StepStart, nil)
	result.Types = typesForUnderstanding
	cb.Step(StepDataTypeAnalysis, schema.StepCompleted, result.Types)
	record("data_type_analysis", true)
	for _, sheet := range result.Types {
		p.supervise(ctx, result, "data_type_analysis", asPayload(sheet), previous, query)
		break
	}

	// Stage 3: statistics planning.
	cb.Step(StepStatisticsPlanning, schema.StepStart, nil)
	plan := PlanStatistics(ctx, p.chat, result.Types, understanding)
	result.Plan = &plan
	cb.Step(StepStatisticsPlanning, schema.StepCompleted, plan)
	record("statistics_planning", true)
	p.supervise(ctx, result, "statistics_planning", asPayload(plan), previous, query)

	// Stage 4: statistics calculation.
	cb.Step(StepStatisticsCalculation, schema.StepStart, nil)
	result.Statistics = CalculateStatistics(wb, result.Types, plan)
	hasEvidence := false
	for _, sheet := range result.Statistics {
		if !sheet.Indicators.Empty() {
			hasEvidence = true
			break
		}
	}
	cb.Step(StepStatisticsCalculation, schema.StepCompleted, map[string]any{
		"sheets":       len(result.Statistics),
		"has_evidence": hasEvidence,
	})
	record("statistics_calculation", hasEvidence)
	for _, sheet := range result.Statistics {
		p.supervise(ctx, result, "statistics_calculation", asPayload(sheet), previous, query)
		break
	}

	// Stage 5: correlation analysis. Skips without stage-4 evidence.
	if hasEvidence {
		cb.Step(StepCorrelationAnalysis, schema.StepStart, nil)
		correlation := AnalyzeCorrelations(result.Statistics)
		result.Correlation = &correlation
		cb.Step(StepCorrelationAnalysis, schema.StepCompleted, correlation)
		record("correlation_analysis", true)
		p.supervise(ctx, result, "correlation_analysis", asPayload(correlation), previous, query)
	} else {
		cb.Step(StepCorrelationAnalysis, schema.StepSkipped, map[string]any{
			"reason": "no statistics to correlate",
		})
		record("correlation_analysis", false)
	}

	// Stage 6: semantic analysis.
	cb.Step(StepSemanticAnalysis, schema.StepStart, nil)
	semantics := AnalyzeSemantics(ctx, p.chat, result.Types, result.Statistics)
	result.Semantics = &semantics
	cb.Step(StepSemanticAnalysis, schema.StepCompleted, semantics)
	record("semantic_analysis", true)
	p.supervise(ctx, result, "semantic_analysis", asPayload(semantics), previous, query)

	// Stage 7: result interpretation, streamed as text.
	cb.Step(StepResultInterpretation, schema.StepStart, nil)
	result.Interpretation = Interpret(ctx, p.chat, result, query)
	cb.Text(result.Interpretation)
	cb.Step(StepResultInterpretation, schema.StepCompleted, map[string]any{
		"length": len(result.Interpretation),
	})
	record("result_interpretation", true)
	p.supervise(ctx, result, "result_interpretation",
		map[string]any{"interpretation": result.Interpretation}, previous, query)

	// Stage 8: chart generation. With no valid indicators left, the stage
	// reports no_valid_data and emits no chart chunks.
	cb.Step(StepChartGeneration, schema.StepStart, nil)
	if !hasEvidence {
		cb.Step(StepChartGeneration, schema.StepCompleted, map[string]any{
			"charts": []Chart{},
			"reason": "no_valid_data",
		})
		record("echarts_generation", false)
		return result, nil
	}
	result.Charts = GenerateCharts(result.Statistics, result.Correlation, result.Semantics)
	for _, chart := range result.Charts {
		cb.Chart(chart.Option)
	}
	cb.Step(StepChartGeneration, schema.StepCompleted, map[string]any{
		"charts": result.Charts,
		"count":  len(result.Charts),
	})
	record("echarts_generation", len(result.Charts) > 0)
	p.supervise(ctx, result, "echarts_generation",
		map[string]any{"charts": chartsAsAny(result.Charts)}, previous, query)

	return result, nil
}

func chartsAsAny(charts []Chart) []any {
	out := make([]any, len(charts))
	for i, c := range charts {
		out[i] = c
	}
	return out
}
