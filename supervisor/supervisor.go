// Package supervisor evaluates each completed pipeline stage on accuracy,
// reasonableness, coordination, and quality. Verdicts are advisory: they are
// recorded into a sidecar list and never block progression.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
)

// Score is one evaluation dimension.
type Score struct {
	Value   float64  `json:"score"`
	Pass    bool     `json:"is_valid"`
	Issues  []string `json:"issues,omitempty"`
	Details string   `json:"details,omitempty"`
}

// Coordination reports whether the stage's output carries what the next
// stage expects.
type Coordination struct {
	Score
	RequiredFields []string `json:"required_fields,omitempty"`
	MissingFields  []string `json:"missing_fields,omitempty"`
}

// Status is the overall verdict of one evaluation.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
)

// Evaluation is the structured verdict over one completed stage.
type Evaluation struct {
	Step           string       `json:"step"`
	Accuracy       Score        `json:"accuracy"`
	Reasonableness Score        `json:"reasonableness"`
	Coordination   Coordination `json:"coordination"`
	Quality        Score        `json:"quality"`
	Overall        struct {
		Score   float64 `json:"score"`
		Status  Status  `json:"status"`
		Summary string  `json:"summary,omitempty"`
	} `json:"overall"`
}

// StepRecord is a prior stage's name and success flag, given to the model as
// context.
type StepRecord struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
}

// requiredFields maps each stage to the fields the next stage expects in its
// result. The baseline checks verify these regardless of what the model
// says.
var requiredFields = map[string][]string{
	"data_type_analysis":     {"columns"},
	"statistics_planning":    {"sheets"},
	"statistics_calculation": {"calculations"},
	"correlation_analysis":   {"strong_correlations"},
	"semantic_analysis":      {"column_semantics"},
	"result_interpretation":  {"interpretation"},
	"echarts_generation":     {"charts"},
}

// Supervisor evaluates stage results. With a nil chat model only the
// rule-based baseline runs.
type Supervisor struct {
	chat   llm.ChatModel
	logger *o11y.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// New creates a Supervisor. chat may be nil.
func New(chat llm.ChatModel, opts ...Option) *Supervisor {
	s := &Supervisor{chat: chat, logger: o11y.NewLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate scores one completed stage. The model's evaluation (when
// available) is overlaid with the rule-based baseline; the baseline always
// applies.
func (s *Supervisor) Evaluate(ctx context.Context, step string, result map[string]any, previous []StepRecord, taskContext string) Evaluation {
	evaluation := s.defaultEvaluation(step)

	if s.chat != nil {
		resultJSON, _ := json.Marshal(result)
		previousJSON, _ := json.Marshal(previous)
		prompt := fmt.Sprintf(`Evaluate this pipeline step's result. Respond with a JSON object shaped exactly like:
{"accuracy": {"score": 0.0, "is_valid": true, "issues": [], "details": ""},
 "reasonableness": {"score": 0.0, "is_valid": true, "issues": [], "details": ""},
 "coordination": {"score": 0.0, "is_valid": true, "issues": [], "required_fields": [], "missing_fields": []},
 "quality": {"score": 0.0, "is_valid": true, "issues": [], "details": ""},
 "overall": {"score": 0.0, "status": "pass", "summary": ""}}

Step: %s
Task context: %s
Previous steps: %s
Result: %s`, step, taskContext, previousJSON, resultJSON)

		modelEval, err := llm.GenerateJSON(ctx, s.chat, []llm.Message{
			llm.System(prompt),
			llm.User("evaluate"),
		}, func() Evaluation { return s.defaultEvaluation(step) })
		if err == nil {
			modelEval.Step = step
			evaluation = modelEval
		}
	}

	s.applyBaseline(step, result, &evaluation)
	return evaluation
}

// applyBaseline enforces the rule-based checks: required fields present and
// non-empty. Violations downgrade accuracy and the overall status.
func (s *Supervisor) applyBaseline(step string, result map[string]any, evaluation *Evaluation) {
	fields := requiredFields[step]
	evaluation.Coordination.RequiredFields = fields

	var missing []string
	for _, field := range fields {
		if isEmptyField(result[field]) {
			missing = append(missing, field)
		}
	}
	evaluation.Coordination.MissingFields = missing

	if len(missing) > 0 {
		evaluation.Accuracy.Pass = false
		evaluation.Accuracy.Value = maxf(0, evaluation.Accuracy.Value-0.2*float64(len(missing)))
		for _, field := range missing {
			evaluation.Accuracy.Issues = append(evaluation.Accuracy.Issues, "missing or empty field: "+field)
		}
		evaluation.Coordination.Pass = false
		evaluation.Overall.Status = StatusFail
		evaluation.Overall.Summary = fmt.Sprintf("%s is missing required output fields: %v", step, missing)
	}
}

func isEmptyField(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	}
	return false
}

// defaultEvaluation is the neutral verdict used when no model is configured
// or its output is unusable.
func (s *Supervisor) defaultEvaluation(step string) Evaluation {
	neutral := Score{Value: 0.8, Pass: true, Details: "rule-based baseline only"}
	e := Evaluation{
		Step:           step,
		Accuracy:       neutral,
		Reasonableness: neutral,
		Coordination:   Coordination{Score: neutral},
		Quality:        neutral,
	}
	e.Overall.Score = 0.8
	e.Overall.Status = StatusWarning
	e.Overall.Summary = "model evaluation unavailable"
	return e
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
