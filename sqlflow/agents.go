package sqlflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/praxisworks/tabula/llm"
)

// agents wraps the chat model with the sub-agent calls of the pipeline.
// Every sub-agent must answer in bare JSON; parse failures retry once and
// then fall back to that sub-agent's default payload. Generate and Correct
// have no default and return the parse error instead.
type agents struct {
	chat llm.ChatModel
}

func tablesJSON(tables []TableInfo) string {
	payload, err := json.Marshal(tables)
	if err != nil {
		return "[]"
	}
	return string(payload)
}

// Decompose extracts the structured breakdown of the question. The fallback
// is an empty decomposition carrying the raw query as its summary, which
// downstream stages treat as "no structure recovered".
func (a agents) Decompose(ctx context.Context, query string, tables []TableInfo) (Decomposition, error) {
	prompt := `Decompose the user's analytical question into structured parts. Respond with a JSON object with these keys (arrays may be empty):
entities (objects with entity_name, description), metrics (objects with metric_name, description), time_dimensions, spatial_dimensions, relationships, logical_calculations (objects with logical_operation, operands, description), set_theory_relations, relational_algebra, graph_theory_relations, logical_reasoning, semantic_network, mathematical_relations, analysis_summary.`
	if len(tables) > 0 {
		prompt += "\nCross-check entity and metric names against these candidate tables:\n" + tablesJSON(tables)
	}
	return llm.GenerateJSON(ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, func() Decomposition {
		return Decomposition{AnalysisSummary: query}
	})
}

// RecognizeIntent maps the decomposition onto the filtered tables.
func (a agents) RecognizeIntent(ctx context.Context, query string, decomposition Decomposition, tables []TableInfo) (Intent, error) {
	decompositionJSON, _ := json.Marshal(decomposition)
	prompt := fmt.Sprintf(`Given a decomposed analytical question and the candidate tables, identify the query intent. Respond with a JSON object:
{"primary_entities": [...], "entity_attributes": [...], "entity_metrics": [...], "time_dimensions": [...], "relationships": [...], "relevant_tables": ["table names drawn from the candidates"], "relevant_columns": [{"table_name": "...", "col_name": "...", "description": "..."}], "search_strategy": "..."}

Decomposition:
%s

Candidate tables:
%s`, decompositionJSON, tablesJSON(tables))

	fallback := func() Intent {
		// Default to every candidate table so generation can still proceed.
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = t.TableName
		}
		return Intent{RelevantTables: names}
	}
	return llm.GenerateJSON(ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, fallback)
}

// Generate produces the initial SQL along with the columns it used.
func (a agents) Generate(ctx context.Context, query, dialect string, intent Intent, tables []TableInfo) (GenerationResult, error) {
	intentJSON, _ := json.Marshal(intent)
	prompt := fmt.Sprintf(`Write a single read-only %s statement answering the user's question. Use only the tables and columns listed. Respond with a JSON object:
{"sql": "...", "explanation": "...", "columns_used": [{"table_name": "...", "col_name": "...", "col_description": "..."}]}

Intent:
%s

Tables:
%s`, dialect, intentJSON, tablesJSON(tables))

	result, err := llm.GenerateJSON[GenerationResult](ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, nil)
	if err != nil {
		return GenerationResult{}, err
	}
	if strings.TrimSpace(result.SQL) == "" {
		return GenerationResult{}, fmt.Errorf("sqlflow: generator returned empty SQL")
	}
	return result, nil
}

// Correct rewrites a failing statement given its errors. There is no
// fallback here: a corrector that cannot answer ends the loop.
func (a agents) Correct(ctx context.Context, current, query, dialect string, errs, warnings []string, execErr string, tables []TableInfo) (CorrectionResult, error) {
	prompt := fmt.Sprintf(`The following %s statement failed. Fix it. Respond with a JSON object {"corrected_sql": "...", "corrections": ["what changed"]}. If nothing should change, return the statement unchanged.

Statement:
%s

Validation errors: %s
Warnings: %s
Execution error: %s

Tables:
%s`, dialect, current, strings.Join(errs, "; "), strings.Join(warnings, "; "), execErr, tablesJSON(tables))

	return llm.GenerateJSON[CorrectionResult](ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, nil)
}

// Optimize proposes a faster equivalent statement. The fallback keeps the
// current SQL untouched, which the flow reads as "nothing to optimize".
func (a agents) Optimize(ctx context.Context, current, query, dialect string, execution ExecutionResult, tables []TableInfo) (OptimizationResult, error) {
	executionJSON, _ := json.Marshal(execution)
	prompt := fmt.Sprintf(`Suggest an optimized, semantically identical version of this %s statement if one exists. Respond with a JSON object {"optimized_sql": "...", "optimizations": [...], "performance_improvements": "..."}. Return the statement unchanged if no optimization applies.

Statement:
%s

Execution result summary:
%s

Tables:
%s`, dialect, current, executionJSON, tablesJSON(tables))

	return llm.GenerateJSON(ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, func() OptimizationResult {
		return OptimizationResult{OptimizedSQL: current}
	})
}

// Verify compares the execution result against the intent. The fallback is
// a satisfied verdict: verification is advisory and must not fail a run that
// already executed.
func (a agents) Verify(ctx context.Context, sqlText, query string, execution ExecutionResult, intent Intent) (VerificationResult, error) {
	executionJSON, _ := json.Marshal(execution)
	intentJSON, _ := json.Marshal(intent)
	prompt := fmt.Sprintf(`Judge whether the execution result answers the user's question. Respond with a JSON object {"is_satisfied": bool, "satisfaction_score": 0.0-1.0, "verification_reason": "...", "missing_info": [...], "suggestions": [...]}.

SQL:
%s

Execution result:
%s

Recognised intent:
%s`, sqlText, executionJSON, intentJSON)

	return llm.GenerateJSON(ctx, a.chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, func() VerificationResult {
		return VerificationResult{IsSatisfied: true, SatisfactionScore: 1.0}
	})
}
