package tablefile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/praxisworks/tabula/llm"
)

// AnalyzeSemantics is stage 6: model-produced column semantics, semantic
// relationships, business patterns, and recommended analyses. The fallback
// skeleton names each column after its detected type so downstream stages
// always have something to work with.
func AnalyzeSemantics(ctx context.Context, chat llm.ChatModel, types []SheetTypeAnalysis, statistics []SheetStatistics) SemanticAnalysis {
	fallback := func() SemanticAnalysis {
		s := SemanticAnalysis{ColumnSemantics: map[string]string{}}
		for _, sheet := range types {
			for _, col := range sheet.Columns {
				s.ColumnSemantics[col.Name] = string(col.Type) + " column"
			}
		}
		return s
	}
	if chat == nil {
		return fallback()
	}

	typesJSON, _ := json.Marshal(types)
	statsJSON, _ := json.Marshal(statistics)
	prompt := fmt.Sprintf(`Interpret the meaning of this tabular data. Respond with a JSON object {"column_semantics": {"column": "meaning"}, "semantic_relationships": [...], "business_patterns": [...], "recommended_analyses": [{"analysis_type": "...", "target_columns": [...], "expected_chart": "bar|pie|scatter|heatmap", "reason": "..."}]}.

Column structure:
%s

Computed indicators:
%s`, typesJSON, statsJSON)

	result, err := llm.GenerateJSON(ctx, chat, []llm.Message{
		llm.System(prompt),
		llm.User("analyse the semantics"),
	}, fallback)
	if err != nil {
		return fallback()
	}
	return result
}
