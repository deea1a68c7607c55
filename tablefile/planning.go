package tablefile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/praxisworks/tabula/llm"
)

// UnderstandFile asks the model what the workbook is about. The fallback is
// a skeleton naming every sheet's columns.
func UnderstandFile(ctx context.Context, chat llm.ChatModel, types []SheetTypeAnalysis, query string) FileUnderstanding {
	fallback := func() FileUnderstanding {
		u := FileUnderstanding{
			Purpose:    "tabular data analysis",
			KeyColumns: map[string][]string{},
			UserIntent: query,
		}
		for _, sheet := range types {
			for _, col := range sheet.Columns {
				u.KeyColumns[sheet.Sheet] = append(u.KeyColumns[sheet.Sheet], col.Name)
			}
		}
		return u
	}
	if chat == nil {
		return fallback()
	}

	typesJSON, _ := json.Marshal(types)
	prompt := fmt.Sprintf(`Given the sheet structure below, describe the file. Respond with a JSON object {"purpose": "...", "key_columns": {"sheet name": ["column", ...]}, "user_intent": "..."}.

Sheets:
%s`, typesJSON)

	result, err := llm.GenerateJSON(ctx, chat, []llm.Message{
		llm.System(prompt),
		llm.User(query),
	}, fallback)
	if err != nil {
		return fallback()
	}
	return result
}

// DefaultPlan is the documented fallback plan: the broadly applicable
// techniques for whatever column types each sheet actually has.
func DefaultPlan(types []SheetTypeAnalysis) Plan {
	var plan Plan
	for _, sheet := range types {
		var hasNumeric, hasCategorical, hasDatetime int
		for _, col := range sheet.Columns {
			switch {
			case col.Type.IsNumeric():
				hasNumeric++
			case col.Type.IsCategorical():
				hasCategorical++
			case col.Type == TypeDatetime:
				hasDatetime++
			}
		}

		var techniques []Technique
		if hasNumeric > 0 {
			techniques = append(techniques, TechDescriptive, TechDistribution)
		}
		if hasNumeric > 1 {
			techniques = append(techniques, TechCorrelation)
		}
		if hasCategorical > 0 {
			techniques = append(techniques, TechFrequency)
		}
		if hasCategorical > 0 && hasNumeric > 0 {
			techniques = append(techniques, TechGrouped)
		}
		if hasDatetime > 0 && hasNumeric > 0 {
			techniques = append(techniques, TechTrend, TechTimeSeries)
		}
		if hasCategorical > 1 {
			techniques = append(techniques, TechJoint)
		}
		plan.Sheets = append(plan.Sheets, SheetPlan{Sheet: sheet.Sheet, Techniques: techniques})
	}
	return plan
}

// PlanStatistics asks the model to pick techniques from the fixed menu,
// falling back to DefaultPlan.
func PlanStatistics(ctx context.Context, chat llm.ChatModel, types []SheetTypeAnalysis, understanding FileUnderstanding) Plan {
	fallback := func() Plan { return DefaultPlan(types) }
	if chat == nil {
		return fallback()
	}

	typesJSON, _ := json.Marshal(types)
	understandingJSON, _ := json.Marshal(understanding)
	prompt := fmt.Sprintf(`Choose which statistical techniques to run per sheet, from this menu only: descriptive, distribution, correlation, frequency, grouped, trend, time_series, joint. Respond with a JSON object {"sheets": [{"sheet": "...", "techniques": [...]}]}.

Sheet structure:
%s

File understanding:
%s`, typesJSON, understandingJSON)

	plan, err := llm.GenerateJSON(ctx, chat, []llm.Message{
		llm.System(prompt),
		llm.User("plan the statistics"),
	}, fallback)
	if err != nil || len(plan.Sheets) == 0 {
		return fallback()
	}
	return plan
}
