package tablefile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/praxisworks/tabula/llm"
)

// interpretationSections is the required structure of the stage-7 report.
var interpretationSections = []string{
	"## Executive Summary",
	"## Detailed Analysis",
	"## Key Findings",
	"## Statistical Summary",
	"## Recommendations",
	"## Conclusion",
}

// Interpret is stage 7: a Markdown report over everything computed so far.
// Without a model (or on failure) a skeleton report is assembled from the
// indicators so the stream still carries an interpretation.
func Interpret(ctx context.Context, chat llm.ChatModel, result *Result, query string) string {
	if chat != nil {
		resultJSON, _ := json.Marshal(result)
		prompt := fmt.Sprintf(`Write a Markdown analysis report with exactly these sections: Executive Summary, Detailed Analysis, Key Findings, Statistical Summary, Recommendations, Conclusion. Base it only on the evidence below.

Evidence:
%s`, resultJSON)
		text, err := chat.Generate(ctx, []llm.Message{
			llm.System(prompt),
			llm.User(query),
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return fallbackReport(result)
}

func fallbackReport(result *Result) string {
	var b strings.Builder
	for _, section := range interpretationSections {
		b.WriteString(section)
		b.WriteString("\n\n")
		switch section {
		case "## Executive Summary":
			evidence := false
			for _, sheet := range result.Statistics {
				if !sheet.Indicators.Empty() {
					evidence = true
					break
				}
			}
			if !evidence {
				b.WriteString("No statistics could be computed from the provided data; there is no evidence to interpret.\n\n")
			} else {
				fmt.Fprintf(&b, "Analysed %d sheet(s) with the planned statistical techniques.\n\n", len(result.Statistics))
			}
		case "## Statistical Summary":
			for _, sheet := range result.Statistics {
				for name, d := range sheet.Indicators.Descriptive {
					fmt.Fprintf(&b, "- %s/%s: mean %.4g, std %.4g, range [%.4g, %.4g]\n",
						sheet.Sheet, name, d.Mean, d.Std, d.Min, d.Max)
				}
			}
			b.WriteString("\n")
		case "## Key Findings":
			if result.Correlation != nil {
				for _, pair := range result.Correlation.Strong {
					fmt.Fprintf(&b, "- %s and %s are strongly correlated (r = %.2f)\n",
						pair.ColumnA, pair.ColumnB, pair.Coefficient)
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
