package tablefile

import (
	"fmt"
	"math"
	"sort"

	"github.com/praxisworks/tabula/tablefile/stats"
)

// maxScatterRecommendations bounds stage-5 scatter suggestions.
const maxScatterRecommendations = 3

// AnalyzeCorrelations is stage 5: aggregate the strong correlations every
// sheet found and recommend one heatmap plus up to three scatter plots over
// the strongest pairs.
func AnalyzeCorrelations(statistics []SheetStatistics) CorrelationAnalysis {
	var all []stats.CorrelationPair
	for _, sheet := range statistics {
		all = append(all, sheet.Indicators.StrongPairs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return math.Abs(all[i].Coefficient) > math.Abs(all[j].Coefficient)
	})

	analysis := CorrelationAnalysis{Strong: all}
	if len(all) == 0 {
		return analysis
	}

	analysis.Recommendations = append(analysis.Recommendations,
		heatmapChart("cross-sheet correlation heatmap", all))

	for i, pair := range all {
		if i == maxScatterRecommendations {
			break
		}
		title := fmt.Sprintf("%s vs %s scatter", pair.ColumnA, pair.ColumnB)
		analysis.Recommendations = append(analysis.Recommendations, scatterChart(title, pair))
	}
	return analysis
}
