package tablefile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/tablefile/stats"
)

func salesWorkbook(t *testing.T) (Workbook, []SheetTypeAnalysis) {
	t.Helper()
	var rows [][]string
	for i := 0; i < 60; i++ {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),                    // units: 1..60
			fmt.Sprintf("%d", (i+1)*2),                // revenue: perfectly correlated
			[]string{"east", "west", "north"}[i%3],    // region
			fmt.Sprintf("2023-%02d-01", i%12+1),       // month
		})
	}
	frame := NewFrame("sales", []string{"units", "revenue", "region", "month"}, rows)
	wb := Workbook{Sheets: []Frame{frame}}
	return wb, AnalyzeTypes(wb)
}

func TestDefaultPlan(t *testing.T) {
	_, types := salesWorkbook(t)
	plan := DefaultPlan(types)
	require.Len(t, plan.Sheets, 1)

	techniques := plan.Sheets[0].Techniques
	assert.Contains(t, techniques, TechDescriptive)
	assert.Contains(t, techniques, TechCorrelation)
	assert.Contains(t, techniques, TechFrequency)
	assert.Contains(t, techniques, TechGrouped)
	assert.Contains(t, techniques, TechTrend)
	assert.NotContains(t, techniques, TechJoint, "a single categorical column joins nothing")
}

func TestCalculateStatistics(t *testing.T) {
	wb, types := salesWorkbook(t)
	plan := DefaultPlan(types)

	results := CalculateStatistics(wb, types, plan)
	require.Len(t, results, 1)
	sheet := results[0]

	assert.NotEmpty(t, sheet.Calculations)

	// Descriptive over both numeric columns.
	require.Contains(t, sheet.Indicators.Descriptive, "units")
	assert.InDelta(t, 30.5, sheet.Indicators.Descriptive["units"].Mean, 1e-9)

	// units and revenue are perfectly correlated: the pair survives the
	// |r| > 0.7 simplification.
	require.Len(t, sheet.Indicators.StrongPairs, 1)
	assert.InDelta(t, 1.0, sheet.Indicators.StrongPairs[0].Coefficient, 1e-9)

	// Frequency keeps only the simplified summary.
	require.Contains(t, sheet.Indicators.Frequency, "region")
	assert.Equal(t, 3, sheet.Indicators.Frequency["region"].UniqueCount)
	assert.Equal(t, 60, sheet.Indicators.Frequency["region"].TotalCount)

	// Grouped by the first categorical column.
	assert.NotEmpty(t, sheet.Indicators.Grouped)

	// Charts synthesised from indicators, capped at three.
	assert.NotEmpty(t, sheet.Charts)
	assert.LessOrEqual(t, len(sheet.Charts), 3)
	for _, chart := range sheet.Charts {
		assert.True(t, strings.HasPrefix(chart.Option, "option="), "chart payload carries the option= prefix")
	}
}

func TestCalculateStatistics_AllNullColumn(t *testing.T) {
	rows := [][]string{{""}, {""}, {""}}
	frame := NewFrame("empty", []string{"void"}, rows)
	wb := Workbook{Sheets: []Frame{frame}}
	types := AnalyzeTypes(wb)

	plan := DefaultPlan(types)
	results := CalculateStatistics(wb, types, plan)

	// The plan has no applicable techniques; calculations stay empty.
	if len(results) > 0 {
		assert.Empty(t, results[0].Calculations)
		assert.True(t, results[0].Indicators.Empty())
		assert.Empty(t, results[0].Charts)
	}
}

func TestCapIndicators_PrunesWideSheets(t *testing.T) {
	// Hundreds of columns of descriptive stats overflow 50 KB.
	ind := SheetIndicators{Descriptive: wideDescriptive(400)}
	capped := capIndicators(ind)
	assert.LessOrEqual(t, len(capped.Descriptive), pruneToColumns)
}

func TestGenerateCharts_DedupAndCap(t *testing.T) {
	statistics := []SheetStatistics{
		{
			Sheet: "s1",
			Charts: []Chart{
				{Title: "s1 column means", Kind: "bar", Option: "option={}"},
				{Title: "s1 column means", Kind: "bar", Option: "option={}"}, // duplicate
				{Title: "extra 1", Kind: "bar", Option: "option={}"},
				{Title: "extra 2", Kind: "bar", Option: "option={}"},
				{Title: "extra 3", Kind: "bar", Option: "option={}"},
				{Title: "extra 4", Kind: "bar", Option: "option={}"},
			},
		},
	}
	charts := GenerateCharts(statistics, nil, nil)
	assert.LessOrEqual(t, len(charts), 5)

	seen := map[string]int{}
	for _, c := range charts {
		seen[c.Title]++
	}
	for title, n := range seen {
		assert.Equal(t, 1, n, "title %q deduplicated", title)
	}
}

func TestGenerateCharts_SemanticRecommendations(t *testing.T) {
	statistics := []SheetStatistics{
		{
			Sheet: "sales",
			Indicators: SheetIndicators{
				Descriptive: map[string]stats.Descriptive{
					"units":   {Count: 10, Mean: 5},
					"revenue": {Count: 10, Mean: 50},
				},
			},
		},
	}
	semantics := &SemanticAnalysis{
		RecommendedAnalyses: []RecommendedAnalysis{
			{
				AnalysisType:  "revenue drivers",
				TargetColumns: []string{"units", "revenue"},
				ExpectedChart: "bar",
				Reason:        "strongly related measures",
			},
			{
				AnalysisType:  "customer mix",
				TargetColumns: []string{"region"},
				ExpectedChart: "pie",
			},
		},
	}

	charts := GenerateCharts(statistics, nil, semantics)

	titles := map[string]Chart{}
	for _, c := range charts {
		titles[c.Title] = c
	}

	driver, found := titles["revenue drivers - units, revenue"]
	require.True(t, found, "stage-6 recommendation becomes a chart, got %v", charts)
	assert.Equal(t, "bar", driver.Kind)
	assert.True(t, strings.HasPrefix(driver.Option, "option="))
	assert.Contains(t, driver.Option, "units", "targets with indicators are plotted")

	mix, found := titles["customer mix - region"]
	require.True(t, found)
	assert.Equal(t, "pie", mix.Kind, "expected chart kind carried through")
}

func TestGenerateCharts_SemanticDedupAgainstStage4(t *testing.T) {
	statistics := []SheetStatistics{
		{
			Sheet: "s1",
			Charts: []Chart{
				{Title: "distribution - amount", Kind: "bar", Option: "option={}"},
			},
		},
	}
	semantics := &SemanticAnalysis{
		RecommendedAnalyses: []RecommendedAnalysis{
			{AnalysisType: "distribution", TargetColumns: []string{"amount"}},
		},
	}

	charts := GenerateCharts(statistics, nil, semantics)

	count := 0
	for _, c := range charts {
		if c.Title == "distribution - amount" {
			count++
		}
	}
	assert.Equal(t, 1, count, "a recommendation matching an existing title deduplicates")
}

// wideDescriptive builds n descriptive entries for size-cap tests.
func wideDescriptive(n int) map[string]stats.Descriptive {
	out := make(map[string]stats.Descriptive, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("column_with_a_rather_long_name_%04d", i)] = stats.Descriptive{
			Count: i, Mean: float64(i), Median: float64(i), Std: 1.5,
			Min: 0, Max: float64(i * 2), Q1: 1, Q3: 3, Sum: float64(i * i),
		}
	}
	return out
}
