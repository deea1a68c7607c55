package tablefile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/praxisworks/tabula/tablefile/stats"
)

// maxCharts bounds the stage-8 output.
const maxCharts = 5

// optionPrefix is required on every emitted chart payload; clients split on
// it before parsing the JSON.
const optionPrefix = "option="

// encodeOption serialises an ECharts option map into the wire payload.
func encodeOption(option map[string]any) string {
	payload, err := json.Marshal(option)
	if err != nil {
		return optionPrefix + "{}"
	}
	return optionPrefix + string(payload)
}

func titleOpts(title string) opts.Title {
	return opts.Title{Title: title, Left: "center"}
}

// barChart builds a category bar chart option.
func barChart(title string, categories []string, values []float64) Chart {
	option := map[string]any{
		"title":   titleOpts(title),
		"tooltip": opts.Tooltip{Show: true},
		"xAxis":   map[string]any{"type": "category", "data": categories},
		"yAxis":   map[string]any{"type": "value"},
		"series": []map[string]any{
			{"type": "bar", "data": values},
		},
	}
	return Chart{Title: title, Kind: "bar", Option: encodeOption(option)}
}

// pieChart builds a pie chart option from value counts.
func pieChart(title string, counts []stats.ValueCount) Chart {
	data := make([]opts.PieData, len(counts))
	for i, c := range counts {
		data[i] = opts.PieData{Name: c.Value, Value: c.Count}
	}
	option := map[string]any{
		"title":   titleOpts(title),
		"tooltip": opts.Tooltip{Show: true},
		"series": []map[string]any{
			{"type": "pie", "radius": "60%", "data": data},
		},
	}
	return Chart{Title: title, Kind: "pie", Option: encodeOption(option)}
}

// heatmapChart builds a correlation heatmap over the strong pairs.
func heatmapChart(title string, pairs []stats.CorrelationPair) Chart {
	axis := map[string]int{}
	var names []string
	for _, p := range pairs {
		for _, name := range []string{p.ColumnA, p.ColumnB} {
			if _, ok := axis[name]; !ok {
				axis[name] = len(names)
				names = append(names, name)
			}
		}
	}
	var data []opts.HeatMapData
	for _, p := range pairs {
		data = append(data,
			opts.HeatMapData{Value: [3]any{axis[p.ColumnA], axis[p.ColumnB], p.Coefficient}},
			opts.HeatMapData{Value: [3]any{axis[p.ColumnB], axis[p.ColumnA], p.Coefficient}},
		)
	}
	option := map[string]any{
		"title":   titleOpts(title),
		"tooltip": opts.Tooltip{Show: true},
		"xAxis":   map[string]any{"type": "category", "data": names},
		"yAxis":   map[string]any{"type": "category", "data": names},
		"visualMap": opts.VisualMap{Min: -1, Max: 1, Calculable: true},
		"series": []map[string]any{
			{"type": "heatmap", "data": data},
		},
	}
	return Chart{Title: title, Kind: "heatmap", Option: encodeOption(option)}
}

// scatterChart builds a scatter option over one correlated column pair.
func scatterChart(title string, pair stats.CorrelationPair) Chart {
	option := map[string]any{
		"title":   titleOpts(title),
		"tooltip": opts.Tooltip{Show: true},
		"xAxis":   map[string]any{"type": "value", "name": pair.ColumnA},
		"yAxis":   map[string]any{"type": "value", "name": pair.ColumnB},
		"series": []map[string]any{
			{"type": "scatter", "datasetHint": fmt.Sprintf("%s vs %s", pair.ColumnA, pair.ColumnB)},
		},
	}
	return Chart{Title: title, Kind: "scatter", Option: encodeOption(option)}
}

// boxChart builds a box-style summary bar over quartiles per column.
func boxChart(title string, descriptive map[string]stats.Descriptive) Chart {
	names := sortedKeys(descriptive)
	var data [][]float64
	for _, name := range names {
		d := descriptive[name]
		data = append(data, []float64{d.Min, d.Q1, d.Median, d.Q3, d.Max})
	}
	option := map[string]any{
		"title":   titleOpts(title),
		"tooltip": opts.Tooltip{Show: true},
		"xAxis":   map[string]any{"type": "category", "data": names},
		"yAxis":   map[string]any{"type": "value"},
		"series": []map[string]any{
			{"type": "boxplot", "data": data},
		},
	}
	return Chart{Title: title, Kind: "boxplot", Option: encodeOption(option)}
}

// sheetCharts synthesises up to three charts for one sheet from its
// indicators: a bar of the column means, a correlation heatmap, and a
// frequency bar or pie. Charts are built from indicators, never raw frames.
func sheetCharts(sheet string, ind SheetIndicators) []Chart {
	var charts []Chart

	if len(ind.Descriptive) > 0 {
		names := sortedKeys(ind.Descriptive)
		means := make([]float64, len(names))
		for i, name := range names {
			means[i] = ind.Descriptive[name].Mean
		}
		charts = append(charts, barChart(sheet+" column means", names, means))
	}
	if len(ind.StrongPairs) > 0 {
		charts = append(charts, heatmapChart(sheet+" strong correlations", ind.StrongPairs))
	}
	if len(ind.Frequency) > 0 {
		names := sortedKeys(ind.Frequency)
		first := ind.Frequency[names[0]]
		if len(first.Top) > 0 {
			if first.UniqueCount <= 6 {
				charts = append(charts, pieChart(sheet+" "+names[0]+" distribution", first.Top))
			} else {
				categories := make([]string, len(first.Top))
				values := make([]float64, len(first.Top))
				for i, vc := range first.Top {
					categories[i] = vc.Value
					values[i] = float64(vc.Count)
				}
				charts = append(charts, barChart(sheet+" "+names[0]+" frequency", categories, values))
			}
		}
	}

	if len(charts) > maxChartsPerSheet {
		charts = charts[:maxChartsPerSheet]
	}
	return charts
}

// semanticChart realises one stage-6 recommendation as a chart. When the
// target columns have descriptive indicators, the chart plots their means;
// otherwise the recommendation still yields a titled skeleton of the
// expected kind so the suggestion reaches the client.
func semanticChart(rec RecommendedAnalysis, statistics []SheetStatistics) Chart {
	title := rec.AnalysisType
	if title == "" {
		title = "recommended analysis"
	}
	if len(rec.TargetColumns) > 0 {
		title += " - " + strings.Join(rec.TargetColumns, ", ")
	}
	kind := rec.ExpectedChart
	if kind == "" {
		kind = "bar"
	}

	var names []string
	var means []float64
	for _, sheet := range statistics {
		for _, col := range rec.TargetColumns {
			if d, found := sheet.Indicators.Descriptive[col]; found {
				names = append(names, col)
				means = append(means, d.Mean)
			}
		}
	}
	if len(names) > 0 && kind == "bar" {
		return barChart(title, names, means)
	}

	option := map[string]any{
		"title":   titleOpts(title),
		"tooltip": opts.Tooltip{Show: true},
		"series": []map[string]any{
			{"type": kind},
		},
	}
	return Chart{Title: title, Kind: kind, Option: encodeOption(option)}
}

// GenerateCharts is stage 8: merge stage-4 per-sheet charts, stage-5
// recommendations, stage-6 recommendations, and the default descriptive-bar
// + correlation-heatmap set; deduplicate by title; cap at maxCharts. An
// empty result means the pipeline had no valid data to draw.
func GenerateCharts(statistics []SheetStatistics, correlation *CorrelationAnalysis, semantics *SemanticAnalysis) []Chart {
	var merged []Chart
	for _, sheet := range statistics {
		merged = append(merged, sheet.Charts...)
	}
	if correlation != nil {
		merged = append(merged, correlation.Recommendations...)
	}
	if semantics != nil {
		for _, rec := range semantics.RecommendedAnalyses {
			merged = append(merged, semanticChart(rec, statistics))
		}
	}

	// Default set, derived again from indicators so it survives sheets that
	// skipped chart synthesis.
	for _, sheet := range statistics {
		if len(sheet.Indicators.Descriptive) > 0 {
			names := sortedKeys(sheet.Indicators.Descriptive)
			means := make([]float64, len(names))
			for i, name := range names {
				means[i] = sheet.Indicators.Descriptive[name].Mean
			}
			merged = append(merged, barChart(sheet.Sheet+" column means", names, means))
		}
		if len(sheet.Indicators.StrongPairs) > 0 {
			merged = append(merged, heatmapChart(sheet.Sheet+" strong correlations", sheet.Indicators.StrongPairs))
		}
	}

	seen := map[string]bool{}
	var out []Chart
	for _, chart := range merged {
		if chart.Title == "" || seen[chart.Title] {
			continue
		}
		seen[chart.Title] = true
		out = append(out, chart)
		if len(out) == maxCharts {
			break
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
