package tablefile

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/praxisworks/tabula/tablefile/stats"
)

const (
	// strongCorrelation is the |r| threshold a pair must clear to survive
	// indicator simplification.
	strongCorrelation = 0.7
	// maxStrongPairs bounds how many correlation pairs the indicators keep.
	maxStrongPairs = 10
	// indicatorSizeCap is the serialized-size ceiling; indicators above it
	// are pruned to the top columns.
	indicatorSizeCap = 50 * 1024
	// pruneToColumns is how many columns survive a size-cap prune.
	pruneToColumns = 10
	// maxChartsPerSheet bounds stage-4 chart synthesis.
	maxChartsPerSheet = 3
)

// CalculateStatistics executes the plan over the workbook. Results carry
// only simplified indicators; full matrices and raw frames never propagate.
func CalculateStatistics(wb Workbook, types []SheetTypeAnalysis, plan Plan) []SheetStatistics {
	byName := make(map[string]Frame, len(wb.Sheets))
	for _, sheet := range wb.Sheets {
		byName[sheet.Name] = sheet
	}
	typesBySheet := make(map[string]SheetTypeAnalysis, len(types))
	for _, t := range types {
		typesBySheet[t.Sheet] = t
	}

	var out []SheetStatistics
	for _, sheetPlan := range plan.Sheets {
		frame, ok := byName[sheetPlan.Sheet]
		if !ok {
			continue
		}
		result := calculateSheet(frame, typesBySheet[sheetPlan.Sheet], sheetPlan.Techniques)
		result.Charts = sheetCharts(sheetPlan.Sheet, result.Indicators)
		out = append(out, result)
	}
	return out
}

func calculateSheet(frame Frame, types SheetTypeAnalysis, techniques []Technique) SheetStatistics {
	result := SheetStatistics{Sheet: frame.Name}

	var numericCols, categoricalCols, datetimeCols []string
	for _, col := range types.Columns {
		switch {
		case col.Type.IsNumeric():
			numericCols = append(numericCols, col.Name)
		case col.Type.IsCategorical():
			categoricalCols = append(categoricalCols, col.Name)
		case col.Type == TypeDatetime:
			datetimeCols = append(datetimeCols, col.Name)
		}
	}

	numeric := map[string][]float64{}
	for _, name := range numericCols {
		if values := frame.NumericColumn(name); len(values) > 0 {
			numeric[name] = values
		}
	}

	for _, tech := range techniques {
		switch tech {
		case TechDescriptive:
			if len(numeric) == 0 {
				continue
			}
			result.Indicators.Descriptive = map[string]stats.Descriptive{}
			for name, values := range numeric {
				result.Indicators.Descriptive[name] = stats.Describe(values)
			}

		case TechDistribution:
			if len(numeric) == 0 {
				continue
			}
			result.Indicators.Distribution = map[string]stats.Distribution{}
			for name, values := range numeric {
				result.Indicators.Distribution[name] = stats.Distribute(values)
			}

		case TechCorrelation:
			if len(numeric) < 2 {
				continue
			}
			names := make([]string, 0, len(numeric))
			for name := range numeric {
				names = append(names, name)
			}
			sort.Strings(names)
			// Align lengths: correlation needs pairwise-equal lengths, so
			// truncate to the shortest.
			shortest := -1
			for _, name := range names {
				if shortest < 0 || len(numeric[name]) < shortest {
					shortest = len(numeric[name])
				}
			}
			aligned := map[string][]float64{}
			for _, name := range names {
				aligned[name] = numeric[name][:shortest]
			}
			pairs := stats.Correlate(names, aligned)
			// Only the strong pairs survive; the full matrix is dropped.
			result.Indicators.StrongPairs = stats.StrongPairs(pairs, strongCorrelation, maxStrongPairs)

		case TechFrequency:
			if len(categoricalCols) == 0 {
				continue
			}
			result.Indicators.Frequency = map[string]stats.Frequency{}
			for _, name := range categoricalCols {
				if cells := frame.Column(name); len(cells) > 0 {
					if f := stats.Frequencies(cells); f.TotalCount > 0 {
						result.Indicators.Frequency[name] = f
					}
				}
			}
			if len(result.Indicators.Frequency) == 0 {
				result.Indicators.Frequency = nil
			}

		case TechGrouped:
			if len(categoricalCols) == 0 || len(numericCols) == 0 {
				continue
			}
			group := categoricalCols[0]
			result.Indicators.Grouped = map[string][]stats.GroupSummary{}
			for _, name := range numericCols {
				values := alignedNumeric(frame, name)
				if summary := stats.Grouped(frame.Column(group), values); len(summary) > 0 {
					result.Indicators.Grouped[group+"/"+name] = summary
				}
			}
			if len(result.Indicators.Grouped) == 0 {
				result.Indicators.Grouped = nil
			}

		case TechTrend, TechTimeSeries:
			if len(datetimeCols) == 0 || len(numeric) == 0 {
				continue
			}
			if result.Indicators.Trend == nil {
				result.Indicators.Trend = map[string]stats.Trend{}
			}
			for name, values := range numeric {
				result.Indicators.Trend[name] = stats.FitTrend(values)
			}

		case TechJoint:
			if len(categoricalCols) < 2 {
				continue
			}
			result.Indicators.Joint = stats.Joint(
				frame.Column(categoricalCols[0]),
				frame.Column(categoricalCols[1]),
				10,
			)
		}
		result.Calculations = append(result.Calculations, tech)
	}

	result.Indicators = capIndicators(result.Indicators)
	return result
}

// alignedNumeric parses a column positionally, substituting zero for
// unparseable cells so group/value rows stay aligned.
func alignedNumeric(frame Frame, name string) []float64 {
	cells := frame.Column(name)
	out := make([]float64, len(cells))
	for i, cell := range cells {
		out[i] = parseFloatOrZero(cell)
	}
	return out
}

func parseFloatOrZero(cell string) float64 {
	if cell == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// capIndicators enforces the serialized-size ceiling: when the indicators
// exceed 50 KB, only the top pruneToColumns columns (by descriptive count,
// then name) are kept in each per-column map.
func capIndicators(ind SheetIndicators) SheetIndicators {
	payload, err := json.Marshal(ind)
	if err != nil || len(payload) <= indicatorSizeCap {
		return ind
	}

	keep := topColumns(ind, pruneToColumns)
	ind.Descriptive = filterKeys(ind.Descriptive, keep)
	ind.Distribution = filterKeys(ind.Distribution, keep)
	ind.Frequency = filterKeys(ind.Frequency, keep)
	ind.Trend = filterKeys(ind.Trend, keep)
	return ind
}

func topColumns(ind SheetIndicators, n int) map[string]bool {
	names := make([]string, 0, len(ind.Descriptive))
	for name := range ind.Descriptive {
		names = append(names, name)
	}
	for name := range ind.Frequency {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := ind.Descriptive[names[i]].Count, ind.Descriptive[names[j]].Count
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
	}
	return keep
}

func filterKeys[V any](m map[string]V, keep map[string]bool) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V)
	for k, v := range m {
		if keep[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
