package tablefile

import (
	"strconv"
	"strings"
	"time"

	"github.com/praxisworks/tabula/tablefile/stats"
)

// categoricalRatio is the uniqueness threshold below which a column is
// treated as categorical rather than free-form.
const categoricalRatio = 0.1

// AnalyzeTypes classifies every column of every sheet and computes the
// per-type summary statistics.
func AnalyzeTypes(wb Workbook) []SheetTypeAnalysis {
	out := make([]SheetTypeAnalysis, 0, len(wb.Sheets))
	for _, sheet := range wb.Sheets {
		analysis := SheetTypeAnalysis{Sheet: sheet.Name, Rows: sheet.Rows()}
		for _, col := range sheet.Columns {
			analysis.Columns = append(analysis.Columns, analyzeColumn(sheet, col))
		}
		out = append(out, analysis)
	}
	return out
}

func analyzeColumn(sheet Frame, name string) ColumnAnalysis {
	cells := sheet.Column(name)
	total := len(cells)

	nullCount := 0
	unique := map[string]bool{}
	var nonNull []string
	for _, cell := range cells {
		if cell == "" {
			nullCount++
			continue
		}
		unique[cell] = true
		nonNull = append(nonNull, cell)
	}

	analysis := ColumnAnalysis{
		Name:        name,
		NullCount:   nullCount,
		UniqueCount: len(unique),
	}
	if total > 0 {
		analysis.NullPercentage = float64(nullCount) / float64(total) * 100
	}
	if len(nonNull) > 0 {
		analysis.UniqueRatio = float64(len(unique)) / float64(len(nonNull))
	}

	analysis.Type = classify(nonNull, analysis.UniqueRatio)

	switch {
	case analysis.Type.IsNumeric() || analysis.Type == TypeCategoricalNumeric:
		values := sheet.NumericColumn(name)
		if len(values) > 0 {
			d := stats.Describe(values)
			analysis.Numeric = &NumericStats{Min: d.Min, Max: d.Max, Mean: d.Mean, Median: d.Median, Std: d.Std}
		}
	case analysis.Type == TypeDatetime:
		times := sheet.DatetimeColumn(name)
		if len(times) > 0 {
			earliest, latest := times[0], times[0]
			for _, t := range times[1:] {
				if t.Before(earliest) {
					earliest = t
				}
				if t.After(latest) {
					latest = t
				}
			}
			analysis.Datetime = &DatetimeStats{
				Earliest: earliest.Format(time.RFC3339),
				Latest:   latest.Format(time.RFC3339),
			}
		}
	case analysis.Type == TypeText || analysis.Type == TypeCategoricalText:
		minLen, maxLen, sum := -1, 0, 0
		for _, cell := range nonNull {
			n := len([]rune(cell))
			if minLen < 0 || n < minLen {
				minLen = n
			}
			if n > maxLen {
				maxLen = n
			}
			sum += n
		}
		if len(nonNull) > 0 {
			analysis.Text = &TextStats{
				MinLength: minLen,
				MaxLength: maxLen,
				AvgLength: float64(sum) / float64(len(nonNull)),
			}
		}
	}
	return analysis
}

// classify decides a column's type from its non-null cells and uniqueness
// ratio. Numeric columns with few distinct values are categorical_numeric;
// low-cardinality text is categorical_text.
func classify(nonNull []string, uniqueRatio float64) ColumnType {
	if len(nonNull) == 0 {
		return TypeUnknown
	}

	allInt, allFloat, allBool, allDate := true, true, true, true
	for _, cell := range nonNull {
		lower := strings.ToLower(cell)
		if lower != "true" && lower != "false" && lower != "yes" && lower != "no" {
			allBool = false
		}
		normalized := strings.ReplaceAll(cell, ",", "")
		if _, err := strconv.ParseInt(normalized, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(normalized, 64); err != nil {
			allFloat = false
		}
		if _, ok := parseDate(cell); !ok {
			allDate = false
		}
		if !allInt && !allFloat && !allBool && !allDate {
			break
		}
	}

	switch {
	case allBool:
		return TypeBoolean
	case allDate:
		return TypeDatetime
	case allInt:
		if uniqueRatio < categoricalRatio {
			return TypeCategoricalNumeric
		}
		return TypeInteger
	case allFloat:
		if uniqueRatio < categoricalRatio {
			return TypeCategoricalNumeric
		}
		return TypeFloat
	case uniqueRatio < categoricalRatio:
		return TypeCategoricalText
	default:
		return TypeText
	}
}
