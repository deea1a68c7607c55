package tablefile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	csv := "name,age,city\nalice,30,berlin\nbob,25,paris\n"
	frame, err := ReadCSV("people", strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "city"}, frame.Columns)
	assert.Equal(t, 2, frame.Rows())
	assert.Equal(t, []string{"alice", "bob"}, frame.Column("name"))
	assert.Equal(t, []float64{30, 25}, frame.NumericColumn("age"))
}

func TestReadCSV_BlankHeader(t *testing.T) {
	frame, err := ReadCSV("s", strings.NewReader(",x\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"column_1", "x"}, frame.Columns)
}

func columnByName(t *testing.T, analysis SheetTypeAnalysis, name string) ColumnAnalysis {
	t.Helper()
	for _, col := range analysis.Columns {
		if col.Name == name {
			return col
		}
	}
	t.Fatalf("column %q not found", name)
	return ColumnAnalysis{}
}

func TestAnalyzeTypes(t *testing.T) {
	var rows [][]string
	for i := 0; i < 100; i++ {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i),           // integer, unique
			fmt.Sprintf("%.2f", float64(i)*1.5), // float
			fmt.Sprintf("2023-01-%02d", i%28+1), // datetime
			[]string{"true", "false"}[i%2], // boolean
			[]string{"a", "b", "c"}[i%3],   // categorical_text (3/100 unique)
			fmt.Sprintf("%d", i%5),         // categorical_numeric (5/100 unique)
			fmt.Sprintf("free text value %d with words", i), // text
		})
	}
	frame := NewFrame("s", []string{"id", "price", "day", "flag", "region", "tier", "note"}, rows)
	analyses := AnalyzeTypes(Workbook{Sheets: []Frame{frame}})
	require.Len(t, analyses, 1)
	a := analyses[0]

	assert.Equal(t, TypeInteger, columnByName(t, a, "id").Type)
	assert.Equal(t, TypeFloat, columnByName(t, a, "price").Type)
	assert.Equal(t, TypeDatetime, columnByName(t, a, "day").Type)
	assert.Equal(t, TypeBoolean, columnByName(t, a, "flag").Type)
	assert.Equal(t, TypeCategoricalText, columnByName(t, a, "region").Type)
	assert.Equal(t, TypeCategoricalNumeric, columnByName(t, a, "tier").Type)
	assert.Equal(t, TypeText, columnByName(t, a, "note").Type)

	price := columnByName(t, a, "price")
	require.NotNil(t, price.Numeric)
	assert.InDelta(t, 0, price.Numeric.Min, 1e-9)

	day := columnByName(t, a, "day")
	require.NotNil(t, day.Datetime)

	note := columnByName(t, a, "note")
	require.NotNil(t, note.Text)
	assert.Positive(t, note.Text.AvgLength)
}

func TestAnalyzeTypes_NullsAndUnknown(t *testing.T) {
	frame := NewFrame("s", []string{"empty", "mixed"}, [][]string{
		{"", "1"},
		{"", "x"},
		{"", ""},
		{"", "2"},
	})
	analyses := AnalyzeTypes(Workbook{Sheets: []Frame{frame}})
	a := analyses[0]

	empty := columnByName(t, a, "empty")
	assert.Equal(t, TypeUnknown, empty.Type)
	assert.Equal(t, 4, empty.NullCount)
	assert.InDelta(t, 100, empty.NullPercentage, 1e-9)

	mixed := columnByName(t, a, "mixed")
	assert.Equal(t, 1, mixed.NullCount)
	assert.Equal(t, TypeText, mixed.Type)
}

func TestClassify_UniquenessRatioBoundary(t *testing.T) {
	// 5 distinct values over 100 rows: ratio 0.05 < 0.1 -> categorical.
	var many []string
	for i := 0; i < 100; i++ {
		many = append(many, []string{"a", "b", "c", "d", "e"}[i%5])
	}
	assert.Equal(t, TypeCategoricalText, classify(many, 0.05))

	// The same cells with a uniqueness ratio of 0.5: plain text.
	assert.Equal(t, TypeText, classify(many, 0.5))
}
