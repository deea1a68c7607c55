// Package tablefile is the eight-stage statistical and semantic analysis
// pipeline over CSV and workbook inputs: file reading, understanding, data
// type analysis, statistics planning and calculation, correlation and
// semantic analysis, result interpretation, and chart generation, with a
// per-step supervisor sidecar.
package tablefile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Frame is one sheet as a column-oriented table of raw cell strings.
type Frame struct {
	Name    string
	Columns []string
	cells   map[string][]string
	rows    int
}

// NewFrame builds a frame from ordered columns and row-major cells. Short
// rows are padded with empty cells.
func NewFrame(name string, columns []string, rows [][]string) Frame {
	f := Frame{Name: name, Columns: columns, cells: make(map[string][]string, len(columns)), rows: len(rows)}
	for i, col := range columns {
		values := make([]string, len(rows))
		for j, row := range rows {
			if i < len(row) {
				values[j] = strings.TrimSpace(row[i])
			}
		}
		f.cells[col] = values
	}
	return f
}

// Rows reports the number of data rows.
func (f Frame) Rows() int { return f.rows }

// Column returns the raw cells of one column, or nil if absent.
func (f Frame) Column(name string) []string {
	return f.cells[name]
}

// NumericColumn parses a column as float64, skipping blank or unparseable
// cells.
func (f Frame) NumericColumn(name string) []float64 {
	var out []float64
	for _, cell := range f.cells[name] {
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// dateLayouts are the formats the pipeline recognises as datetime cells.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006年01月02日",
}

// parseDate tries the known layouts.
func parseDate(cell string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DatetimeColumn parses a column as timestamps, skipping unparseable cells.
func (f Frame) DatetimeColumn(name string) []time.Time {
	var out []time.Time
	for _, cell := range f.cells[name] {
		if cell == "" {
			continue
		}
		if t, ok := parseDate(cell); ok {
			out = append(out, t)
		}
	}
	return out
}

// ReadCSV loads one CSV stream into a frame named after the sheet. The first
// record is the header.
func ReadCSV(name string, r io.Reader) (Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("tablefile: reading csv: %w", err)
	}
	if len(records) == 0 {
		return Frame{Name: name}, nil
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = h
	}
	return NewFrame(name, header, records[1:]), nil
}

// Workbook is an ordered set of named frames. A CSV input is a one-sheet
// workbook.
type Workbook struct {
	Sheets []Frame
}

// ReadWorkbookCSV loads a single-sheet workbook from CSV.
func ReadWorkbookCSV(name string, r io.Reader) (Workbook, error) {
	frame, err := ReadCSV(name, r)
	if err != nil {
		return Workbook{}, err
	}
	return Workbook{Sheets: []Frame{frame}}, nil
}
