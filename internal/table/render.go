// Package table renders result rows as a fixed-width text table capped at a
// character budget, alongside an untruncated CSV copy.
package table

import (
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/data-question-platform/internal/model"
)

// MaxOutputLength is the character budget for TableText.
const MaxOutputLength = 2600

const columnSeparator = "  "

// Column describes one rendered column.
type Column struct {
	Width     int
	Title     string
	DataIndex string
	Prefix    string
	Suffix    string
}

// Result is a rendered row set.
type Result struct {
	TableText         string `json:"table_text"`
	TruncatedRowCount int    `json:"truncated_row_count"`
	CSVText           string `json:"csv_text"`
}

// Render derives columns from the first row and renders every row.
func Render(rows model.RowSet) Result {
	if len(rows) == 0 {
		return Result{}
	}

	names := rows[0].Columns
	widths := make(map[string]int, len(names))
	for _, row := range rows {
		for _, name := range names {
			v, ok := row.Get(name)
			if !ok {
				continue
			}
			if n := textLen(model.FormatValue(v)); n > widths[name] {
				widths[name] = n
			}
		}
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{
			Width:     max(widths[name], textLen(name)),
			Title:     name,
			DataIndex: name,
		}
	}

	return Build(columns, rows)
}

// Build renders rows against an explicit column layout. Rows are appended
// while the table stays within MaxOutputLength; the first row that would
// overflow ends the table.
func Build(columns []Column, rows model.RowSet) Result {
	var sb strings.Builder
	sb.WriteString(headerLine(columns))
	sb.WriteByte('\n')
	sb.WriteString(dividerLine(columns))

	total := textLen(sb.String())
	included := 0
	for ; included < len(rows); included++ {
		line := rowLine(columns, rows[included])
		n := textLen(line) + 1
		if total+n > MaxOutputLength {
			break
		}
		sb.WriteByte('\n')
		sb.WriteString(line)
		total += n
	}

	return Result{
		TableText:         sb.String(),
		TruncatedRowCount: len(rows) - included,
		CSVText:           buildCSV(columns, rows),
	}
}

func headerLine(columns []Column) string {
	cells := make([]string, len(columns))
	for i, col := range columns {
		cells[i] = padRight(col.Title, col.Width)
	}
	return strings.Join(cells, columnSeparator)
}

func dividerLine(columns []Column) string {
	if len(columns) == 0 {
		return ""
	}
	width := 0
	for _, col := range columns {
		width += col.Width
	}
	return strings.Repeat("-", width+len(columnSeparator)*(len(columns)-1))
}

func rowLine(columns []Column, row model.Row) string {
	cells := make([]string, len(columns))
	for i, col := range columns {
		cells[i] = padLeft(col.Prefix+cellValue(row, col.DataIndex)+col.Suffix, col.Width)
	}
	return strings.Join(cells, columnSeparator)
}

func cellValue(row model.Row, column string) string {
	v, ok := row.Get(column)
	if !ok {
		return ""
	}
	return model.FormatValue(v)
}

// buildCSV writes the header and every row. encoding/csv quotes a field
// when it contains a comma, quote, carriage return or newline, or when it
// starts with a space or tab.
func buildCSV(columns []Column, rows model.RowSet) string {
	records := make([][]string, 0, len(rows)+1)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Title
	}
	records = append(records, header)

	for _, row := range rows {
		record := make([]string, len(row.Columns))
		for i, name := range row.Columns {
			record[i] = model.FormatValue(row.Values[name])
		}
		records = append(records, record)
	}

	var sb strings.Builder
	// A strings.Builder never fails a write and the writer keeps the
	// default comma, so an error here is a bug.
	if err := csv.NewWriter(&sb).WriteAll(records); err != nil {
		panic(fmt.Sprintf("table: writing CSV: %v", err))
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

func padLeft(text string, width int) string {
	if n := textLen(text); n < width {
		return strings.Repeat(" ", width-n) + text
	}
	return text
}

func padRight(text string, width int) string {
	if n := textLen(text); n < width {
		return text + strings.Repeat(" ", width-n)
	}
	return text
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
