// Package ingest reads supply, demand, driver and cost tables from CSV or
// XLSX uploads.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrColumn reports a missing or unreadable column.
	ErrColumn = errors.New("ingest: column")
	// ErrFormat reports an unsupported file type.
	ErrFormat = errors.New("ingest: unsupported format")
)

// DetectFormat picks the format from a file name's extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, filename)
}

// RowError locates a bad cell. Row is 1-based and counts the header.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d, column %q: %v", e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// readTable returns every non-blank row, header first. XLSX input uses the
// first sheet.
func readTable(r io.Reader, f Format) ([][]string, error) {
	var rows [][]string
	switch f {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		all, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("ingest: read csv: %w", err)
		}
		rows = all
	case FormatXLSX:
		x, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("ingest: open xlsx: %w", err)
		}
		defer x.Close()
		sheets := x.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("ingest: workbook has no sheets")
		}
		all, err := x.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("ingest: read sheet %q: %w", sheets[0], err)
		}
		rows = all
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, f)
	}

	out := rows[:0]
	for _, row := range rows {
		blank := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ingest: empty table")
	}
	return out, nil
}

// header maps case-folded, trimmed column names to their position.
type header map[string]int

func newHeader(row []string) header {
	h := header{}
	for i, c := range row {
		h[normalize(c)] = i
	}
	return h
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (h header) require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := h[normalize(n)]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrColumn, strings.Join(missing, ", "))
	}
	return nil
}

// cell returns the trimmed value, or "" when the row is short or the column
// is absent.
func (h header) cell(row []string, name string) string {
	i, ok := h[normalize(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
