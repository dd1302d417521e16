package ingest

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"freightplan/internal/opt"
)

// readMatrix parses a header row followed by one row per supply point. A
// leading label column is dropped when the first data cell is not numeric.
// Rows keep their own length; shape is checked by the optimizer.
func readMatrix[T any](r io.Reader, f Format, cell func(s string) (T, error)) ([][]T, error) {
	rows, err := readTable(r, f)
	if err != nil {
		return nil, err
	}
	data := rows[1:]
	skip := 0
	if len(data) > 0 && len(data[0]) > 0 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(data[0][0]), 64); err != nil && strings.TrimSpace(data[0][0]) != "" {
			skip = 1
		}
	}
	out := make([][]T, len(data))
	for i, row := range data {
		if skip > len(row) {
			return nil, &RowError{Row: i + 2, Err: errors.New("missing label")}
		}
		cells := row[skip:]
		out[i] = make([]T, len(cells))
		for j, c := range cells {
			v, err := cell(strings.TrimSpace(c))
			if err != nil {
				return nil, &RowError{Row: i + 2, Column: columnName(rows[0], j+skip), Err: err}
			}
			out[i][j] = v
		}
	}
	return out, nil
}

func columnName(hdr []string, i int) string {
	if i < len(hdr) && strings.TrimSpace(hdr[i]) != "" {
		return strings.TrimSpace(hdr[i])
	}
	return fmt.Sprintf("#%d", i+1)
}

// ReadCost reads the unit cost matrix, indexed [supply][demand].
func ReadCost(r io.Reader, f Format) ([][]float64, error) {
	return readMatrix(r, f, func(s string) (float64, error) {
		if s == "" {
			return 0, errors.New("empty cost")
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		return v, nil
	})
}

// ReadTravelTimes reads lane hours. Blank, "NA" and "null" cells are unknown.
func ReadTravelTimes(r io.Reader, f Format) ([][]opt.TravelTime, error) {
	return readMatrix(r, f, func(s string) (opt.TravelTime, error) {
		switch strings.ToLower(s) {
		case "", "na", "n/a", "null", "none":
			return opt.Unknown(), nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return opt.TravelTime{}, fmt.Errorf("not a number: %q", s)
		}
		return opt.Hours(v), nil
	})
}
