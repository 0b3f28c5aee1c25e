package automation

import (
	"encoding/json"
	"fmt"
)

// ShapeValue converts a rows x columns grid into the wire form of a range
// value: a scalar for one cell, a flat list for one row or one column, and a
// list of rows otherwise.
func ShapeValue(grid [][]any) any {
	rows := len(grid)
	if rows == 0 {
		return nil
	}
	cols := len(grid[0])
	switch {
	case rows == 1 && cols == 1:
		return grid[0][0]
	case rows == 1:
		out := make([]any, cols)
		copy(out, grid[0])
		return out
	case cols == 1:
		out := make([]any, rows)
		for i := range grid {
			out[i] = grid[i][0]
		}
		return out
	}
	out := make([]any, rows)
	for i := range grid {
		row := make([]any, cols)
		copy(row, grid[i])
		out[i] = row
	}
	return out
}

// ToGrid converts a wire value into a grid to be written at target.
//
// A scalar fills every cell of target. A flat list is written across one row,
// or down one column when target is a single multi-row column. A list of
// lists is written row by row and must be rectangular. The returned grid may
// be larger than target; writes expand from the top-left cell.
func ToGrid(value any, target Address) ([][]any, error) {
	switch v := value.(type) {
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty list: %w", ErrRange)
		}
		if _, nested := v[0].([]any); nested {
			return rowsGrid(v)
		}
		cells := make([]any, len(v))
		for i, item := range v {
			c, err := CellValue(item)
			if err != nil {
				return nil, err
			}
			cells[i] = c
		}
		if target.Columns == 1 && target.Rows > 1 {
			grid := make([][]any, len(cells))
			for i, c := range cells {
				grid[i] = []any{c}
			}
			return grid, nil
		}
		return [][]any{cells}, nil
	default:
		c, err := CellValue(v)
		if err != nil {
			return nil, err
		}
		grid := make([][]any, target.Rows)
		for i := range grid {
			row := make([]any, target.Columns)
			for j := range row {
				row[j] = c
			}
			grid[i] = row
		}
		return grid, nil
	}
}

func rowsGrid(rows []any) ([][]any, error) {
	grid := make([][]any, len(rows))
	width := -1
	for i, r := range rows {
		row, ok := r.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d is not a list: %w", i, ErrRange)
		}
		if width == -1 {
			width = len(row)
		}
		if len(row) != width || width == 0 {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", i, len(row), width, ErrRange)
		}
		cells := make([]any, width)
		for j, item := range row {
			c, err := CellValue(item)
			if err != nil {
				return nil, err
			}
			cells[j] = c
		}
		grid[i] = cells
	}
	return grid, nil
}

// CellValue normalizes a decoded JSON scalar into a cell value: nil, bool,
// float64 or string. Containers are rejected with ErrRange.
func CellValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", x, ErrRange)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unsupported cell value %T: %w", v, ErrRange)
}
