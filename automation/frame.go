package automation

import "fmt"

// FrameType tags the serialized table shape.
const FrameType = "dataframe"

// Frame is the wire form of tabular data: row labels, column labels and a
// rows x columns body.
type Frame struct {
	Type    string  `json:"type"`
	Index   []any   `json:"index"`
	Columns []any   `json:"columns"`
	Data    [][]any `json:"data"`
}

// FrameFromGrid interprets grid as a table. With header the first row holds
// column labels; with index the first column holds row labels. Missing labels
// are replaced by positions.
func FrameFromGrid(grid [][]any, header, index bool) Frame {
	body := grid
	var columns []any
	if header && len(grid) > 0 {
		columns = append([]any(nil), grid[0]...)
		body = grid[1:]
	}
	if index && len(columns) > 0 {
		columns = columns[1:]
	}
	f := Frame{Type: FrameType, Index: make([]any, 0, len(body)), Data: make([][]any, 0, len(body))}
	for i, row := range body {
		if index {
			if len(row) == 0 {
				f.Index = append(f.Index, nil)
				f.Data = append(f.Data, []any{})
				continue
			}
			f.Index = append(f.Index, row[0])
			f.Data = append(f.Data, append([]any(nil), row[1:]...))
			continue
		}
		f.Index = append(f.Index, i)
		f.Data = append(f.Data, append([]any(nil), row...))
	}
	if columns == nil {
		width := 0
		if len(f.Data) > 0 {
			width = len(f.Data[0])
		}
		columns = make([]any, width)
		for i := range columns {
			columns[i] = i
		}
	}
	f.Columns = columns
	return f
}

// Grid lays the frame out as cells, the inverse of FrameFromGrid.
func (f Frame) Grid(header, index bool) ([][]any, error) {
	width := len(f.Columns)
	if width == 0 && len(f.Data) > 0 {
		width = len(f.Data[0])
	}
	if index && len(f.Index) != 0 && len(f.Index) != len(f.Data) {
		return nil, fmt.Errorf("index has %d labels for %d rows: %w", len(f.Index), len(f.Data), ErrRange)
	}
	var grid [][]any
	if header {
		row := make([]any, 0, width+1)
		if index {
			row = append(row, nil)
		}
		for _, c := range f.Columns {
			cell, err := CellValue(c)
			if err != nil {
				return nil, err
			}
			row = append(row, cell)
		}
		grid = append(grid, row)
	}
	for i, data := range f.Data {
		if len(data) != width {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", i, len(data), width, ErrRange)
		}
		row := make([]any, 0, width+1)
		if index {
			var label any = float64(i)
			if len(f.Index) > 0 {
				label = f.Index[i]
			}
			cell, err := CellValue(label)
			if err != nil {
				return nil, err
			}
			row = append(row, cell)
		}
		for _, v := range data {
			cell, err := CellValue(v)
			if err != nil {
				return nil, err
			}
			row = append(row, cell)
		}
		grid = append(grid, row)
	}
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("empty frame: %w", ErrRange)
	}
	return grid, nil
}
