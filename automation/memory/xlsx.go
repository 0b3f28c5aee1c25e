package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mnehpets/sheetrpc/automation"
)

// readXLSX loads the sheets of a workbook file. The returned sheets are not
// yet attached to a book.
func readXLSX(path, password string) ([]*sheet, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s: %w", path, automation.ErrWorkbookNotFound)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("open %s: %w", path, automation.ErrPermission)
		}
		return nil, fmt.Errorf("open %s: %v: %w", path, err, automation.ErrHost)
	}
	f, err := excelize.OpenFile(path, excelize.Options{Password: password})
	if err != nil {
		if errors.Is(err, excelize.ErrWorkbookPassword) {
			return nil, fmt.Errorf("open %s: %v: %w", path, err, automation.ErrPermission)
		}
		return nil, fmt.Errorf("open %s: %v: %w", path, err, automation.ErrHost)
	}
	defer f.Close()

	var sheets []*sheet
	for _, name := range f.GetSheetList() {
		s := &sheet{name: name, cells: make(map[cellKey]cell)}
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %v: %w", name, path, err, automation.ErrHost)
		}
		maxRow, maxCol := len(rows), 0
		for _, row := range rows {
			maxCol = max(maxCol, len(row))
		}
		// Formula cells written without a cached value are trimmed from
		// GetRows, so the recorded dimension widens the scan.
		if dim, err := f.GetSheetDimension(name); err == nil && dim != "" {
			if addr, err := automation.ParseAddress(dim); err == nil {
				maxRow = max(maxRow, addr.LastRow())
				maxCol = max(maxCol, addr.LastColumn())
			}
		}
		for i := 0; i < maxRow; i++ {
			for j := 0; j < maxCol; j++ {
				ref, err := excelize.CoordinatesToCellName(j+1, i+1)
				if err != nil {
					return nil, fmt.Errorf("cell %d,%d: %v: %w", i+1, j+1, err, automation.ErrHost)
				}
				if formula, _ := f.GetCellFormula(name, ref); formula != "" {
					s.cells[cellKey{i + 1, j + 1}] = cell{value: "=" + formula, formula: "=" + formula}
					continue
				}
				var raw string
				if i < len(rows) && j < len(rows[i]) {
					raw = rows[i][j]
				}
				if raw == "" {
					continue
				}
				typ, _ := f.GetCellType(name, ref)
				s.cells[cellKey{i + 1, j + 1}] = cell{value: fileValue(raw, typ)}
			}
		}
		sheets = append(sheets, s)
	}
	return sheets, nil
}

func fileValue(raw string, typ excelize.CellType) any {
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// writeXLSX saves the book's sheets to path. Callers hold the lock.
func (bk *book) writeXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	activeIndex := 0
	for i, s := range bk.sheets {
		if i == 0 {
			if s.name != defaultSheet {
				if err := f.SetSheetName(defaultSheet, s.name); err != nil {
					return fmt.Errorf("save %s: %v: %w", path, err, automation.ErrHost)
				}
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("save %s: %v: %w", path, err, automation.ErrHost)
		}
		if s == bk.active {
			activeIndex = i
		}
		for k, c := range s.cells {
			ref, err := excelize.CoordinatesToCellName(k.col, k.row)
			if err != nil {
				return fmt.Errorf("save %s: %v: %w", path, err, automation.ErrHost)
			}
			if c.formula != "" {
				err = f.SetCellFormula(s.name, ref, strings.TrimPrefix(c.formula, "="))
			} else {
				err = f.SetCellValue(s.name, ref, c.value)
			}
			if err != nil {
				return fmt.Errorf("save %s cell %s!%s: %v: %w", path, s.name, ref, err, automation.ErrHost)
			}
		}
	}
	f.SetActiveSheet(activeIndex)

	if err := f.SaveAs(path); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("save %s: %w", path, automation.ErrPermission)
		}
		return fmt.Errorf("save %s: %v: %w", path, err, automation.ErrHost)
	}
	return nil
}
