package memory

import (
	"context"
	"fmt"

	"github.com/mnehpets/sheetrpc/automation"
)

type cellKey struct{ row, col int }

type cell struct {
	value   any
	formula string
}

type sheet struct {
	book     *book
	name     string
	cells    map[cellKey]cell
	charts   []*chart
	chartSeq int
	deleted  bool
}

func newSheet(bk *book, name string) *sheet {
	return &sheet{book: bk, name: name, cells: make(map[cellKey]cell)}
}

func (s *sheet) lock() func() {
	m := &s.book.app.b.mu
	m.Lock()
	return m.Unlock
}

func (s *sheet) check() error {
	if err := s.book.check(); err != nil {
		return err
	}
	if s.deleted {
		return fmt.Errorf("sheet %q was deleted: %w", s.name, automation.ErrSheetNotFound)
	}
	return nil
}

func (s *sheet) Name() string {
	defer s.lock()()
	return s.name
}

func (s *sheet) Book() automation.Book { return s.book }

func (s *sheet) Info(ctx context.Context) (automation.SheetInfo, error) {
	defer s.lock()()
	if err := s.check(); err != nil {
		return automation.SheetInfo{}, err
	}
	return s.info(), nil
}

func (s *sheet) info() automation.SheetInfo {
	index := 0
	for i, other := range s.book.sheets {
		if other == s {
			index = i + 1
			break
		}
	}
	return automation.SheetInfo{
		Name:      s.name,
		BookName:  s.book.name,
		Index:     index,
		UsedRange: s.usedRange().String(),
	}
}

func (s *sheet) Rename(ctx context.Context, name string) error {
	defer s.lock()()
	if err := s.check(); err != nil {
		return err
	}
	if err := s.book.validSheetName(name, s); err != nil {
		return err
	}
	s.name = name
	return nil
}

func (s *sheet) Delete(ctx context.Context) error {
	defer s.lock()()
	if err := s.check(); err != nil {
		return err
	}
	bk := s.book
	if len(bk.sheets) == 1 {
		return fmt.Errorf("cannot delete %q, a workbook must contain at least one sheet: %w", s.name, automation.ErrHost)
	}
	for i, other := range bk.sheets {
		if other == s {
			bk.sheets = append(bk.sheets[:i], bk.sheets[i+1:]...)
			if bk.active == s {
				if i >= len(bk.sheets) {
					i = len(bk.sheets) - 1
				}
				bk.active = bk.sheets[i]
			}
			break
		}
	}
	for _, c := range s.charts {
		c.deleted = true
	}
	s.deleted = true
	return nil
}

func (s *sheet) Clear(ctx context.Context) error {
	defer s.lock()()
	if err := s.check(); err != nil {
		return err
	}
	s.cells = make(map[cellKey]cell)
	return nil
}

func (s *sheet) Activate(ctx context.Context) error {
	defer s.lock()()
	if err := s.check(); err != nil {
		return err
	}
	s.book.active = s
	s.book.app.active = s.book
	return nil
}

func (s *sheet) UsedRange(ctx context.Context) (automation.Range, error) {
	defer s.lock()()
	if err := s.check(); err != nil {
		return nil, err
	}
	return &rangeRef{sheet: s, addr: s.usedRange()}, nil
}

// usedRange is the bounding box of non-empty cells, $A$1 for an empty sheet.
func (s *sheet) usedRange() automation.Address {
	if len(s.cells) == 0 {
		return automation.Cell(1, 1)
	}
	minR, minC := automation.MaxRows, automation.MaxColumns
	maxR, maxC := 0, 0
	for k := range s.cells {
		minR, maxR = min(minR, k.row), max(maxR, k.row)
		minC, maxC = min(minC, k.col), max(maxC, k.col)
	}
	return automation.Address{Row: minR, Column: minC, Rows: maxR - minR + 1, Columns: maxC - minC + 1}
}

func (s *sheet) Range(ctx context.Context, address automation.Address) (automation.Range, error) {
	defer s.lock()()
	if err := s.check(); err != nil {
		return nil, err
	}
	return &rangeRef{sheet: s, addr: address}, nil
}

func (s *sheet) Charts(ctx context.Context) ([]automation.Chart, error) {
	defer s.lock()()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]automation.Chart, len(s.charts))
	for i, c := range s.charts {
		out[i] = c
	}
	return out, nil
}

func (s *sheet) AddChart(ctx context.Context, spec automation.ChartSpec) (automation.Chart, error) {
	defer s.lock()()
	if err := s.check(); err != nil {
		return nil, err
	}
	typ := spec.ChartType
	if typ == "" {
		typ = automation.DefaultChartType
	}
	canonical, ok := automation.NormalizeChartType(typ)
	if !ok {
		return nil, fmt.Errorf("chart type %q: %w", spec.ChartType, automation.ErrChartType)
	}
	var source string
	if spec.Source != "" {
		addr, err := automation.ParseAddress(spec.Source)
		if err != nil {
			return nil, err
		}
		source = addr.String()
	}
	s.chartSeq++
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("Chart %d", s.chartSeq)
	}
	c := &chart{
		sheet:     s,
		name:      name,
		chartType: canonical,
		source:    source,
		left:      spec.Left,
		top:       spec.Top,
		width:     orDefault(spec.Width, defaultChartWidth),
		height:    orDefault(spec.Height, defaultChartHeight),
	}
	s.charts = append(s.charts, c)
	return c, nil
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// grid reads the cells of addr. Callers hold the lock.
func (s *sheet) grid(addr automation.Address, formulas bool) [][]any {
	out := make([][]any, addr.Rows)
	for i := range out {
		row := make([]any, addr.Columns)
		for j := range row {
			c, ok := s.cells[cellKey{addr.Row + i, addr.Column + j}]
			if formulas {
				row[j] = formulaText(c, ok)
				continue
			}
			if ok {
				row[j] = c.value
			}
		}
		out[i] = row
	}
	return out
}

// write stores grid with its top-left cell at (row, col). Callers hold the
// lock.
func (s *sheet) write(row, col int, grid [][]any, formulas bool) error {
	if len(grid) == 0 {
		return nil
	}
	if _, err := automation.Cell(row, col).Resize(len(grid), len(grid[0])); err != nil {
		return err
	}
	for i, r := range grid {
		for j, v := range r {
			k := cellKey{row + i, col + j}
			var c cell
			if formulas {
				c = formulaCell(v)
			} else {
				c = cell{value: v}
			}
			if c.value == nil && c.formula == "" {
				delete(s.cells, k)
				continue
			}
			s.cells[k] = c
		}
	}
	return nil
}

func (s *sheet) clear(addr automation.Address) {
	for k := range s.cells {
		if k.row >= addr.Row && k.row <= addr.LastRow() && k.col >= addr.Column && k.col <= addr.LastColumn() {
			delete(s.cells, k)
		}
	}
}

type rangeRef struct {
	sheet *sheet
	addr  automation.Address
}

func (r *rangeRef) Address() automation.Address { return r.addr }

func (r *rangeRef) Sheet() automation.Sheet { return r.sheet }

func (r *rangeRef) Info(ctx context.Context) (automation.RangeInfo, error) {
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return automation.RangeInfo{}, err
	}
	return automation.RangeInfo{
		Address:     r.addr.String(),
		SheetName:   r.sheet.name,
		BookName:    r.sheet.book.name,
		Value:       automation.ShapeValue(r.sheet.grid(r.addr, false)),
		Formula:     automation.ShapeValue(r.sheet.grid(r.addr, true)),
		Shape:       [2]int{r.addr.Rows, r.addr.Columns},
		Row:         r.addr.Row,
		Column:      r.addr.Column,
		RowHeight:   defaultRowHeight,
		ColumnWidth: defaultColumnWidth,
	}, nil
}

func (r *rangeRef) Value(ctx context.Context) (any, error) {
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return nil, err
	}
	return automation.ShapeValue(r.sheet.grid(r.addr, false)), nil
}

func (r *rangeRef) SetValue(ctx context.Context, value any) error {
	grid, err := automation.ToGrid(value, r.addr)
	if err != nil {
		return err
	}
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return err
	}
	return r.sheet.write(r.addr.Row, r.addr.Column, grid, false)
}

func (r *rangeRef) Formula(ctx context.Context) (any, error) {
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return nil, err
	}
	return automation.ShapeValue(r.sheet.grid(r.addr, true)), nil
}

func (r *rangeRef) SetFormula(ctx context.Context, formula any) error {
	grid, err := automation.ToGrid(formula, r.addr)
	if err != nil {
		return err
	}
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return err
	}
	return r.sheet.write(r.addr.Row, r.addr.Column, grid, true)
}

func (r *rangeRef) Clear(ctx context.Context) error {
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return err
	}
	r.sheet.clear(r.addr)
	return nil
}

func (r *rangeRef) Table(ctx context.Context, header, index bool) (automation.Frame, error) {
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return automation.Frame{}, err
	}
	return automation.FrameFromGrid(r.sheet.grid(r.addr, false), header, index), nil
}

func (r *rangeRef) SetTable(ctx context.Context, frame automation.Frame, header, index bool) error {
	grid, err := frame.Grid(header, index)
	if err != nil {
		return err
	}
	defer r.sheet.lock()()
	if err := r.sheet.check(); err != nil {
		return err
	}
	return r.sheet.write(r.addr.Row, r.addr.Column, grid, false)
}
