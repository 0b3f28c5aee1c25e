package automation

import (
	"fmt"
	"strconv"
	"strings"
)

// Sheet grid limits.
const (
	MaxRows    = 1048576
	MaxColumns = 16384
)

// Address is a rectangular A1-style cell block. Row and Column are 1-based
// coordinates of the top-left cell.
type Address struct {
	Row     int
	Column  int
	Rows    int
	Columns int
}

// Cell returns the single-cell address at row, column.
func Cell(row, column int) Address {
	return Address{Row: row, Column: column, Rows: 1, Columns: 1}
}

// ParseAddress parses "A1", "$B$2", "a1:c3" and similar. Reversed corners
// are normalized. Malformed input yields an error wrapping ErrRange.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Address{}, fmt.Errorf("empty address: %w", ErrRange)
	}
	first, second, isBlock := strings.Cut(raw, ":")
	r1, c1, err := parseCell(first)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: %w", s, err)
	}
	r2, c2 := r1, c1
	if isBlock {
		r2, c2, err = parseCell(second)
		if err != nil {
			return Address{}, fmt.Errorf("address %q: %w", s, err)
		}
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	return Address{Row: r1, Column: c1, Rows: r2 - r1 + 1, Columns: c2 - c1 + 1}, nil
}

func parseCell(s string) (row, col int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := 0
	if i < len(s) && s[i] == '$' {
		i++
	}
	start := i
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	letters := s[start:i]
	if letters == "" || len(letters) > 3 {
		return 0, 0, fmt.Errorf("bad column in %q: %w", s, ErrRange)
	}
	if i < len(s) && s[i] == '$' {
		i++
	}
	digits := s[i:]
	if digits == "" || digits[0] == '0' || strings.IndexFunc(digits, notDigit) >= 0 {
		return 0, 0, fmt.Errorf("bad row in %q: %w", s, ErrRange)
	}
	row, convErr := strconv.Atoi(digits)
	if convErr != nil || row > MaxRows {
		return 0, 0, fmt.Errorf("bad row in %q: %w", s, ErrRange)
	}
	for _, ch := range letters {
		col = col*26 + int(ch-'A'+1)
	}
	if col > MaxColumns {
		return 0, 0, fmt.Errorf("column out of bounds in %q: %w", s, ErrRange)
	}
	return row, col, nil
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

// ColumnName converts a 1-based column number to its letters (1 -> "A").
func ColumnName(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// LastRow is the 1-based row of the bottom-right cell.
func (a Address) LastRow() int { return a.Row + a.Rows - 1 }

// LastColumn is the 1-based column of the bottom-right cell.
func (a Address) LastColumn() int { return a.Column + a.Columns - 1 }

// Resize returns an address with the same top-left cell and new dimensions.
func (a Address) Resize(rows, columns int) (Address, error) {
	out := Address{Row: a.Row, Column: a.Column, Rows: rows, Columns: columns}
	if rows < 1 || columns < 1 || out.LastRow() > MaxRows || out.LastColumn() > MaxColumns {
		return Address{}, fmt.Errorf("resize %s to %dx%d: %w", a, rows, columns, ErrRange)
	}
	return out, nil
}

// String renders the absolute A1 form, e.g. "$A$1" or "$A$1:$C$3".
func (a Address) String() string {
	tl := "$" + ColumnName(a.Column) + "$" + strconv.Itoa(a.Row)
	if a.Rows == 1 && a.Columns == 1 {
		return tl
	}
	return tl + ":$" + ColumnName(a.LastColumn()) + "$" + strconv.Itoa(a.LastRow())
}
