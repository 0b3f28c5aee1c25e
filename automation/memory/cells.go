package memory

import (
	"strconv"
	"strings"
)

// formulaText is the formula form of a cell: its formula, or its constant
// rendered as the host would show it in the formula bar.
func formulaText(c cell, ok bool) string {
	if !ok {
		return ""
	}
	if c.formula != "" {
		return c.formula
	}
	switch v := c.value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	}
	return ""
}

// formulaCell interprets v as formula bar input. Text starting with "=" is a
// formula; other text is coerced to a number or boolean when it parses as one.
func formulaCell(v any) cell {
	s, ok := v.(string)
	if !ok {
		return cell{value: v}
	}
	if strings.HasPrefix(s, "=") && len(s) > 1 {
		return cell{value: s, formula: s}
	}
	return cell{value: constant(s)}
}

// constant coerces text to the cell value the host would store.
func constant(s string) any {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return s
}
