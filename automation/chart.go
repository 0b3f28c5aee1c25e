package automation

import (
	"sort"
	"strings"
)

// DefaultChartType is used when a chart is added without a type.
const DefaultChartType = "line"

// chartTypes maps accepted chart type names to the canonical host name.
var chartTypes = map[string]string{
	"column":             "column_clustered",
	"column_stacked":     "column_stacked",
	"column_stacked_100": "column_stacked_100_percent",
	"bar":                "bar_clustered",
	"bar_stacked":        "bar_stacked",
	"bar_stacked_100":    "bar_stacked_100_percent",
	"line":               "line",
	"line_markers":       "line_markers",
	"line_stacked":       "line_stacked",
	"line_stacked_100":   "line_stacked_100_percent",
	"pie":                "pie",
	"doughnut":           "doughnut",
	"scatter":            "scatter_markers",
	"area":               "area",
	"area_stacked":       "area_stacked",
	"area_stacked_100":   "area_stacked_100_percent",
	"radar":              "radar",
	"bubble":             "bubble",
	"3d_column":          "3d_column",
	"3d_bar":             "3d_bar",
	"3d_line":            "3d_line",
	"3d_pie":             "3d_pie",
	"3d_area":            "3d_area",
}

func init() {
	for _, canonical := range chartTypes {
		chartTypes[canonical] = canonical
	}
}

// NormalizeChartType resolves a chart type name or alias (case-insensitive)
// to its canonical name.
func NormalizeChartType(name string) (string, bool) {
	canonical, ok := chartTypes[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// ChartTypes lists the canonical chart type names.
func ChartTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, canonical := range chartTypes {
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	sort.Strings(out)
	return out
}
