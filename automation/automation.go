// Package automation defines the capability interface between the RPC layer
// and a spreadsheet automation host.
//
// The interface is deliberately narrow: enumerate and manage application
// instances, their workbooks, sheets, ranges and charts. Implementations own
// every handle they return; callers must treat handles as valid for the
// duration of a single request only and re-resolve by identifier on the next.
//
// Failures are reported with the sentinel errors in this package (wrapped with
// context via fmt.Errorf("...: %w", err)) so that the RPC layer can classify
// them with errors.Is.
package automation

import (
	"context"
	"strings"
)

// Calculation is an application calculation mode.
type Calculation string

const (
	CalculationAutomatic     Calculation = "automatic"
	CalculationManual        Calculation = "manual"
	CalculationSemiautomatic Calculation = "semiautomatic"
)

// ParseCalculation validates a calculation mode name (case-insensitive).
func ParseCalculation(s string) (Calculation, bool) {
	switch Calculation(strings.ToLower(strings.TrimSpace(s))) {
	case CalculationAutomatic:
		return CalculationAutomatic, true
	case CalculationManual:
		return CalculationManual, true
	case CalculationSemiautomatic:
		return CalculationSemiautomatic, true
	}
	return "", false
}

// Backend enumerates and creates application instances.
//
// Backend methods must be safe to call concurrently with each other and with
// calls on any App. Methods on App and the handles reached through it carry
// no such guarantee: callers run them inside the instance's Guard slot.
type Backend interface {
	// Apps returns the running application instances in enumeration order.
	Apps(ctx context.Context) ([]App, error)
	// App returns the instance with the given process identifier.
	App(ctx context.Context, pid int) (App, error)
	// ActiveApp returns the currently active instance, or ErrApplicationNotFound.
	ActiveApp(ctx context.Context) (App, error)
	// CreateApp starts a new instance; it becomes the active one.
	CreateApp(ctx context.Context, opts AppOptions) (App, error)
}

// AppOptions configures a new application instance.
type AppOptions struct {
	Visible bool
	AddBook bool
}

// AppSettings is a partial update of application-level settings. Nil fields
// are left unchanged.
type AppSettings struct {
	Visible        *bool
	ScreenUpdating *bool
	DisplayAlerts  *bool
	Calculation    *Calculation
}

// App is a running application instance.
type App interface {
	PID() int
	Info(ctx context.Context) (AppInfo, error)
	Quit(ctx context.Context, saveChanges bool) error
	Calculation(ctx context.Context) (Calculation, error)
	Configure(ctx context.Context, settings AppSettings) error
	Books(ctx context.Context) ([]Book, error)
	ActiveBook(ctx context.Context) (Book, error)
	OpenBook(ctx context.Context, path string, opts OpenOptions) (Book, error)
	AddBook(ctx context.Context) (Book, error)
}

// OpenOptions configures Book opening.
type OpenOptions struct {
	ReadOnly bool
	Password string
}

// Book is an open workbook.
type Book interface {
	Name() string
	FullName() string
	App() App
	Info(ctx context.Context) (BookInfo, error)
	Sheets(ctx context.Context) ([]Sheet, error)
	AddSheet(ctx context.Context, name string, placement Placement) (Sheet, error)
	// Save writes the workbook. An empty path saves in place.
	Save(ctx context.Context, path string) error
	Close(ctx context.Context, save bool) error
}

// Placement positions a new sheet relative to an existing one. At most one of
// Before and After is set; neither means "append".
type Placement struct {
	Before Sheet
	After  Sheet
}

// Sheet is a worksheet within a Book.
type Sheet interface {
	Name() string
	Book() Book
	Info(ctx context.Context) (SheetInfo, error)
	Rename(ctx context.Context, name string) error
	Delete(ctx context.Context) error
	Clear(ctx context.Context) error
	Activate(ctx context.Context) error
	UsedRange(ctx context.Context) (Range, error)
	Range(ctx context.Context, address Address) (Range, error)
	Charts(ctx context.Context) ([]Chart, error)
	AddChart(ctx context.Context, spec ChartSpec) (Chart, error)
}

// Range is a rectangular block of cells on a Sheet.
type Range interface {
	Address() Address
	Sheet() Sheet
	Info(ctx context.Context) (RangeInfo, error)
	Value(ctx context.Context) (any, error)
	SetValue(ctx context.Context, value any) error
	Formula(ctx context.Context) (any, error)
	SetFormula(ctx context.Context, formula any) error
	Clear(ctx context.Context) error
	Table(ctx context.Context, header, index bool) (Frame, error)
	SetTable(ctx context.Context, frame Frame, header, index bool) error
}

// ChartSpec describes a new chart.
type ChartSpec struct {
	Name      string
	ChartType string
	Source    string
	Left      float64
	Top       float64
	Width     float64
	Height    float64
}

// Chart is an embedded chart on a Sheet.
type Chart interface {
	Name() string
	Info(ctx context.Context) (ChartInfo, error)
	Delete(ctx context.Context) error
	SetSourceData(ctx context.Context, address Address) error
	SetType(ctx context.Context, chartType string) error
}

// AppInfo is the wire shape of an application instance.
type AppInfo struct {
	ID             int    `json:"id"`
	Version        string `json:"version"`
	Visible        bool   `json:"visible"`
	Calculation    string `json:"calculation"`
	ScreenUpdating bool   `json:"screen_updating"`
	DisplayAlerts  bool   `json:"display_alerts"`
}

// BookInfo is the wire shape of a workbook.
type BookInfo struct {
	Name     string   `json:"name"`
	FullName string   `json:"fullname"`
	Path     string   `json:"path"`
	AppID    int      `json:"app_id"`
	Sheets   []string `json:"sheets"`
}

// SheetInfo is the wire shape of a worksheet. Index is 1-based.
type SheetInfo struct {
	Name      string `json:"name"`
	BookName  string `json:"book_name"`
	Index     int    `json:"index"`
	UsedRange string `json:"used_range"`
}

// RangeInfo is the wire shape of a range.
type RangeInfo struct {
	Address     string  `json:"address"`
	SheetName   string  `json:"sheet_name"`
	BookName    string  `json:"book_name"`
	Value       any     `json:"value"`
	Formula     any     `json:"formula"`
	Shape       [2]int  `json:"shape"`
	Row         int     `json:"row"`
	Column      int     `json:"column"`
	RowHeight   float64 `json:"row_height"`
	ColumnWidth float64 `json:"column_width"`
}

// ChartInfo is the wire shape of a chart.
type ChartInfo struct {
	Name      string  `json:"name"`
	ChartType string  `json:"chart_type"`
	SheetName string  `json:"sheet_name"`
	BookName  string  `json:"book_name"`
	Left      float64 `json:"left"`
	Top       float64 `json:"top"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Source    string  `json:"source,omitempty"`
}
