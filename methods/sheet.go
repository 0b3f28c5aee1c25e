package methods

import (
	"context"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/resolve"
)

// SheetMethods is the sheet namespace. Sheets are named by name or by
// zero-based position; "name" is accepted in place of "sheet".
type SheetMethods struct {
	svc *Service
}

type SheetListParams struct {
	_    struct{} `jsonrpc:"list"`
	Book string   `json:"book" rpc:"required"`
	PID  *int     `json:"pid"`
}

// List describes the sheets of a workbook in tab order.
func (m *SheetMethods) List(ctx context.Context, p SheetListParams) ([]automation.SheetInfo, error) {
	return (&BookMethods{svc: m.svc}).GetSheets(ctx, BookGetSheetsParams{Name: p.Book, PID: p.PID})
}

type SheetGetParams struct {
	_     struct{}    `jsonrpc:"get"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required" alias:"name"`
	PID   *int        `json:"pid"`
}

// Get describes one sheet.
func (m *SheetMethods) Get(ctx context.Context, p SheetGetParams) (automation.SheetInfo, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, sheetInfo)
}

type SheetDeleteParams struct {
	_     struct{}    `jsonrpc:"delete"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required" alias:"name"`
	PID   *int        `json:"pid"`
}

// Delete removes a sheet. The last sheet of a workbook cannot be deleted.
func (m *SheetMethods) Delete(ctx context.Context, p SheetDeleteParams) (bool, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) (bool, error) {
		if err := s.Delete(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

type SheetClearParams struct {
	_     struct{}    `jsonrpc:"clear"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required" alias:"name"`
	PID   *int        `json:"pid"`
}

// Clear empties every cell of a sheet.
func (m *SheetMethods) Clear(ctx context.Context, p SheetClearParams) (automation.SheetInfo, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) (automation.SheetInfo, error) {
		if err := s.Clear(ctx); err != nil {
			return automation.SheetInfo{}, err
		}
		return s.Info(ctx)
	})
}

type SheetGetUsedRangeParams struct {
	_     struct{}    `jsonrpc:"get_used_range"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required" alias:"name"`
	PID   *int        `json:"pid"`
}

// GetUsedRange describes the smallest range covering every non-empty cell.
func (m *SheetMethods) GetUsedRange(ctx context.Context, p SheetGetUsedRangeParams) (automation.RangeInfo, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) (automation.RangeInfo, error) {
		rg, err := m.svc.resolver.UsedRange(ctx, s)
		if err != nil {
			return automation.RangeInfo{}, err
		}
		return rg.Info(ctx)
	})
}

type SheetActivateParams struct {
	_     struct{}    `jsonrpc:"activate"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required" alias:"name"`
	PID   *int        `json:"pid"`
}

// Activate makes a sheet the active one of its workbook.
func (m *SheetMethods) Activate(ctx context.Context, p SheetActivateParams) (automation.SheetInfo, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) (automation.SheetInfo, error) {
		if err := s.Activate(ctx); err != nil {
			return automation.SheetInfo{}, err
		}
		return s.Info(ctx)
	})
}

type SheetAddParams struct {
	_      struct{}     `jsonrpc:"add"`
	Book   string       `json:"book" rpc:"required"`
	Name   string       `json:"name"`
	Before *resolve.Ref `json:"before"`
	After  *resolve.Ref `json:"after"`
	PID    *int         `json:"pid"`
}

func (p *SheetAddParams) Validate() error {
	return exclusive(p.Before != nil && !p.Before.IsZero(), p.After != nil && !p.After.IsZero(), "before and after")
}

// Add inserts a sheet, appended unless before or after names a neighbour.
func (m *SheetMethods) Add(ctx context.Context, p SheetAddParams) (automation.SheetInfo, error) {
	return withBook(ctx, m.svc, p.PID, p.Book, func(ctx context.Context, bk automation.Book) (automation.SheetInfo, error) {
		var place automation.Placement
		var err error
		if p.Before != nil && !p.Before.IsZero() {
			if place.Before, err = m.svc.resolver.Sheet(ctx, bk, *p.Before); err != nil {
				return automation.SheetInfo{}, err
			}
		}
		if p.After != nil && !p.After.IsZero() {
			if place.After, err = m.svc.resolver.Sheet(ctx, bk, *p.After); err != nil {
				return automation.SheetInfo{}, err
			}
		}
		s, err := bk.AddSheet(ctx, p.Name, place)
		if err != nil {
			return automation.SheetInfo{}, err
		}
		return s.Info(ctx)
	})
}

type SheetRenameParams struct {
	_       struct{}    `jsonrpc:"rename"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required" alias:"name"`
	NewName string      `json:"new_name" rpc:"required"`
	PID     *int        `json:"pid"`
}

// Rename changes a sheet's name.
func (m *SheetMethods) Rename(ctx context.Context, p SheetRenameParams) (automation.SheetInfo, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) (automation.SheetInfo, error) {
		if err := s.Rename(ctx, p.NewName); err != nil {
			return automation.SheetInfo{}, err
		}
		return s.Info(ctx)
	})
}

func sheetInfo(ctx context.Context, s automation.Sheet) (automation.SheetInfo, error) {
	return s.Info(ctx)
}
