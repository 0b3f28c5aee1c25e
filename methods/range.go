package methods

import (
	"context"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/resolve"
)

// RangeMethods is the range namespace. Addresses use A1 notation, with or
// without "$" markers.
type RangeMethods struct {
	svc *Service
}

type RangeGetParams struct {
	_       struct{}    `jsonrpc:"get"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	PID     *int        `json:"pid"`
}

// Get describes a range, including its values and formulas.
func (m *RangeMethods) Get(ctx context.Context, p RangeGetParams) (automation.RangeInfo, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, rangeInfo)
}

type RangeGetValueParams struct {
	_       struct{}    `jsonrpc:"get_value"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	PID     *int        `json:"pid"`
}

// GetValue returns the values of a range: a scalar for one cell, a list for
// a single row or column, otherwise a list of rows.
func (m *RangeMethods) GetValue(ctx context.Context, p RangeGetValueParams) (any, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (any, error) {
		return rg.Value(ctx)
	})
}

type RangeGetFormulaParams struct {
	_       struct{}    `jsonrpc:"get_formula"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	PID     *int        `json:"pid"`
}

// GetFormula returns the formulas of a range, shaped like GetValue.
func (m *RangeMethods) GetFormula(ctx context.Context, p RangeGetFormulaParams) (any, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (any, error) {
		return rg.Formula(ctx)
	})
}

type RangeClearParams struct {
	_       struct{}    `jsonrpc:"clear"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	PID     *int        `json:"pid"`
}

// Clear empties a range.
func (m *RangeMethods) Clear(ctx context.Context, p RangeClearParams) (automation.RangeInfo, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (automation.RangeInfo, error) {
		if err := rg.Clear(ctx); err != nil {
			return automation.RangeInfo{}, err
		}
		return rg.Info(ctx)
	})
}

type RangeSetValueParams struct {
	_       struct{}    `jsonrpc:"set_value"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	Value   any         `json:"value" rpc:"required"`
	PID     *int        `json:"pid"`
}

// SetValue writes values. A scalar fills the whole range; a list of rows
// expands from the top-left cell.
func (m *RangeMethods) SetValue(ctx context.Context, p RangeSetValueParams) (automation.RangeInfo, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (automation.RangeInfo, error) {
		if err := rg.SetValue(ctx, p.Value); err != nil {
			return automation.RangeInfo{}, err
		}
		return rg.Info(ctx)
	})
}

type RangeSetFormulaParams struct {
	_       struct{}    `jsonrpc:"set_formula"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	Formula any         `json:"formula" rpc:"required"`
	PID     *int        `json:"pid"`
}

// SetFormula writes formulas, shaped like SetValue.
func (m *RangeMethods) SetFormula(ctx context.Context, p RangeSetFormulaParams) (automation.RangeInfo, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (automation.RangeInfo, error) {
		if err := rg.SetFormula(ctx, p.Formula); err != nil {
			return automation.RangeInfo{}, err
		}
		return rg.Info(ctx)
	})
}

type RangeGetAsDataframeParams struct {
	_       struct{}    `jsonrpc:"get_as_dataframe"`
	Book    string      `json:"book" rpc:"required"`
	Sheet   resolve.Ref `json:"sheet" rpc:"required"`
	Address string      `json:"address" rpc:"required"`
	Header  bool        `json:"header" default:"true"`
	Index   bool        `json:"index" default:"false"`
	PID     *int        `json:"pid"`
}

// GetAsDataframe reads a range as a table.
func (m *RangeMethods) GetAsDataframe(ctx context.Context, p RangeGetAsDataframeParams) (automation.Frame, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (automation.Frame, error) {
		return rg.Table(ctx, p.Header, p.Index)
	})
}

type RangeSetDataframeParams struct {
	_         struct{}         `jsonrpc:"set_dataframe"`
	Book      string           `json:"book" rpc:"required"`
	Sheet     resolve.Ref      `json:"sheet" rpc:"required"`
	Address   string           `json:"address" rpc:"required"`
	Dataframe automation.Frame `json:"dataframe" rpc:"required"`
	Header    bool             `json:"header" default:"true"`
	Index     bool             `json:"index" default:"false"`
	PID       *int             `json:"pid"`
}

// SetDataframe writes a table starting at the top-left cell of address.
func (m *RangeMethods) SetDataframe(ctx context.Context, p RangeSetDataframeParams) (automation.RangeInfo, error) {
	return withRange(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Address, func(ctx context.Context, rg automation.Range) (automation.RangeInfo, error) {
		if err := rg.SetTable(ctx, p.Dataframe, p.Header, p.Index); err != nil {
			return automation.RangeInfo{}, err
		}
		return rg.Info(ctx)
	})
}

func rangeInfo(ctx context.Context, rg automation.Range) (automation.RangeInfo, error) {
	return rg.Info(ctx)
}
