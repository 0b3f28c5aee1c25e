package methods

import (
	"context"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/resolve"
)

// ChartMethods is the chart namespace. Charts are named by name or by
// zero-based position on their sheet.
type ChartMethods struct {
	svc *Service
}

type ChartListParams struct {
	_     struct{}    `jsonrpc:"list"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required"`
	PID   *int        `json:"pid"`
}

// List describes the charts on a sheet.
func (m *ChartMethods) List(ctx context.Context, p ChartListParams) ([]automation.ChartInfo, error) {
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) ([]automation.ChartInfo, error) {
		charts, err := s.Charts(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]automation.ChartInfo, 0, len(charts))
		for _, c := range charts {
			info, err := c.Info(ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
		return out, nil
	})
}

type ChartGetParams struct {
	_     struct{}    `jsonrpc:"get"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required"`
	Chart resolve.Ref `json:"chart" rpc:"required"`
	PID   *int        `json:"pid"`
}

// Get describes one chart.
func (m *ChartMethods) Get(ctx context.Context, p ChartGetParams) (automation.ChartInfo, error) {
	return withChart(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Chart, chartInfo)
}

type ChartAddParams struct {
	_         struct{}    `jsonrpc:"add"`
	Book      string      `json:"book" rpc:"required"`
	Sheet     resolve.Ref `json:"sheet" rpc:"required"`
	Left      float64     `json:"left"`
	Top       float64     `json:"top"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	ChartType string      `json:"chart_type"`
	Source    string      `json:"source"`
	Name      string      `json:"name"`
	PID       *int        `json:"pid"`
}

// Add embeds a chart. Omitted sizes and type take the host's defaults.
func (m *ChartMethods) Add(ctx context.Context, p ChartAddParams) (automation.ChartInfo, error) {
	spec := automation.ChartSpec{
		Name:      p.Name,
		ChartType: p.ChartType,
		Source:    p.Source,
		Left:      p.Left,
		Top:       p.Top,
		Width:     p.Width,
		Height:    p.Height,
	}
	return withSheet(ctx, m.svc, p.PID, p.Book, p.Sheet, func(ctx context.Context, s automation.Sheet) (automation.ChartInfo, error) {
		c, err := s.AddChart(ctx, spec)
		if err != nil {
			return automation.ChartInfo{}, err
		}
		return c.Info(ctx)
	})
}

type ChartDeleteParams struct {
	_     struct{}    `jsonrpc:"delete"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required"`
	Chart resolve.Ref `json:"chart" rpc:"required"`
	PID   *int        `json:"pid"`
}

// Delete removes a chart.
func (m *ChartMethods) Delete(ctx context.Context, p ChartDeleteParams) (bool, error) {
	return withChart(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Chart, func(ctx context.Context, c automation.Chart) (bool, error) {
		if err := c.Delete(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

type ChartSetSourceDataParams struct {
	_     struct{}    `jsonrpc:"set_source_data"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required"`
	Chart resolve.Ref `json:"chart" rpc:"required"`
	Range string      `json:"range" rpc:"required"`
	PID   *int        `json:"pid"`
}

// SetSourceData points a chart at a range of its sheet.
func (m *ChartMethods) SetSourceData(ctx context.Context, p ChartSetSourceDataParams) (automation.ChartInfo, error) {
	addr, err := automation.ParseAddress(p.Range)
	if err != nil {
		return automation.ChartInfo{}, err
	}
	return withChart(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Chart, func(ctx context.Context, c automation.Chart) (automation.ChartInfo, error) {
		if err := c.SetSourceData(ctx, addr); err != nil {
			return automation.ChartInfo{}, err
		}
		return c.Info(ctx)
	})
}

type ChartSetTypeParams struct {
	_     struct{}    `jsonrpc:"set_type"`
	Book  string      `json:"book" rpc:"required"`
	Sheet resolve.Ref `json:"sheet" rpc:"required"`
	Chart resolve.Ref `json:"chart" rpc:"required"`
	Type  string      `json:"type" rpc:"required" alias:"chart_type"`
	PID   *int        `json:"pid"`
}

// SetType changes a chart's type.
func (m *ChartMethods) SetType(ctx context.Context, p ChartSetTypeParams) (automation.ChartInfo, error) {
	return withChart(ctx, m.svc, p.PID, p.Book, p.Sheet, p.Chart, func(ctx context.Context, c automation.Chart) (automation.ChartInfo, error) {
		if err := c.SetType(ctx, p.Type); err != nil {
			return automation.ChartInfo{}, err
		}
		return c.Info(ctx)
	})
}

func chartInfo(ctx context.Context, c automation.Chart) (automation.ChartInfo, error) {
	return c.Info(ctx)
}
