package memory

import (
	"context"
	"fmt"

	"github.com/mnehpets/sheetrpc/automation"
)

const (
	defaultChartWidth  = 355.0
	defaultChartHeight = 211.0
)

type chart struct {
	sheet     *sheet
	name      string
	chartType string
	source    string

	left, top, width, height float64
	deleted                  bool
}

func (c *chart) check() error {
	if err := c.sheet.check(); err != nil {
		return err
	}
	if c.deleted {
		return fmt.Errorf("chart %q was deleted: %w", c.name, automation.ErrChartNotFound)
	}
	return nil
}

func (c *chart) Name() string {
	defer c.sheet.lock()()
	return c.name
}

func (c *chart) Info(ctx context.Context) (automation.ChartInfo, error) {
	defer c.sheet.lock()()
	if err := c.check(); err != nil {
		return automation.ChartInfo{}, err
	}
	return automation.ChartInfo{
		Name:      c.name,
		ChartType: c.chartType,
		SheetName: c.sheet.name,
		BookName:  c.sheet.book.name,
		Left:      c.left,
		Top:       c.top,
		Width:     c.width,
		Height:    c.height,
		Source:    c.source,
	}, nil
}

func (c *chart) Delete(ctx context.Context) error {
	defer c.sheet.lock()()
	if err := c.check(); err != nil {
		return err
	}
	s := c.sheet
	for i, other := range s.charts {
		if other == c {
			s.charts = append(s.charts[:i], s.charts[i+1:]...)
			break
		}
	}
	c.deleted = true
	return nil
}

func (c *chart) SetSourceData(ctx context.Context, address automation.Address) error {
	defer c.sheet.lock()()
	if err := c.check(); err != nil {
		return err
	}
	c.source = address.String()
	return nil
}

func (c *chart) SetType(ctx context.Context, chartType string) error {
	canonical, ok := automation.NormalizeChartType(chartType)
	if !ok {
		return fmt.Errorf("chart type %q: %w", chartType, automation.ErrChartType)
	}
	defer c.sheet.lock()()
	if err := c.check(); err != nil {
		return err
	}
	c.chartType = canonical
	return nil
}
