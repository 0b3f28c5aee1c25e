package methods

import (
	"context"
	"fmt"

	"github.com/mnehpets/sheetrpc/automation"
)

// AppMethods is the app namespace.
type AppMethods struct {
	svc *Service
}

type AppListParams struct {
	_ struct{} `jsonrpc:"list"`
}

// List describes every running application instance.
func (m *AppMethods) List(ctx context.Context, _ AppListParams) ([]automation.AppInfo, error) {
	apps, err := call(ctx, m.svc, automation.Unscoped, m.svc.resolver.Backend().Apps)
	if err != nil {
		return nil, err
	}
	out := make([]automation.AppInfo, 0, len(apps))
	for _, a := range apps {
		info, err := call(ctx, m.svc, a.PID(), a.Info)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

type AppGetParams struct {
	_   struct{} `jsonrpc:"get"`
	PID *int     `json:"pid"`
}

// Get describes one instance, the active one when pid is omitted.
func (m *AppMethods) Get(ctx context.Context, p AppGetParams) (automation.AppInfo, error) {
	return withApp(ctx, m.svc, p.PID, func(ctx context.Context, a automation.App) (automation.AppInfo, error) {
		return a.Info(ctx)
	})
}

type AppCreateParams struct {
	_       struct{} `jsonrpc:"create"`
	Visible bool     `json:"visible" default:"true"`
	AddBook bool     `json:"add_book" default:"true"`
}

// Create starts a new instance, which becomes the active one.
func (m *AppMethods) Create(ctx context.Context, p AppCreateParams) (automation.AppInfo, error) {
	a, err := call(ctx, m.svc, automation.Unscoped, func(ctx context.Context) (automation.App, error) {
		return m.svc.resolver.Backend().CreateApp(ctx, automation.AppOptions{Visible: p.Visible, AddBook: p.AddBook})
	})
	if err != nil {
		return automation.AppInfo{}, err
	}
	return call(ctx, m.svc, a.PID(), a.Info)
}

type AppQuitParams struct {
	_           struct{} `jsonrpc:"quit"`
	PID         int      `json:"pid" rpc:"required"`
	SaveChanges bool     `json:"save_changes" default:"true"`
}

// Quit closes an instance, saving its workbooks first when asked.
func (m *AppMethods) Quit(ctx context.Context, p AppQuitParams) (bool, error) {
	return withApp(ctx, m.svc, &p.PID, func(ctx context.Context, a automation.App) (bool, error) {
		if err := a.Quit(ctx, p.SaveChanges); err != nil {
			return false, err
		}
		return true, nil
	})
}

type AppSetCalculationParams struct {
	_    struct{} `jsonrpc:"set_calculation"`
	PID  int      `json:"pid" rpc:"required"`
	Mode string   `json:"mode" rpc:"required"`
}

func (p *AppSetCalculationParams) Validate() error {
	if _, ok := automation.ParseCalculation(p.Mode); !ok {
		return fmt.Errorf("mode %q: want automatic, manual or semiautomatic", p.Mode)
	}
	return nil
}

// SetCalculation changes the calculation mode.
func (m *AppMethods) SetCalculation(ctx context.Context, p AppSetCalculationParams) (automation.AppInfo, error) {
	mode, _ := automation.ParseCalculation(p.Mode)
	return configure(ctx, m.svc, &p.PID, automation.AppSettings{Calculation: &mode})
}

type AppGetCalculationParams struct {
	_   struct{} `jsonrpc:"get_calculation"`
	PID int      `json:"pid" rpc:"required"`
}

// GetCalculation reports the calculation mode.
func (m *AppMethods) GetCalculation(ctx context.Context, p AppGetCalculationParams) (string, error) {
	return withApp(ctx, m.svc, &p.PID, func(ctx context.Context, a automation.App) (string, error) {
		mode, err := a.Calculation(ctx)
		return string(mode), err
	})
}

type AppGetBooksParams struct {
	_   struct{} `jsonrpc:"get_books"`
	PID int      `json:"pid" rpc:"required"`
}

// GetBooks describes the workbooks open in an instance.
func (m *AppMethods) GetBooks(ctx context.Context, p AppGetBooksParams) ([]automation.BookInfo, error) {
	return withApp(ctx, m.svc, &p.PID, func(ctx context.Context, a automation.App) ([]automation.BookInfo, error) {
		books, err := a.Books(ctx)
		if err != nil {
			return nil, err
		}
		return bookInfos(ctx, books)
	})
}

type AppSetPropertiesParams struct {
	_              struct{} `jsonrpc:"set_properties"`
	PID            *int     `json:"pid"`
	Visible        *bool    `json:"visible"`
	ScreenUpdating *bool    `json:"screen_updating"`
	DisplayAlerts  *bool    `json:"display_alerts"`
	Calculation    *string  `json:"calculation"`
}

func (p *AppSetPropertiesParams) Validate() error {
	if p.Calculation != nil {
		if _, ok := automation.ParseCalculation(*p.Calculation); !ok {
			return fmt.Errorf("calculation %q: want automatic, manual or semiautomatic", *p.Calculation)
		}
	}
	return nil
}

// SetProperties updates several application settings at once. Omitted
// settings are left alone.
func (m *AppMethods) SetProperties(ctx context.Context, p AppSetPropertiesParams) (automation.AppInfo, error) {
	settings := automation.AppSettings{
		Visible:        p.Visible,
		ScreenUpdating: p.ScreenUpdating,
		DisplayAlerts:  p.DisplayAlerts,
	}
	if p.Calculation != nil {
		mode, _ := automation.ParseCalculation(*p.Calculation)
		settings.Calculation = &mode
	}
	return configure(ctx, m.svc, p.PID, settings)
}

func configure(ctx context.Context, svc *Service, pid *int, settings automation.AppSettings) (automation.AppInfo, error) {
	return withApp(ctx, svc, pid, func(ctx context.Context, a automation.App) (automation.AppInfo, error) {
		if err := a.Configure(ctx, settings); err != nil {
			return automation.AppInfo{}, err
		}
		return a.Info(ctx)
	})
}
