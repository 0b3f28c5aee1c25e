// Package methods implements the app, book, sheet, range and chart RPC
// namespaces on top of an automation backend.
//
// Every method follows the same shape: find the target application, then
// resolve the rest of the identifier and run the operation in one call
// holding that application's slot in the Guard. Handles never outlive the
// call that resolved them.
package methods

import (
	"context"
	"fmt"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/resolve"
)

// Service carries what every namespace needs.
type Service struct {
	resolver *resolve.Resolver
	guard    *automation.Guard
}

// NewService returns a Service resolving through resolver. Backend calls are
// bounded and serialized by the resolver's Guard.
func NewService(resolver *resolve.Resolver) *Service {
	return &Service{resolver: resolver, guard: resolver.Guard()}
}

// Register installs every namespace on reg.
func Register(reg *jsonrpc.Registry, svc *Service) {
	reg.Register("app", &AppMethods{svc: svc})
	reg.Register("book", &BookMethods{svc: svc})
	reg.Register("sheet", &SheetMethods{svc: svc})
	reg.Register("range", &RangeMethods{svc: svc})
	reg.Register("chart", &ChartMethods{svc: svc})
}

// call runs fn in pid's slot. The result is only read once fn has returned.
func call[R any](ctx context.Context, svc *Service, pid int, fn func(context.Context) (R, error)) (R, error) {
	var out R
	err := svc.guard.Do(ctx, pid, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// withApp resolves the application at backend level, then runs fn in its
// slot.
func withApp[R any](ctx context.Context, svc *Service, pid *int, fn func(context.Context, automation.App) (R, error)) (R, error) {
	a, err := call(ctx, svc, automation.Unscoped, func(ctx context.Context) (automation.App, error) {
		return svc.resolver.App(ctx, pid)
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return call(ctx, svc, a.PID(), func(ctx context.Context) (R, error) {
		return fn(ctx, a)
	})
}

// withBook finds the owning application, then resolves the workbook and runs
// fn in one call holding that application's slot.
func withBook[R any](ctx context.Context, svc *Service, pid *int, name string, fn func(context.Context, automation.Book) (R, error)) (R, error) {
	a, err := svc.resolver.BookApp(ctx, pid, name)
	if err != nil {
		var zero R
		return zero, err
	}
	return call(ctx, svc, a.PID(), func(ctx context.Context) (R, error) {
		bk, err := svc.resolver.Book(ctx, a, name)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, bk)
	})
}

func withSheet[R any](ctx context.Context, svc *Service, pid *int, book string, ref resolve.Ref, fn func(context.Context, automation.Sheet) (R, error)) (R, error) {
	if ref.IsZero() {
		var zero R
		return zero, jsonrpc.InvalidParams("sheet must be a name or a position")
	}
	return withBook(ctx, svc, pid, book, func(ctx context.Context, bk automation.Book) (R, error) {
		s, err := svc.resolver.Sheet(ctx, bk, ref)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, s)
	})
}

func withRange[R any](ctx context.Context, svc *Service, pid *int, book string, ref resolve.Ref, address string, fn func(context.Context, automation.Range) (R, error)) (R, error) {
	return withSheet(ctx, svc, pid, book, ref, func(ctx context.Context, s automation.Sheet) (R, error) {
		rg, err := svc.resolver.Range(ctx, s, address)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, rg)
	})
}

func withChart[R any](ctx context.Context, svc *Service, pid *int, book string, sheet, chart resolve.Ref, fn func(context.Context, automation.Chart) (R, error)) (R, error) {
	if chart.IsZero() {
		var zero R
		return zero, jsonrpc.InvalidParams("chart must be a name or a position")
	}
	return withSheet(ctx, svc, pid, book, sheet, func(ctx context.Context, s automation.Sheet) (R, error) {
		c, err := svc.resolver.Chart(ctx, s, chart)
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, c)
	})
}

func sheetInfos(ctx context.Context, sheets []automation.Sheet) ([]automation.SheetInfo, error) {
	out := make([]automation.SheetInfo, 0, len(sheets))
	for _, s := range sheets {
		info, err := s.Info(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func bookInfos(ctx context.Context, books []automation.Book) ([]automation.BookInfo, error) {
	out := make([]automation.BookInfo, 0, len(books))
	for _, bk := range books {
		info, err := bk.Info(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func exclusive(a, b bool, what string) error {
	if a && b {
		return fmt.Errorf("%s are mutually exclusive", what)
	}
	return nil
}
