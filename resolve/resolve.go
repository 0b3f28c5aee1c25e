// Package resolve turns client-supplied identifiers into automation handles.
//
// Resolution is strictly hierarchical (application, workbook, sheet, range,
// chart) and happens fresh on every call: the Resolver holds no handles
// between requests.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mnehpets/sheetrpc/automation"
)

// Policy decides which workbook wins when a name is open in more than one
// application instance and no pid was given.
type Policy string

const (
	// PreferActive picks the match in the active application, falling back to
	// the first match in enumeration order.
	PreferActive Policy = "prefer-active"
	// First picks the first match in enumeration order.
	First Policy = "first"
	// Strict rejects ambiguous names.
	Strict Policy = "strict"
)

// ParsePolicy validates a policy name. The empty string selects PreferActive.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferActive, nil
	case PreferActive, First, Strict:
		return p, nil
	}
	return "", fmt.Errorf("unknown book resolution policy %q (want %s, %s or %s)", s, PreferActive, First, Strict)
}

// DefaultMaxCells bounds the cells a single resolved range may cover.
const DefaultMaxCells = 1 << 20

// Resolver locates handles through a Backend.
//
// Only backend-level enumeration runs outside an application slot. Searching
// an application's workbooks happens in that application's Guard slot, and
// the per-application lookups (Book, Sheet, Range, Chart, UsedRange) expect
// the caller to hold the slot already.
type Resolver struct {
	backend  automation.Backend
	policy   Policy
	guard    *automation.Guard
	maxCells int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGuard serializes cross-application workbook searches through g. It
// must be the Guard the caller runs operations in.
func WithGuard(g *automation.Guard) Option {
	return func(r *Resolver) {
		if g != nil {
			r.guard = g
		}
	}
}

// WithMaxCells caps the size of resolved ranges. Zero or less keeps
// DefaultMaxCells.
func WithMaxCells(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxCells = n
		}
	}
}

// New returns a Resolver over backend. An empty policy selects PreferActive.
func New(backend automation.Backend, policy Policy, opts ...Option) *Resolver {
	if policy == "" {
		policy = PreferActive
	}
	r := &Resolver{backend: backend, policy: policy, maxCells: DefaultMaxCells}
	for _, opt := range opts {
		opt(r)
	}
	if r.guard == nil {
		r.guard = automation.NewGuard(0)
	}
	return r
}

// Backend returns the backend the Resolver reads from.
func (r *Resolver) Backend() automation.Backend { return r.backend }

// Policy reports the workbook tie-break policy.
func (r *Resolver) Policy() Policy { return r.policy }

// Guard returns the Guard application slots are taken from.
func (r *Resolver) Guard() *automation.Guard { return r.guard }

// MaxCells reports the range size limit.
func (r *Resolver) MaxCells() int { return r.maxCells }

// App resolves pid, or the active application when pid is nil.
func (r *Resolver) App(ctx context.Context, pid *int) (automation.App, error) {
	if pid == nil {
		return r.backend.ActiveApp(ctx)
	}
	return r.backend.App(ctx, *pid)
}

// BookApp finds the application holding the workbook called name. With pid
// that application is returned as is and Book reports a missing workbook.
// Otherwise every application is searched, each in its own slot, and the
// Policy breaks ties.
func (r *Resolver) BookApp(ctx context.Context, pid *int, name string) (automation.App, error) {
	if name == "" {
		return nil, fmt.Errorf("workbook name is required: %w", automation.ErrInvalidArgument)
	}
	if pid != nil {
		return r.backend.App(ctx, *pid)
	}

	apps, err := r.backend.Apps(ctx)
	if err != nil {
		return nil, err
	}
	var owners []automation.App
	for _, a := range apps {
		var found bool
		err := r.guard.Do(ctx, a.PID(), func(ctx context.Context) error {
			m, err := matchBooks(ctx, a, name)
			found = len(m) > 0
			return err
		})
		if errors.Is(err, automation.ErrApplicationNotFound) {
			// quit since enumeration
			continue
		}
		if err != nil {
			return nil, err
		}
		if found {
			owners = append(owners, a)
		}
	}
	switch len(owners) {
	case 0:
		return nil, fmt.Errorf("workbook %q: %w", name, automation.ErrWorkbookNotFound)
	case 1:
		return owners[0], nil
	}
	return r.tieBreak(ctx, name, owners)
}

// Book resolves a workbook of a by file name or full path. The caller holds
// a's slot.
func (r *Resolver) Book(ctx context.Context, a automation.App, name string) (automation.Book, error) {
	if name == "" {
		return nil, fmt.Errorf("workbook name is required: %w", automation.ErrInvalidArgument)
	}
	matches, err := matchBooks(ctx, a, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("workbook %q in application %d: %w", name, a.PID(), automation.ErrWorkbookNotFound)
	}
	return matches[0], nil
}

func (r *Resolver) tieBreak(ctx context.Context, name string, owners []automation.App) (automation.App, error) {
	switch r.policy {
	case Strict:
		pids := make([]string, len(owners))
		for i, a := range owners {
			pids[i] = fmt.Sprint(a.PID())
		}
		return nil, fmt.Errorf("workbook %q is open in applications %s, pass pid: %w",
			name, strings.Join(pids, ", "), automation.ErrInvalidArgument)
	case PreferActive:
		if active, err := r.backend.ActiveApp(ctx); err == nil {
			for _, a := range owners {
				if a.PID() == active.PID() {
					return a, nil
				}
			}
		}
	}
	return owners[0], nil
}

func matchBooks(ctx context.Context, a automation.App, name string) ([]automation.Book, error) {
	books, err := a.Books(ctx)
	if err != nil {
		return nil, err
	}
	var out []automation.Book
	for _, bk := range books {
		if strings.EqualFold(bk.Name(), name) || strings.EqualFold(bk.FullName(), name) {
			out = append(out, bk)
		}
	}
	return out, nil
}

// Sheet resolves a sheet of book by name (case-insensitive) or zero-based
// position.
func (r *Resolver) Sheet(ctx context.Context, book automation.Book, ref Ref) (automation.Sheet, error) {
	sheets, err := book.Sheets(ctx)
	if err != nil {
		return nil, err
	}
	if ref.IsIndex() {
		if ref.Index() >= len(sheets) {
			return nil, fmt.Errorf("sheet %s in %q (%d sheets): %w", ref, book.Name(), len(sheets), automation.ErrSheetNotFound)
		}
		return sheets[ref.Index()], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s.Name(), ref.Name()) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("sheet %s in %q: %w", ref, book.Name(), automation.ErrSheetNotFound)
}

// Range resolves an A1 address on sheet.
func (r *Resolver) Range(ctx context.Context, sheet automation.Sheet, address string) (automation.Range, error) {
	addr, err := automation.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if err := r.checkCells(addr); err != nil {
		return nil, err
	}
	return sheet.Range(ctx, addr)
}

// UsedRange resolves the used range of sheet under the same size limit as
// Range.
func (r *Resolver) UsedRange(ctx context.Context, sheet automation.Sheet) (automation.Range, error) {
	rg, err := sheet.UsedRange(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.checkCells(rg.Address()); err != nil {
		return nil, err
	}
	return rg, nil
}

func (r *Resolver) checkCells(addr automation.Address) error {
	if n := int64(addr.Rows) * int64(addr.Columns); n > int64(r.maxCells) {
		return fmt.Errorf("range %s covers %d cells, limit is %d: %w", addr, n, r.maxCells, automation.ErrRange)
	}
	return nil
}

// Chart resolves a chart of sheet by name or zero-based position.
func (r *Resolver) Chart(ctx context.Context, sheet automation.Sheet, ref Ref) (automation.Chart, error) {
	charts, err := sheet.Charts(ctx)
	if err != nil {
		return nil, err
	}
	if ref.IsIndex() {
		if ref.Index() >= len(charts) {
			return nil, fmt.Errorf("chart %s on %q (%d charts): %w", ref, sheet.Name(), len(charts), automation.ErrChartNotFound)
		}
		return charts[ref.Index()], nil
	}
	for _, c := range charts {
		if c.Name() == ref.Name() {
			return c, nil
		}
	}
	return nil, fmt.Errorf("chart %s on %q: %w", ref, sheet.Name(), automation.ErrChartNotFound)
}
