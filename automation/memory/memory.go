// Package memory is an in-process automation backend.
//
// It keeps application instances, workbooks, sheets, cells and charts in
// memory and persists workbooks as .xlsx files. It backs the server when no
// desktop host is attached and is the collaborator used throughout the tests.
//
// Formulas are stored, not evaluated: a formula cell reports its formula text
// as its value.
//
// All state sits behind one mutex. Handles check on every call that the
// object they refer to still exists, so a handle kept past a delete or close
// fails with the matching not-found error.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mnehpets/sheetrpc/automation"
)

const (
	// Version is the host version reported by every application instance.
	Version = "16.0"

	defaultRowHeight   = 15.0
	defaultColumnWidth = 8.43
	firstPID           = 1000
)

// Options configures a Backend.
type Options struct {
	// Dir is where never-saved workbooks are written when saved without a
	// path. Empty means the working directory.
	Dir string
	// FirstPID is the identifier given to the first application instance.
	FirstPID int
}

// Backend is an in-memory automation.Backend. The zero value is not usable;
// call New.
type Backend struct {
	mu      sync.Mutex
	dir     string
	nextPID int
	apps    []*app
	active  *app
}

var _ automation.Backend = (*Backend)(nil)

// New returns an empty Backend with no running applications.
func New(opts Options) *Backend {
	pid := opts.FirstPID
	if pid <= 0 {
		pid = firstPID
	}
	return &Backend{dir: opts.Dir, nextPID: pid}
}

func (b *Backend) Apps(ctx context.Context) ([]automation.App, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]automation.App, len(b.apps))
	for i, a := range b.apps {
		out[i] = a
	}
	return out, nil
}

func (b *Backend) App(ctx context.Context, pid int) (automation.App, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.apps {
		if a.pid == pid {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no application with pid %d: %w", pid, automation.ErrApplicationNotFound)
}

func (b *Backend) ActiveApp(ctx context.Context) (automation.App, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil, fmt.Errorf("no active application: %w", automation.ErrApplicationNotFound)
	}
	return b.active, nil
}

func (b *Backend) CreateApp(ctx context.Context, opts automation.AppOptions) (automation.App, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := &app{
		b:              b,
		pid:            b.nextPID,
		visible:        opts.Visible,
		screenUpdating: true,
		displayAlerts:  true,
		calculation:    automation.CalculationAutomatic,
	}
	b.nextPID++
	if opts.AddBook {
		a.newBook()
	}
	b.apps = append(b.apps, a)
	b.active = a
	return a, nil
}

func (b *Backend) saveDir() string {
	if b.dir == "" {
		return "."
	}
	return b.dir
}

type app struct {
	b   *Backend
	pid int

	visible        bool
	screenUpdating bool
	displayAlerts  bool
	calculation    automation.Calculation

	books   []*book
	active  *book
	bookSeq int
	quit    bool
}

func (a *app) PID() int { return a.pid }

func (a *app) check() error {
	if a.quit {
		return fmt.Errorf("application %d has quit: %w", a.pid, automation.ErrApplicationNotFound)
	}
	return nil
}

func (a *app) Info(ctx context.Context) (automation.AppInfo, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return automation.AppInfo{}, err
	}
	return automation.AppInfo{
		ID:             a.pid,
		Version:        Version,
		Visible:        a.visible,
		Calculation:    string(a.calculation),
		ScreenUpdating: a.screenUpdating,
		DisplayAlerts:  a.displayAlerts,
	}, nil
}

func (a *app) Quit(ctx context.Context, saveChanges bool) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return err
	}
	if saveChanges {
		for _, bk := range a.books {
			if bk.path == "" || bk.readOnly {
				continue
			}
			if err := bk.writeXLSX(bk.path); err != nil {
				return err
			}
		}
	}
	for _, bk := range a.books {
		bk.closed = true
	}
	a.books = nil
	a.active = nil
	a.quit = true

	b := a.b
	for i, other := range b.apps {
		if other == a {
			b.apps = append(b.apps[:i], b.apps[i+1:]...)
			break
		}
	}
	if b.active == a {
		b.active = nil
		if n := len(b.apps); n > 0 {
			b.active = b.apps[n-1]
		}
	}
	return nil
}

func (a *app) Calculation(ctx context.Context) (automation.Calculation, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return "", err
	}
	return a.calculation, nil
}

func (a *app) Configure(ctx context.Context, s automation.AppSettings) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return err
	}
	if s.Calculation != nil {
		c, ok := automation.ParseCalculation(string(*s.Calculation))
		if !ok {
			return fmt.Errorf("calculation mode %q: %w", *s.Calculation, automation.ErrInvalidArgument)
		}
		a.calculation = c
	}
	if s.Visible != nil {
		a.visible = *s.Visible
	}
	if s.ScreenUpdating != nil {
		a.screenUpdating = *s.ScreenUpdating
	}
	if s.DisplayAlerts != nil {
		a.displayAlerts = *s.DisplayAlerts
	}
	return nil
}

func (a *app) Books(ctx context.Context) ([]automation.Book, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return nil, err
	}
	out := make([]automation.Book, len(a.books))
	for i, bk := range a.books {
		out[i] = bk
	}
	return out, nil
}

func (a *app) ActiveBook(ctx context.Context) (automation.Book, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return nil, err
	}
	if a.active == nil {
		return nil, fmt.Errorf("application %d has no active workbook: %w", a.pid, automation.ErrWorkbookNotFound)
	}
	return a.active, nil
}

func (a *app) AddBook(ctx context.Context) (automation.Book, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.newBook(), nil
}

func (a *app) OpenBook(ctx context.Context, path string, opts automation.OpenOptions) (automation.Book, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("workbook path %q: %w", path, automation.ErrInvalidArgument)
	}

	a.b.mu.Lock()
	if err := a.check(); err != nil {
		a.b.mu.Unlock()
		return nil, err
	}
	for _, bk := range a.books {
		if bk.path == abs {
			a.active = bk
			a.b.mu.Unlock()
			return bk, nil
		}
	}
	a.b.mu.Unlock()

	// File I/O runs outside the lock.
	sheets, err := readXLSX(abs, opts.Password)
	if err != nil {
		return nil, err
	}

	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if err := a.check(); err != nil {
		return nil, err
	}
	bk := &book{app: a, name: filepath.Base(abs), path: abs, readOnly: opts.ReadOnly}
	for _, s := range sheets {
		s.book = bk
		bk.sheets = append(bk.sheets, s)
	}
	if len(bk.sheets) == 0 {
		bk.sheets = append(bk.sheets, newSheet(bk, "Sheet1"))
	}
	bk.active = bk.sheets[0]
	a.books = append(a.books, bk)
	a.active = bk
	return bk, nil
}

// newBook adds an unsaved workbook with one empty sheet. Callers hold the lock.
func (a *app) newBook() *book {
	a.bookSeq++
	bk := &book{app: a, name: fmt.Sprintf("Book%d", a.bookSeq)}
	sh := newSheet(bk, "Sheet1")
	bk.sheets = []*sheet{sh}
	bk.active = sh
	a.books = append(a.books, bk)
	a.active = bk
	return bk
}
