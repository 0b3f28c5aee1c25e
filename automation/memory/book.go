package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mnehpets/sheetrpc/automation"
)

type book struct {
	app      *app
	name     string
	path     string
	readOnly bool

	sheets   []*sheet
	active   *sheet
	sheetSeq int
	closed   bool
}

func (bk *book) check() error {
	if bk.closed {
		return fmt.Errorf("workbook %q is closed: %w", bk.name, automation.ErrWorkbookNotFound)
	}
	return nil
}

func (bk *book) Name() string {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	return bk.name
}

func (bk *book) FullName() string {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	return bk.fullName()
}

func (bk *book) fullName() string {
	if bk.path == "" {
		return bk.name
	}
	return bk.path
}

func (bk *book) App() automation.App { return bk.app }

func (bk *book) Info(ctx context.Context) (automation.BookInfo, error) {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	if err := bk.check(); err != nil {
		return automation.BookInfo{}, err
	}
	info := automation.BookInfo{
		Name:     bk.name,
		FullName: bk.fullName(),
		AppID:    bk.app.pid,
		Sheets:   make([]string, len(bk.sheets)),
	}
	if bk.path != "" {
		info.Path = filepath.Dir(bk.path)
	}
	for i, s := range bk.sheets {
		info.Sheets[i] = s.name
	}
	return info, nil
}

func (bk *book) Sheets(ctx context.Context) ([]automation.Sheet, error) {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	if err := bk.check(); err != nil {
		return nil, err
	}
	out := make([]automation.Sheet, len(bk.sheets))
	for i, s := range bk.sheets {
		out[i] = s
	}
	return out, nil
}

func (bk *book) AddSheet(ctx context.Context, name string, placement automation.Placement) (automation.Sheet, error) {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	if err := bk.check(); err != nil {
		return nil, err
	}
	if name == "" {
		name = bk.nextSheetName()
	} else if err := bk.validSheetName(name, nil); err != nil {
		return nil, err
	}

	at := len(bk.sheets)
	switch {
	case placement.Before != nil:
		i, err := bk.position(placement.Before)
		if err != nil {
			return nil, err
		}
		at = i
	case placement.After != nil:
		i, err := bk.position(placement.After)
		if err != nil {
			return nil, err
		}
		at = i + 1
	}

	sh := newSheet(bk, name)
	bk.sheets = append(bk.sheets, nil)
	copy(bk.sheets[at+1:], bk.sheets[at:])
	bk.sheets[at] = sh
	bk.active = sh
	return sh, nil
}

func (bk *book) position(ref automation.Sheet) (int, error) {
	for i, s := range bk.sheets {
		if automation.Sheet(s) == ref {
			return i, nil
		}
	}
	return 0, fmt.Errorf("reference sheet is not in workbook %q: %w", bk.name, automation.ErrSheetNotFound)
}

func (bk *book) nextSheetName() string {
	for {
		bk.sheetSeq++
		name := fmt.Sprintf("Sheet%d", bk.sheetSeq)
		if bk.findSheet(name) == nil {
			return name
		}
	}
}

func (bk *book) findSheet(name string) *sheet {
	for _, s := range bk.sheets {
		if strings.EqualFold(s.name, name) {
			return s
		}
	}
	return nil
}

// validSheetName applies the host's naming rules. self is the sheet being
// renamed, if any.
func (bk *book) validSheetName(name string, self *sheet) error {
	if strings.TrimSpace(name) == "" || len([]rune(name)) > 31 || strings.ContainsAny(name, `[]:*?/\`) {
		return fmt.Errorf("sheet name %q: %w", name, automation.ErrInvalidArgument)
	}
	if other := bk.findSheet(name); other != nil && other != self {
		return fmt.Errorf("sheet %q already exists in %q: %w", name, bk.name, automation.ErrInvalidArgument)
	}
	return nil
}

func (bk *book) Save(ctx context.Context, path string) error {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	if err := bk.check(); err != nil {
		return err
	}
	target := bk.path
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("workbook path %q: %w", path, automation.ErrInvalidArgument)
		}
		if filepath.Ext(abs) == "" {
			abs += ".xlsx"
		}
		target = abs
	}
	if target == "" {
		target = filepath.Join(bk.app.b.saveDir(), bk.name+".xlsx")
		abs, err := filepath.Abs(target)
		if err == nil {
			target = abs
		}
	}
	if bk.readOnly && target == bk.path {
		return fmt.Errorf("workbook %q is read-only: %w", bk.name, automation.ErrPermission)
	}
	if err := bk.writeXLSX(target); err != nil {
		return err
	}
	if target != bk.path {
		bk.path = target
		bk.name = filepath.Base(target)
		bk.readOnly = false
	}
	return nil
}

func (bk *book) Close(ctx context.Context, save bool) error {
	bk.app.b.mu.Lock()
	defer bk.app.b.mu.Unlock()
	if err := bk.check(); err != nil {
		return err
	}
	if save && bk.path != "" && !bk.readOnly {
		if err := bk.writeXLSX(bk.path); err != nil {
			return err
		}
	}
	a := bk.app
	for i, other := range a.books {
		if other == bk {
			a.books = append(a.books[:i], a.books[i+1:]...)
			break
		}
	}
	if a.active == bk {
		a.active = nil
		if n := len(a.books); n > 0 {
			a.active = a.books[n-1]
		}
	}
	bk.closed = true
	return nil
}
