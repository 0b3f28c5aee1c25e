package methods

import (
	"context"

	"github.com/mnehpets/sheetrpc/automation"
)

// BookMethods is the book namespace. Workbooks are named by file name or full
// path; without pid every application is searched.
type BookMethods struct {
	svc *Service
}

type BookListParams struct {
	_   struct{} `jsonrpc:"list"`
	PID *int     `json:"pid"`
}

// List describes the open workbooks of one application, or of all of them
// when pid is omitted.
func (m *BookMethods) List(ctx context.Context, p BookListParams) ([]automation.BookInfo, error) {
	if p.PID != nil {
		return (&AppMethods{svc: m.svc}).GetBooks(ctx, AppGetBooksParams{PID: *p.PID})
	}
	apps, err := call(ctx, m.svc, automation.Unscoped, m.svc.resolver.Backend().Apps)
	if err != nil {
		return nil, err
	}
	out := []automation.BookInfo{}
	for _, a := range apps {
		infos, err := call(ctx, m.svc, a.PID(), func(ctx context.Context) ([]automation.BookInfo, error) {
			books, err := a.Books(ctx)
			if err != nil {
				return nil, err
			}
			return bookInfos(ctx, books)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, infos...)
	}
	return out, nil
}

type BookGetParams struct {
	_    struct{} `jsonrpc:"get"`
	Name string   `json:"name" rpc:"required" alias:"book"`
	PID  *int     `json:"pid"`
}

// Get describes one workbook.
func (m *BookMethods) Get(ctx context.Context, p BookGetParams) (automation.BookInfo, error) {
	return withBook(ctx, m.svc, p.PID, p.Name, func(ctx context.Context, bk automation.Book) (automation.BookInfo, error) {
		return bk.Info(ctx)
	})
}

type BookOpenParams struct {
	_        struct{} `jsonrpc:"open"`
	Path     string   `json:"path" rpc:"required"`
	PID      *int     `json:"pid"`
	ReadOnly bool     `json:"read_only" default:"false"`
	Password string   `json:"password"`
}

// Open opens a workbook file. Opening a file that is already open returns
// the open workbook.
func (m *BookMethods) Open(ctx context.Context, p BookOpenParams) (automation.BookInfo, error) {
	return withApp(ctx, m.svc, p.PID, func(ctx context.Context, a automation.App) (automation.BookInfo, error) {
		bk, err := a.OpenBook(ctx, p.Path, automation.OpenOptions{ReadOnly: p.ReadOnly, Password: p.Password})
		if err != nil {
			return automation.BookInfo{}, err
		}
		return bk.Info(ctx)
	})
}

type BookCreateParams struct {
	_   struct{} `jsonrpc:"create"`
	PID *int     `json:"pid"`
}

// Create adds an empty workbook.
func (m *BookMethods) Create(ctx context.Context, p BookCreateParams) (automation.BookInfo, error) {
	return withApp(ctx, m.svc, p.PID, func(ctx context.Context, a automation.App) (automation.BookInfo, error) {
		bk, err := a.AddBook(ctx)
		if err != nil {
			return automation.BookInfo{}, err
		}
		return bk.Info(ctx)
	})
}

type BookCloseParams struct {
	_    struct{} `jsonrpc:"close"`
	Name string   `json:"name" rpc:"required" alias:"book"`
	PID  *int     `json:"pid"`
	Save bool     `json:"save" default:"true"`
	Path string   `json:"path"`
}

// Close closes a workbook. With path the workbook is first saved there, and
// save is then ignored.
func (m *BookMethods) Close(ctx context.Context, p BookCloseParams) (bool, error) {
	return withBook(ctx, m.svc, p.PID, p.Name, func(ctx context.Context, bk automation.Book) (bool, error) {
		save := p.Save
		if p.Path != "" {
			if err := bk.Save(ctx, p.Path); err != nil {
				return false, err
			}
			save = false
		}
		if err := bk.Close(ctx, save); err != nil {
			return false, err
		}
		return true, nil
	})
}

type BookSaveParams struct {
	_    struct{} `jsonrpc:"save"`
	Name string   `json:"name" rpc:"required" alias:"book"`
	PID  *int     `json:"pid"`
	Path string   `json:"path"`
}

// Save writes a workbook, in place or to path.
func (m *BookMethods) Save(ctx context.Context, p BookSaveParams) (automation.BookInfo, error) {
	return withBook(ctx, m.svc, p.PID, p.Name, func(ctx context.Context, bk automation.Book) (automation.BookInfo, error) {
		if err := bk.Save(ctx, p.Path); err != nil {
			return automation.BookInfo{}, err
		}
		return bk.Info(ctx)
	})
}

type BookGetSheetsParams struct {
	_    struct{} `jsonrpc:"get_sheets"`
	Name string   `json:"name" rpc:"required" alias:"book"`
	PID  *int     `json:"pid"`
}

// GetSheets describes the sheets of a workbook in tab order.
func (m *BookMethods) GetSheets(ctx context.Context, p BookGetSheetsParams) ([]automation.SheetInfo, error) {
	return withBook(ctx, m.svc, p.PID, p.Name, func(ctx context.Context, bk automation.Book) ([]automation.SheetInfo, error) {
		sheets, err := bk.Sheets(ctx)
		if err != nil {
			return nil, err
		}
		return sheetInfos(ctx, sheets)
	})
}
