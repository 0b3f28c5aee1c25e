package methods

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/automation/memory"
	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/resolve"
)

// overlap records the most instance calls seen in flight at once per pid.
type overlap struct {
	mu     sync.Mutex
	active map[int]int
	max    map[int]int
}

func (o *overlap) enter(pid int) func() {
	o.mu.Lock()
	o.active[pid]++
	if o.active[pid] > o.max[pid] {
		o.max[pid] = o.active[pid]
	}
	o.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	return func() {
		o.mu.Lock()
		o.active[pid]--
		o.mu.Unlock()
	}
}

type countingBackend struct {
	*memory.Backend
	o *overlap
}

func (b countingBackend) wrap(a automation.App) automation.App { return countingApp{a, b.o} }

func (b countingBackend) Apps(ctx context.Context) ([]automation.App, error) {
	apps, err := b.Backend.Apps(ctx)
	for i, a := range apps {
		apps[i] = b.wrap(a)
	}
	return apps, err
}

func (b countingBackend) App(ctx context.Context, pid int) (automation.App, error) {
	a, err := b.Backend.App(ctx, pid)
	if err != nil {
		return nil, err
	}
	return b.wrap(a), nil
}

func (b countingBackend) ActiveApp(ctx context.Context) (automation.App, error) {
	a, err := b.Backend.ActiveApp(ctx)
	if err != nil {
		return nil, err
	}
	return b.wrap(a), nil
}

type countingApp struct {
	automation.App
	o *overlap
}

func (a countingApp) Info(ctx context.Context) (automation.AppInfo, error) {
	defer a.o.enter(a.PID())()
	return a.App.Info(ctx)
}

func (a countingApp) Books(ctx context.Context) ([]automation.Book, error) {
	defer a.o.enter(a.PID())()
	books, err := a.App.Books(ctx)
	for i, bk := range books {
		books[i] = countingBook{bk, a.o}
	}
	return books, err
}

type countingBook struct {
	automation.Book
	o *overlap
}

func (b countingBook) Info(ctx context.Context) (automation.BookInfo, error) {
	defer b.o.enter(b.App().PID())()
	return b.Book.Info(ctx)
}

func (b countingBook) Sheets(ctx context.Context) ([]automation.Sheet, error) {
	defer b.o.enter(b.App().PID())()
	return b.Book.Sheets(ctx)
}

func TestResolutionHoldsApplicationSlot(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(memory.Options{Dir: t.TempDir()})
	for i := 0; i < 2; i++ {
		if _, err := mem.CreateApp(ctx, automation.AppOptions{AddBook: true}); err != nil {
			t.Fatal(err)
		}
	}
	apps, _ := mem.Apps(ctx)
	pid := apps[1].PID()

	o := &overlap{active: map[int]int{}, max: map[int]int{}}
	guard := automation.NewGuard(0)
	reg := jsonrpc.NewRegistry()
	Register(reg, NewService(resolve.New(countingBackend{mem, o}, "", resolve.WithGuard(guard))))
	d := jsonrpc.NewDispatcher(reg, jsonrpc.WithTranslator(TranslateError), jsonrpc.WithBatchConcurrency(8))

	var items []string
	for i := 0; i < 4; i++ {
		items = append(items,
			fmt.Sprintf(`{"jsonrpc":"2.0","method":"app.get","params":{"pid":%d},"id":"a%d"}`, pid, i),
			fmt.Sprintf(`{"jsonrpc":"2.0","method":"book.get","params":{"name":"Book1"},"id":"b%d"}`, i),
			fmt.Sprintf(`{"jsonrpc":"2.0","method":"sheet.list","params":{"book":"Book1"},"id":"s%d"}`, i),
			`{"jsonrpc":"2.0","method":"book.list","id":null}`,
		)
	}
	reply := d.Handle(ctx, []byte("["+strings.Join(items, ",")+"]"))
	if len(reply.Responses) != len(items) {
		t.Fatalf("got %d responses, want %d", len(reply.Responses), len(items))
	}
	for _, resp := range reply.Responses {
		if resp.Error != nil {
			raw, _ := json.Marshal(resp)
			t.Fatalf("unexpected error: %s", raw)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for p, n := range o.max {
		if n > 1 {
			t.Errorf("pid %d: %d instance calls in flight at once", p, n)
		}
	}
	if o.max[pid] == 0 {
		t.Fatal("no instance calls recorded")
	}
}

func TestRangeSizeLimit(t *testing.T) {
	backend := memory.New(memory.Options{Dir: t.TempDir()})
	reg := jsonrpc.NewRegistry()
	Register(reg, NewService(resolve.New(backend, "", resolve.WithMaxCells(100))))
	h := &harness{t: t, backend: backend, guard: automation.NewGuard(0),
		d: jsonrpc.NewDispatcher(reg, jsonrpc.WithTranslator(TranslateError))}
	h.createApp()

	target := map[string]any{"book": "Book1", "sheet": "Sheet1", "address": "A1:J10"}
	h.must("range.get_value", target, nil)

	target["address"] = "A1:XFD200"
	h.fails("range.get_value", target, CodeRangeError)
	h.fails("range.set_value", map[string]any{"book": "Book1", "sheet": "Sheet1", "address": "A1:XFD1048576", "value": 1}, CodeRangeError)

	h.must("range.set_value", map[string]any{"book": "Book1", "sheet": "Sheet1", "address": "A1", "value": 1}, nil)
	h.must("range.set_value", map[string]any{"book": "Book1", "sheet": "Sheet1", "address": "Z50", "value": 2}, nil)
	h.fails("sheet.get_used_range", map[string]any{"book": "Book1", "sheet": "Sheet1"}, CodeRangeError)
}
