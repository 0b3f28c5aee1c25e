package automation

import (
	"errors"
	"reflect"
	"testing"
)

func TestFrameFromGridHeader(t *testing.T) {
	grid := [][]any{
		{"name", "qty"},
		{"apple", 3.0},
		{"pear", 5.0},
	}
	f := FrameFromGrid(grid, true, false)
	want := Frame{
		Type:    FrameType,
		Index:   []any{0, 1},
		Columns: []any{"name", "qty"},
		Data:    [][]any{{"apple", 3.0}, {"pear", 5.0}},
	}
	if !reflect.DeepEqual(f, want) {
		t.Fatalf("got %#v\nwant %#v", f, want)
	}
}

func TestFrameFromGridIndex(t *testing.T) {
	grid := [][]any{
		{nil, "qty"},
		{"apple", 3.0},
	}
	f := FrameFromGrid(grid, true, true)
	if !reflect.DeepEqual(f.Index, []any{"apple"}) {
		t.Errorf("index = %#v", f.Index)
	}
	if !reflect.DeepEqual(f.Columns, []any{"qty"}) {
		t.Errorf("columns = %#v", f.Columns)
	}
	if !reflect.DeepEqual(f.Data, [][]any{{3.0}}) {
		t.Errorf("data = %#v", f.Data)
	}
}

func TestFrameFromGridNoHeader(t *testing.T) {
	f := FrameFromGrid([][]any{{1.0, 2.0}}, false, false)
	if !reflect.DeepEqual(f.Columns, []any{0, 1}) {
		t.Errorf("columns = %#v", f.Columns)
	}
}

func TestFrameGridRoundTrip(t *testing.T) {
	f := Frame{
		Type:    FrameType,
		Index:   []any{"r1", "r2"},
		Columns: []any{"a", "b"},
		Data:    [][]any{{1.0, 2.0}, {3.0, 4.0}},
	}
	grid, err := f.Grid(true, true)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	want := [][]any{{nil, "a", "b"}, {"r1", 1.0, 2.0}, {"r2", 3.0, 4.0}}
	if !reflect.DeepEqual(grid, want) {
		t.Fatalf("got %#v", grid)
	}
	back := FrameFromGrid(grid, true, true)
	if !reflect.DeepEqual(back, f) {
		t.Fatalf("round trip got %#v", back)
	}
}

func TestFrameGridRejectsRaggedRows(t *testing.T) {
	f := Frame{Columns: []any{"a", "b"}, Data: [][]any{{1.0}}}
	if _, err := f.Grid(true, false); !errors.Is(err, ErrRange) {
		t.Fatalf("expected ErrRange, got %v", err)
	}
	f = Frame{Index: []any{"x"}, Columns: []any{"a"}, Data: [][]any{{1.0}, {2.0}}}
	if _, err := f.Grid(true, true); !errors.Is(err, ErrRange) {
		t.Fatalf("expected ErrRange for index mismatch, got %v", err)
	}
}
