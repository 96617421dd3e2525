package newrows_test

import (
	"errors"
	"testing"

	"github.com/rushairer/newrows"
)

func TestNewRowSet_Validate(t *testing.T) {
	if _, err := newrows.NewRowSet([]string{"a", "b"}, [][]any{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("NewRowSet: %v", err)
	}
	bad := map[string]struct {
		cols []string
		rows [][]any
	}{
		"no-columns":   {nil, nil},
		"dup-columns":  {[]string{"a", "a"}, nil},
		"empty-column": {[]string{"a", ""}, nil},
		"ragged":       {[]string{"a", "b"}, [][]any{{1, 2}, {3}}},
	}
	for name, tc := range bad {
		if _, err := newrows.NewRowSet(tc.cols, tc.rows); !errors.Is(err, newrows.ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestRowSet_SliceAndClone(t *testing.T) {
	rs := sequentialRows(10)
	part := rs.Slice(2, 5)
	if part.Len() != 3 || part.Rows[0][0] != int64(2) {
		t.Fatalf("Slice = %v", part.Rows)
	}
	// 视图不能越界追加到原 RowSet
	part.Rows = append(part.Rows, []any{int64(99), "x"})
	if rs.Rows[5][0] != int64(5) {
		t.Fatal("append through a slice view overwrote the parent")
	}

	c := rs.Clone()
	c.Rows[0][0] = int64(-1)
	if rs.Rows[0][0] != int64(0) {
		t.Fatal("Clone shares row values")
	}
	if rs.ColumnIndex("val") != 1 || rs.ColumnIndex("nope") != -1 {
		t.Fatal("ColumnIndex")
	}
}

func TestKeySpec(t *testing.T) {
	cols := []string{"A", "B", "C"}
	if err := (newrows.KeySpec{"B", "A"}).Validate(cols); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := newrows.ParseKeySpec("A,,B"); len(got) != 2 || got.String() != "[A B]" {
		t.Fatalf("ParseKeySpec = %v", got)
	}
}
