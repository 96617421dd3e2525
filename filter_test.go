package newrows_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"

	"github.com/rushairer/newrows"
	"github.com/rushairer/newrows/drivers/sqlite"
)

var abKeys = newrows.KeySpec{"A", "B"}

// setupComposite 建表并写入 existing
func setupComposite(t *testing.T, pool *newrows.SQLPool, table string, existing newrows.RowSet) {
	t.Helper()
	ctx := context.Background()
	if err := newrows.SetupTable(ctx, pool, sqlite.DefaultDriver, newrows.CompositeKeySchema(table)); err != nil {
		t.Fatalf("SetupTable: %v", err)
	}
	if existing.Len() == 0 {
		return
	}
	existing, err := newrows.DedupLast(existing, abKeys)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := newrows.Plan(existing.Len(), 100, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := newrows.NewWriter(pool, sqlite.DefaultDriver).WriteAll(ctx, existing, plan, table, newrows.Append); err != nil {
		t.Fatalf("seed rows: %v", err)
	}
}

func TestDuplicateFilter_KeepsLastWithinBatch(t *testing.T) {
	pool := openSQLite(t, 2)
	setupComposite(t, pool, "t", newrows.RowSet{})

	rows := composite(
		[4]int64{1, 1, 10, 0},
		[4]int64{2, 2, 0, 0},
		[4]int64{1, 1, 20, 0},
		[4]int64{3, 1, 0, 0},
	)
	got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(context.Background(), rows, "t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	want := composite(
		[4]int64{2, 2, 0, 0},
		[4]int64{1, 1, 20, 0},
		[4]int64{3, 1, 0, 0},
	)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter = %v, want %v", got.Rows, want.Rows)
	}
}

func TestDuplicateFilter_DropsStoredKeys(t *testing.T) {
	pool := openSQLite(t, 2)
	setupComposite(t, pool, "t", composite([4]int64{1, 1, 0, 0}, [4]int64{2, 5, 0, 0}))

	rows := composite(
		[4]int64{1, 1, 99, 99}, // 已存在
		[4]int64{1, 2, 0, 0},
		[4]int64{2, 5, 7, 7}, // 已存在
		[4]int64{5, 2, 0, 0},
	)
	got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(context.Background(), rows, "t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	want := composite([4]int64{1, 2, 0, 0}, [4]int64{5, 2, 0, 0})
	if !reflect.DeepEqual(got.Rows, want.Rows) {
		t.Fatalf("Filter = %v, want %v", got.Rows, want.Rows)
	}
	if rows.Len() != 4 {
		t.Fatal("input row set was modified")
	}
}

// 内存中的 int 与数据库返回的 int64 视为同一个键
func TestDuplicateFilter_NormalizesKeyTypes(t *testing.T) {
	pool := openSQLite(t, 1)
	setupComposite(t, pool, "t", composite([4]int64{7, 8, 0, 0}))

	rows := newrows.RowSet{Columns: []string{"A", "B", "C", "D"}, Rows: [][]any{{7, 8, 1, 1}, {uint16(7), int32(9), 1, 1}}}
	got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(context.Background(), rows, "t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got.Len() != 1 || got.Rows[0][1] != int32(9) {
		t.Fatalf("Filter = %v", got.Rows)
	}
}

// 过滤并写入后再次过滤同一批数据，结果为空
func TestDuplicateFilter_Idempotent(t *testing.T) {
	pool := openSQLite(t, 4)
	setupComposite(t, pool, "t", newrows.RowSet{})
	ctx := context.Background()
	filter := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver)

	rows := randomComposite(5000, 100)
	first, err := filter.Filter(ctx, rows, "t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	plan, _ := newrows.Plan(first.Len(), 100, 1000)
	if err := newrows.NewWriter(pool, sqlite.DefaultDriver).WriteAll(ctx, first, plan, "t", newrows.Append); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	second, err := filter.Filter(ctx, rows, "t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if second.Len() != 0 {
		t.Fatalf("second filter kept %d rows", second.Len())
	}
}

// 目标表不存在时只做批内去重
func TestDuplicateFilter_MissingTable(t *testing.T) {
	pool := openSQLite(t, 1)
	rows := composite([4]int64{1, 1, 0, 0}, [4]int64{1, 1, 1, 0}, [4]int64{2, 1, 0, 0})

	got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(context.Background(), rows, "missing", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("Filter kept %d rows, want 2", got.Len())
	}
}

// 目标表缺少键列时返回 QueryError，不返回部分结果
func TestDuplicateFilter_MissingKeyColumn(t *testing.T) {
	pool := openSQLite(t, 1)
	other := newrows.NewSchema("t", "X").WithColumnTypes(map[string]string{"X": "INTEGER"})
	ctx := context.Background()
	if err := newrows.SetupTable(ctx, pool, sqlite.DefaultDriver, other); err != nil {
		t.Fatalf("SetupTable: %v", err)
	}

	for _, seeded := range []bool{false, true} {
		if seeded {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			_, err = conn.ExecContext(ctx, "INSERT INTO t (X) VALUES (1)")
			conn.Release()
			if err != nil {
				t.Fatalf("seed: %v", err)
			}
		}

		got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(ctx, composite([4]int64{1, 1, 0, 0}), "t", abKeys)
		if !errors.Is(err, newrows.ErrQuery) {
			t.Fatalf("seeded=%v: expected ErrQuery, got %v", seeded, err)
		}
		var qe *newrows.QueryError
		if !errors.As(err, &qe) || qe.Query == "" {
			t.Fatalf("seeded=%v: expected *QueryError with the query text, got %#v", seeded, err)
		}
		if got.Len() != 0 {
			t.Fatalf("seeded=%v: partial result returned with error", seeded)
		}
	}
}

// schema.table 限定名同样能找到目标表并去掉已存在的键
func TestDuplicateFilter_QualifiedTableName(t *testing.T) {
	pool := openSQLite(t, 2)
	setupComposite(t, pool, "main.t", composite([4]int64{1, 1, 0, 0}))

	rows := composite([4]int64{1, 1, 5, 5}, [4]int64{2, 2, 0, 0})
	got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(context.Background(), rows, "main.t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	want := composite([4]int64{2, 2, 0, 0})
	if !reflect.DeepEqual(got.Rows, want.Rows) {
		t.Fatalf("Filter = %v, want %v", got.Rows, want.Rows)
	}
}

func TestDuplicateFilter_InvalidKeys(t *testing.T) {
	pool := openSQLite(t, 1)
	filter := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver)
	rows := composite([4]int64{1, 1, 0, 0})

	for _, keys := range []newrows.KeySpec{{}, {"A", "A"}, {"A", "Z"}} {
		if _, err := filter.Filter(context.Background(), rows, "t", keys); !errors.Is(err, newrows.ErrConfiguration) {
			t.Fatalf("keys %v: expected ErrConfiguration, got %v", keys, err)
		}
	}
}

// 输出中任意两行的键都不相同，且与存量键不相交
func TestDuplicateFilter_OutputKeysUnique(t *testing.T) {
	pool := openSQLite(t, 2)
	setupComposite(t, pool, "t", randomComposite(2000, 60))

	got, err := newrows.NewDuplicateFilter(pool, sqlite.DefaultDriver).Filter(context.Background(), randomComposite(20000, 60), "t", abKeys)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	seen := make(map[[2]int64]bool)
	for _, row := range got.Rows {
		k := [2]int64{row[0].(int64), row[1].(int64)}
		if seen[k] {
			t.Fatalf("key %v appears twice", k)
		}
		seen[k] = true
	}

	plan, _ := newrows.Plan(got.Len(), 100, 1000)
	if err := newrows.NewWriter(pool, sqlite.DefaultDriver).WriteAll(context.Background(), got, plan, "t", newrows.Append); err != nil {
		t.Fatalf("filtered rows collide with stored keys: %v", err)
	}
}

func TestDedupLast(t *testing.T) {
	rows := newrows.RowSet{
		Columns: []string{"k", "v"},
		Rows:    [][]any{{"a", 1}, {nil, 2}, {"b", 3}, {"a", 4}, {nil, 5}},
	}
	got, err := newrows.DedupLast(rows, newrows.KeySpec{"k"})
	if err != nil {
		t.Fatalf("DedupLast: %v", err)
	}
	want := [][]any{{"b", 3}, {"a", 4}, {nil, 5}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("DedupLast = %v, want %v", got.Rows, want)
	}
}

// nullableID 指针接收者的 Value 会解引用
type nullableID struct{ v int64 }

func (n *nullableID) Value() (driver.Value, error) { return n.v, nil }

// 带类型的 nil 指针按 NULL 处理，不调用 Value
func TestDedupLast_NilValuerPointer(t *testing.T) {
	rows := newrows.RowSet{
		Columns: []string{"k", "v"},
		Rows:    [][]any{{(*nullableID)(nil), 1}, {nil, 2}, {&nullableID{v: 7}, 3}, {int64(7), 4}},
	}
	got, err := newrows.DedupLast(rows, newrows.KeySpec{"k"})
	if err != nil {
		t.Fatalf("DedupLast: %v", err)
	}
	want := [][]any{{nil, 2}, {int64(7), 4}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("DedupLast = %v, want %v", got.Rows, want)
	}
}
