package newrows

import (
	"fmt"
	"slices"
)

// RowSet 有序的行集合，所有行共享同一组列
// 计划生成后 RowSet 只读，写入任务之间无需加锁
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// NewRowSet 创建并校验 RowSet
func NewRowSet(columns []string, rows [][]any) (RowSet, error) {
	rs := RowSet{Columns: columns, Rows: rows}
	if err := rs.Validate(); err != nil {
		return RowSet{}, err
	}
	return rs, nil
}

// Validate 校验列名唯一且每行列数一致
func (rs RowSet) Validate() error {
	if len(rs.Columns) == 0 {
		return configErrorf("columns", "row set has no columns")
	}
	seen := make(map[string]struct{}, len(rs.Columns))
	for _, c := range rs.Columns {
		if c == "" {
			return configErrorf("columns", "empty column name")
		}
		if _, dup := seen[c]; dup {
			return configErrorf("columns", "duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	for i, row := range rs.Rows {
		if len(row) != len(rs.Columns) {
			return configErrorf("rows", "row %d has %d values, want %d", i, len(row), len(rs.Columns))
		}
	}
	return nil
}

// Len 行数
func (rs RowSet) Len() int { return len(rs.Rows) }

// Slice 返回 [lo, hi) 的视图，与原 RowSet 共享底层行
func (rs RowSet) Slice(lo, hi int) RowSet {
	return RowSet{Columns: rs.Columns, Rows: rs.Rows[lo:hi:hi]}
}

// Clone 复制行切片与每行的值，调用方可安全修改副本
func (rs RowSet) Clone() RowSet {
	rows := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		rows[i] = slices.Clone(row)
	}
	return RowSet{Columns: slices.Clone(rs.Columns), Rows: rows}
}

// ColumnIndex 返回列的位置，不存在时为 -1
func (rs RowSet) ColumnIndex(name string) int {
	return slices.Index(rs.Columns, name)
}

// KeySpec 用于判定存在性的有序列名集合
type KeySpec []string

// Validate 校验 KeySpec 非空、无重复且属于 columns
func (k KeySpec) Validate(columns []string) error {
	if len(k) == 0 {
		return configErrorf("keys", "key spec is empty")
	}
	seen := make(map[string]struct{}, len(k))
	for _, col := range k {
		if _, dup := seen[col]; dup {
			return configErrorf("keys", "duplicate key column %q", col)
		}
		seen[col] = struct{}{}
		if !slices.Contains(columns, col) {
			return configErrorf("keys", "key column %q not in row set columns %v", col, columns)
		}
	}
	return nil
}

// indexes 返回 KeySpec 各列在 columns 中的位置
func (k KeySpec) indexes(columns []string) []int {
	idx := make([]int, len(k))
	for i, col := range k {
		idx[i] = slices.Index(columns, col)
	}
	return idx
}

func (k KeySpec) String() string { return fmt.Sprintf("%v", []string(k)) }
