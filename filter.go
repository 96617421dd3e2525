package newrows

import (
	"context"
	"time"
)

// KeyIndex 可选的已存在键索引（例如 Redis），替代对目标表键列的全表扫描
type KeyIndex interface {
	// ContainsKeys 返回与 hashes 等长的存在性结果
	ContainsKeys(ctx context.Context, table string, hashes []KeyHash) ([]bool, error)
	// AddKeys 记录已写入的键
	AddKeys(ctx context.Context, table string, hashes []KeyHash) error
}

// DuplicateFilter 去掉候选行中已存在于目标表的键
type DuplicateFilter struct {
	pool            ConnectionPool
	driver          SQLDriver
	keyIndex        KeyIndex
	metricsReporter MetricsReporter
}

// NewDuplicateFilter 创建过滤器
func NewDuplicateFilter(pool ConnectionPool, driver SQLDriver) *DuplicateFilter {
	return &DuplicateFilter{
		pool:            pool,
		driver:          driver,
		metricsReporter: NewNoopMetricsReporter(),
	}
}

// WithKeyIndex 使用外部键索引判断存在性
//
// 索引为空（实现了 Count 且返回 0）时仍扫描目标表，并把扫描到的键写入索引；
// 之后只查询索引，绕过本过滤器写入目标表的行不会被索引看到
func (f *DuplicateFilter) WithKeyIndex(index KeyIndex) *DuplicateFilter {
	f.keyIndex = index
	return f
}

// WithMetricsReporter 设置指标报告器
func (f *DuplicateFilter) WithMetricsReporter(metricsReporter MetricsReporter) *DuplicateFilter {
	if metricsReporter == nil {
		metricsReporter = NewNoopMetricsReporter()
	}
	f.metricsReporter = metricsReporter
	return f
}

// Filter 返回新的 RowSet：
//  1. 批内按键去重，同键保留最后一次出现的行
//  2. 读取目标表的键列（表不存在视为空）
//  3. 反连接，只保留目标表中不存在键的行
//
// 查询失败时返回 QueryError，不返回部分结果
func (f *DuplicateFilter) Filter(ctx context.Context, rows RowSet, table string, keys KeySpec) (RowSet, error) {
	startTime := time.Now()
	if err := keys.Validate(rows.Columns); err != nil {
		return RowSet{}, err
	}

	deduped, hashes := dedupLast(rows, keys)
	if deduped.Len() == 0 {
		f.metricsReporter.ObserveFilter(table, rows.Len(), 0, time.Since(startTime))
		return deduped, nil
	}

	exists, err := f.lookup(ctx, table, keys, hashes)
	if err != nil {
		return RowSet{}, err
	}

	out := RowSet{Columns: deduped.Columns, Rows: make([][]any, 0, deduped.Len())}
	for i, row := range deduped.Rows {
		if !exists[i] {
			out.Rows = append(out.Rows, row)
		}
	}

	f.metricsReporter.ObserveFilter(table, rows.Len(), out.Len(), time.Since(startTime))
	return out, nil
}

// keyCounter 可选扩展：KeyIndex 报告已记录的键数量
type keyCounter interface {
	Count(ctx context.Context, table string) (int64, error)
}

func (f *DuplicateFilter) lookup(ctx context.Context, table string, keys KeySpec, hashes []KeyHash) ([]bool, error) {
	seed := false
	if f.keyIndex != nil {
		counter, ok := f.keyIndex.(keyCounter)
		if !ok {
			return f.keyIndex.ContainsKeys(ctx, table, hashes)
		}
		n, err := counter.Count(ctx, table)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return f.keyIndex.ContainsKeys(ctx, table, hashes)
		}
		seed = true
	}

	existing, err := f.existingKeys(ctx, table, keys)
	if err != nil {
		return nil, err
	}
	if seed && len(existing) > 0 {
		stored := make([]KeyHash, 0, len(existing))
		for h := range existing {
			stored = append(stored, h)
		}
		if err := f.keyIndex.AddKeys(ctx, table, stored); err != nil {
			return nil, err
		}
	}
	out := make([]bool, len(hashes))
	for i, h := range hashes {
		_, out[i] = existing[h]
	}
	return out, nil
}

// existingKeys 一次顺序扫描目标表的键列
func (f *DuplicateFilter) existingKeys(ctx context.Context, table string, keys KeySpec) (map[KeyHash]struct{}, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	ok, err := tableExists(ctx, conn, f.driver, table)
	if err != nil {
		return nil, err
	}
	existing := make(map[KeyHash]struct{})
	if !ok {
		return existing, nil
	}

	query, err := f.driver.GenerateSelectKeysSQL(table, keys)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	enc := &keyEncoder{}
	values := make([]any, len(keys))
	ptrs := make([]any, len(keys))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}
		existing[enc.hashValues(values)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return existing, nil
}

func tableExists(ctx context.Context, conn Conn, driver SQLDriver, table string) (bool, error) {
	query, args := driver.GenerateTableExistsSQL(table)
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return false, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, &QueryError{Query: query, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return false, &QueryError{Query: query, Err: err}
	}
	return n > 0, nil
}

// DedupLast 批内按键去重，同键保留最后一次出现的行，结果保持原有相对顺序
// 返回新的 RowSet，不修改输入
func DedupLast(rows RowSet, keys KeySpec) (RowSet, error) {
	if err := keys.Validate(rows.Columns); err != nil {
		return RowSet{}, err
	}
	out, _ := dedupLast(rows, keys)
	return out, nil
}

func dedupLast(rows RowSet, keys KeySpec) (RowSet, []KeyHash) {
	enc := newKeyEncoder(keys, rows.Columns)
	seen := make(map[KeyHash]struct{}, rows.Len())
	keep := make([]int, 0, rows.Len())
	hashes := make([]KeyHash, 0, rows.Len())

	// 从后往前扫描，第一次遇到的就是最后一次出现
	for i := rows.Len() - 1; i >= 0; i-- {
		h := enc.hashRow(rows.Rows[i])
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		keep = append(keep, i)
		hashes = append(hashes, h)
	}

	out := RowSet{Columns: rows.Columns, Rows: make([][]any, len(keep))}
	outHashes := make([]KeyHash, len(keep))
	for j, i := range keep {
		pos := len(keep) - 1 - j
		out.Rows[pos] = rows.Rows[i]
		outHashes[pos] = hashes[j]
	}
	return out, outHashes
}

// hashRows 计算每行的键摘要
func hashRows(rows RowSet, keys KeySpec) []KeyHash {
	enc := newKeyEncoder(keys, rows.Columns)
	out := make([]KeyHash, rows.Len())
	for i, row := range rows.Rows {
		out[i] = enc.hashRow(row)
	}
	return out
}
