package newrows

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"
)

// LoadResult 一次 Load 的统计
type LoadResult struct {
	Table      string
	Candidates int           // 输入行数
	Filtered   int           // 去重过滤后的行数
	Written    int           // 成功写入的行数
	Plan       ChunkPlan     // 分块计划
	Duration   time.Duration // 总耗时
}

// Loader 把 DuplicateFilter、Plan、Writer 串成一次完整的加载
type Loader struct {
	config   Config
	pool     ConnectionPool
	driver   SQLDriver
	filter   *DuplicateFilter
	writer   *Writer
	keyIndex KeyIndex
	logger   *log.Logger
}

// NewLoader 创建 Loader，配置非法时返回 ConfigurationError
func NewLoader(config Config, pool ConnectionPool, driver SQLDriver) (*Loader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, configErrorf("pool", "connection pool is nil")
	}
	if driver == nil {
		return nil, configErrorf("driver", "sql driver is nil")
	}
	return &Loader{
		config: config,
		pool:   pool,
		driver: driver,
		filter: NewDuplicateFilter(pool, driver),
		writer: NewWriter(pool, driver).WithRetryConfig(config.Retry),
	}, nil
}

// WithMetricsReporter 设置指标报告器（同时作用于 filter 与 writer）
func (l *Loader) WithMetricsReporter(metricsReporter MetricsReporter) *Loader {
	l.filter.WithMetricsReporter(metricsReporter)
	l.writer.WithMetricsReporter(metricsReporter)
	return l
}

// WithKeyIndex 使用外部键索引，写入成功的键会被记录进索引
func (l *Loader) WithKeyIndex(index KeyIndex) *Loader {
	l.keyIndex = index
	l.filter.WithKeyIndex(index)
	return l
}

// WithLogger 设置日志
func (l *Loader) WithLogger(logger *log.Logger) *Loader {
	l.logger = logger
	l.writer.WithLogger(logger)
	return l
}

// Config 当前配置
func (l *Loader) Config() Config { return l.config }

// Load 过滤（配置了 KeySpec 时）→ 分块 → 并发写入
// 写入部分失败时返回 WriteError，LoadResult.Written 只统计成功的行
func (l *Loader) Load(ctx context.Context, rows RowSet, table string) (LoadResult, error) {
	startTime := time.Now()
	result := LoadResult{Table: table, Candidates: rows.Len()}
	if err := rows.Validate(); err != nil {
		return result, err
	}

	filtered := rows
	switch {
	case len(l.config.KeySpec) == 0:
	case l.config.WriteMode == Replace:
		// 目标表会被清空，只做批内去重
		var err error
		if filtered, err = DedupLast(rows, l.config.KeySpec); err != nil {
			return result, err
		}
		if r, ok := l.keyIndex.(interface {
			Reset(ctx context.Context, table string) error
		}); ok {
			if err := r.Reset(ctx, table); err != nil {
				return result, err
			}
		}
	default:
		var err error
		if filtered, err = l.filter.Filter(ctx, rows, table, l.config.KeySpec); err != nil {
			return result, err
		}
	}
	result.Filtered = filtered.Len()

	plan, err := Plan(filtered.Len(), l.config.InitialChunkSize, l.config.SteadyChunkSize)
	if err != nil {
		return result, err
	}
	result.Plan = plan

	err = l.writer.WriteAll(ctx, filtered, plan, table, l.config.WriteMode)
	result.Written = filtered.Len() - failedRows(err)
	result.Duration = time.Since(startTime)

	if l.keyIndex != nil && len(l.config.KeySpec) > 0 {
		if ierr := l.recordKeys(ctx, filtered, table, err); ierr != nil {
			err = errors.Join(err, ierr)
		}
	}
	if l.logger != nil {
		l.logger.Printf("📊 %s: candidates=%d filtered=%d written=%d chunks=%d in %v",
			table, result.Candidates, result.Filtered, result.Written, len(plan), result.Duration)
	}
	return result, err
}

// recordKeys 把成功写入的行的键记录到键索引
func (l *Loader) recordKeys(ctx context.Context, rows RowSet, table string, writeErr error) error {
	var failed []Range
	var we *WriteError
	if errors.As(writeErr, &we) {
		failed = we.Ranges()
	} else if writeErr != nil {
		return nil
	}

	hashes := hashRows(rows, l.config.KeySpec)
	written := hashes[:0:0]
	for i, h := range hashes {
		if !slices.ContainsFunc(failed, func(r Range) bool { return i >= r.Start && i < r.End }) {
			written = append(written, h)
		}
	}
	if len(written) == 0 {
		return nil
	}
	return l.keyIndex.AddKeys(ctx, table, written)
}

func failedRows(err error) int {
	var we *WriteError
	if !errors.As(err, &we) {
		return 0
	}
	n := 0
	for _, r := range we.Ranges() {
		n += r.Len()
	}
	return n
}

// LoadViaStaging 暂存表方式：批内去重后整体写入暂存表，
// 再用一条 LEFT JOIN 反连接语句把新键插入目标表，最后删除暂存表
func (l *Loader) LoadViaStaging(ctx context.Context, rows RowSet, table string) (LoadResult, error) {
	startTime := time.Now()
	result := LoadResult{Table: table, Candidates: rows.Len()}
	if len(l.config.KeySpec) == 0 {
		return result, configErrorf("keys", "staging load requires a key spec")
	}

	deduped, err := DedupLast(rows, l.config.KeySpec)
	if err != nil {
		return result, err
	}
	result.Filtered = deduped.Len()

	staging := table + "_staging"
	plan, err := Plan(deduped.Len(), l.config.InitialChunkSize, l.config.SteadyChunkSize)
	if err != nil {
		return result, err
	}
	result.Plan = plan

	if err := l.createStaging(ctx, table, staging); err != nil {
		return result, err
	}
	defer func() {
		if derr := DropTable(context.WithoutCancel(ctx), l.pool, l.driver, staging); derr != nil && l.logger != nil {
			l.logger.Printf("⚠️ drop staging table %s: %v", staging, derr)
		}
	}()

	if err := l.writer.WriteAll(ctx, deduped, plan, staging, Append); err != nil {
		return result, err
	}

	query, err := l.driver.GenerateAntiJoinInsertSQL(table, staging, deduped.Columns, l.config.KeySpec)
	if err != nil {
		return result, err
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return result, err
	}
	defer conn.Release()

	res, err := conn.ExecContext(ctx, query)
	if err != nil {
		return result, &QueryError{Query: query, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Written = int(n)
	}
	result.Duration = time.Since(startTime)

	// 合并后暂存表中的每个键都已在目标表中
	if l.keyIndex != nil {
		if err := l.keyIndex.AddKeys(ctx, table, hashRows(deduped, l.config.KeySpec)); err != nil {
			return result, err
		}
	}
	if l.logger != nil {
		l.logger.Printf("📊 %s (staging): candidates=%d filtered=%d written=%d in %v",
			table, result.Candidates, result.Filtered, result.Written, result.Duration)
	}
	return result, nil
}

// createStaging 以目标表结构创建空的暂存表
func (l *Loader) createStaging(ctx context.Context, table, staging string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	drop := l.driver.GenerateDropSQL(staging)
	if _, err := conn.ExecContext(ctx, drop); err != nil {
		return &QueryError{Query: drop, Err: err}
	}
	create := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s WHERE 1 = 0",
		l.driver.QuoteIdentifier(staging), l.driver.QuoteIdentifier(table))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return &QueryError{Query: create, Err: err}
	}
	return nil
}
