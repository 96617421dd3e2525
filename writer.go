package newrows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// WriteMode 写入模式，一次 WriteAll 内所有分块一致
type WriteMode int

const (
	// Append 追加到已有表
	Append WriteMode = iota
	// Replace 先清空表再写入
	Replace
)

func (m WriteMode) String() string {
	switch m {
	case Append:
		return "append"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// ParseWriteMode 解析 "append" / "replace"
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return Append, nil
	case "replace":
		return Replace, nil
	default:
		return Append, configErrorf("write_mode", "unknown write mode %q", s)
	}
}

// TxConn 可选扩展：支持事务的连接，多语句分块与 Replace 清表在事务内完成
type TxConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer 并发分块写入器
// 架构：Writer -> ConnectionPool -> SQLDriver -> Database
//
//   - 首块在调用方 goroutine 同步写入，目标表配置错误时尽早失败
//   - 每个中间块一个 goroutine，各自从连接池租用连接；池耗尽时阻塞，池大小即并发上限
//   - 末块在调用方 goroutine 同步写入，与中间块并行
//   - 等待全部完成；失败的分块互不影响，最终汇总成一个 WriteError
type Writer struct {
	pool            ConnectionPool
	driver          SQLDriver
	retry           RetryConfig
	metricsReporter MetricsReporter
	logger          *log.Logger
}

// NewWriter 创建写入器
func NewWriter(pool ConnectionPool, driver SQLDriver) *Writer {
	return &Writer{
		pool:            pool,
		driver:          driver,
		retry:           RetryConfig{}.normalize(driver),
		metricsReporter: NewNoopMetricsReporter(),
	}
}

// WithRetryConfig 启用/配置分块重试
func (w *Writer) WithRetryConfig(cfg RetryConfig) *Writer {
	w.retry = cfg.normalize(w.driver)
	return w
}

// WithMetricsReporter 设置指标报告器
func (w *Writer) WithMetricsReporter(metricsReporter MetricsReporter) *Writer {
	if metricsReporter == nil {
		metricsReporter = NewNoopMetricsReporter()
	}
	w.metricsReporter = metricsReporter
	w.metricsReporter.SetPoolSize(w.pool.Size())
	return w
}

// WithLogger 设置日志（nil 表示不输出）
func (w *Writer) WithLogger(logger *log.Logger) *Writer {
	w.logger = logger
	return w
}

// WriteAll 按计划把 rows 写入 table
func (w *Writer) WriteAll(ctx context.Context, rows RowSet, plan ChunkPlan, table string, mode WriteMode) error {
	if table == "" {
		return configErrorf("table", "table name is empty")
	}
	if err := rows.Validate(); err != nil {
		return err
	}
	if err := plan.Validate(rows.Len()); err != nil {
		return err
	}

	startTime := time.Now()
	schema := NewSchema(table, rows.Columns...)

	// 首块同步写入，失败则不再启动并发任务
	if err := w.writeChunk(ctx, rows, schema, 0, plan[0], mode == Replace); err != nil {
		failures := []*ChunkError{{Index: 0, Range: plan[0], Err: err}}
		for i := 1; i < len(plan); i++ {
			if !plan[i].Empty() {
				failures = append(failures, &ChunkError{Index: i, Range: plan[i], Err: ErrChunkSkipped})
			}
		}
		w.metricsReporter.ObserveWriteAll(table, len(plan), time.Since(startTime), "fail")
		return &WriteError{Table: table, Failures: failures}
	}
	if len(plan) == 1 {
		w.metricsReporter.ObserveWriteAll(table, len(plan), time.Since(startTime), "success")
		return nil
	}

	errs := make([]error, len(plan))
	var wg sync.WaitGroup
	for i := 1; i < len(plan)-1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = w.writeChunk(ctx, rows, schema, i, plan[i], false)
		}(i)
	}

	last := len(plan) - 1
	errs[last] = w.writeChunk(ctx, rows, schema, last, plan[last], false)
	wg.Wait()

	var failures []*ChunkError
	for i, err := range errs {
		if err != nil {
			failures = append(failures, &ChunkError{Index: i, Range: plan[i], Err: err})
		}
	}
	if len(failures) > 0 {
		w.metricsReporter.ObserveWriteAll(table, len(plan), time.Since(startTime), "fail")
		return &WriteError{Table: table, Failures: failures}
	}
	w.metricsReporter.ObserveWriteAll(table, len(plan), time.Since(startTime), "success")
	return nil
}

// writeChunk 写入一个分块（含重试），空分块且无需清表时直接返回
// truncate 仅对首块为 true：Replace 模式在首块的连接上先清空表
func (w *Writer) writeChunk(ctx context.Context, rows RowSet, schema *Schema, index int, r Range, truncate bool) error {
	if r.Empty() && !truncate {
		return nil
	}
	data := rows.Rows[r.Start:r.End]

	startTime := time.Now()
	status := "success"
	var err error
	attempts := w.retry.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		err = w.writeOnce(ctx, schema, data, truncate)
		if err == nil {
			status = "success"
			break
		}

		// 错误分类与重试判定
		retryable, reason := w.retry.Classifier(err)
		if !w.retry.Enabled || attempt == attempts || !retryable {
			status = "fail"
			w.metricsReporter.IncError(schema.Name, "final:"+reason)
			break
		}
		w.metricsReporter.IncError(schema.Name, "retry:"+reason)

		if serr := sleepCtx(ctx, w.retry.backoff(attempt)); serr != nil {
			status = "fail"
			err = errors.Join(err, serr)
			break
		}
	}

	w.metricsReporter.ObserveChunkDuration(schema.Name, len(data), time.Since(startTime), status)
	if err != nil && w.logger != nil {
		w.logger.Printf("❌ chunk %d %s of %s failed: %v", index, r, schema.Name, err)
	}
	return err
}

// writeOnce 租用一个连接写完整个分块，无论成败都归还连接
func (w *Writer) writeOnce(ctx context.Context, schema *Schema, data [][]any, truncate bool) (err error) {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if copier, ok := w.driver.(RowCopier); ok {
		if truncate {
			if err := w.clearTable(ctx, conn, schema.Name); err != nil {
				return err
			}
		}
		if len(data) == 0 {
			return nil
		}
		return copier.CopyRows(ctx, conn, schema, data)
	}

	ranges := statementRanges(len(data), len(schema.Columns), w.driver.MaxPlaceholders())

	var ex execer = conn
	if tc, ok := conn.(TxConn); ok && (len(ranges) > 1 || truncate) {
		tx, berr := tc.BeginTx(ctx, nil)
		if berr != nil {
			return &ConnectionError{Op: "begin", Err: berr}
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if cerr := tx.Commit(); cerr != nil {
				err = fmt.Errorf("commit: %w", cerr)
			}
		}()
		ex = tx
	}

	if truncate {
		if err := w.clearTable(ctx, ex, schema.Name); err != nil {
			return err
		}
	}
	for _, r := range ranges {
		query, args, err := w.driver.GenerateInsertSQL(ctx, schema, data[r.Start:r.End])
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) clearTable(ctx context.Context, ex execer, table string) error {
	query := w.driver.GenerateClearSQL(table)
	if _, err := ex.ExecContext(ctx, query); err != nil {
		return &QueryError{Query: query, Err: err}
	}
	return nil
}
