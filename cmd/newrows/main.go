// newrows 基准程序：随机生成带复合键的数据，分别用
// 过滤+并发分块写入（filter）和暂存表反连接（staging）两种方式加载，输出耗时与行数
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rushairer/newrows"
	mysqldriver "github.com/rushairer/newrows/drivers/mysql"
	pgxdriver "github.com/rushairer/newrows/drivers/pgx"
	"github.com/rushairer/newrows/drivers/postgresql"
	"github.com/rushairer/newrows/drivers/sqlite"
	"github.com/rushairer/newrows/monitoring"
)

func main() {
	log.Println("🚀 Starting newrows benchmark...")

	config, err := loadConfig()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := &Report{
		Timestamp: time.Now(),
		GoVersion: runtime.Version(),
		Config:    config,
	}

	g, gctx := errgroup.WithContext(ctx)
	benchCtx, cancelMetrics := context.WithCancel(gctx)

	var metrics *monitoring.Metrics
	if config.MetricsAddr != "" {
		metrics = monitoring.NewMetrics(monitoring.Options{IncludeTable: true, RuntimeCollectors: true})
		server := monitoring.NewServer(config.MetricsAddr, metrics)
		g.Go(func() error { return server.Run(benchCtx) })
	}

	g.Go(func() error {
		defer cancelMetrics()
		return run(benchCtx, config, metrics, report)
	})

	err = g.Wait()
	printSummary(report)
	if filename, serr := saveReport(report, config.ReportDir); serr != nil {
		log.Printf("❌ Failed to save report: %v", serr)
	} else {
		log.Printf("📊 Report saved to %s", filename)
	}
	if err != nil {
		log.Printf("❌ Benchmark failed: %v", err)
		os.Exit(1)
	}
	for _, s := range report.Strategies {
		if !s.Success {
			os.Exit(1)
		}
	}
}

func openPool(ctx context.Context, name, dsn string, size int) (*newrows.SQLPool, newrows.SQLDriver, error) {
	var (
		pool   *newrows.SQLPool
		driver newrows.SQLDriver
		err    error
	)
	switch name {
	case "sqlite", "sqlite3":
		pool, err = sqlite.Open(ctx, dsn, size)
		driver = sqlite.DefaultDriver
	case "mysql":
		pool, err = mysqldriver.Open(ctx, dsn, size)
		driver = mysqldriver.DefaultDriver
	case "postgres", "postgresql":
		pool, err = postgresql.Open(ctx, dsn, size)
		driver = postgresql.DefaultDriver
	case "pgx":
		pool, err = pgxdriver.Open(ctx, dsn, size)
		driver = pgxdriver.DefaultDriver
	default:
		return nil, nil, fmt.Errorf("unknown driver %q (sqlite, mysql, postgresql, pgx)", name)
	}
	if err != nil {
		return nil, nil, err
	}
	return pool, driver, nil
}

func run(ctx context.Context, config BenchConfig, metrics *monitoring.Metrics, report *Report) error {
	pool, driver, err := openPool(ctx, config.Driver, config.DSN, config.Loader.PoolSize)
	if err != nil {
		return err
	}
	defer pool.Close()
	pool.WithAcquireTimeout(config.Loader.AcquireTimeout)

	loader, err := newrows.NewLoader(config.Loader, pool, driver)
	if err != nil {
		return err
	}
	loader.WithLogger(log.Default())

	if metrics != nil {
		reporter := monitoring.NewReporter(metrics, driver.Name())
		pool.WithMetricsReporter(reporter)
		loader.WithMetricsReporter(reporter)
	}

	var keyIndex *newrows.RedisKeyIndex
	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return &newrows.ConnectionError{Op: "redis ping", Err: err}
		}
		keyIndex = newrows.NewRedisKeyIndex(client)
		loader.WithKeyIndex(keyIndex)
		log.Printf("🔑 Using Redis key index at %s", config.RedisAddr)
	}

	strategies := []struct {
		name string
		load func(context.Context, newrows.RowSet, string) (newrows.LoadResult, error)
	}{
		{"filter", loader.Load},
		{"staging", loader.LoadViaStaging},
	}

	for _, s := range strategies {
		log.Printf("🔧 Setting up table %s", config.Table)
		if err := newrows.SetupTable(ctx, pool, driver, newrows.CompositeKeySchema(config.Table)); err != nil {
			return err
		}
		if keyIndex != nil {
			if err := keyIndex.Reset(ctx, config.Table); err != nil {
				return err
			}
		}

		result := runStrategy(ctx, config, s.name, s.load)
		if n, err := newrows.CountRows(ctx, pool, driver, config.Table); err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.Success = false
		} else {
			result.RowsInTable = n
			if n != result.TotalWritten {
				result.Errors = append(result.Errors, fmt.Sprintf("table has %d rows, loops reported %d", n, result.TotalWritten))
				result.Success = false
			}
		}
		log.Printf("✅ %s: inserted %d new rows into %s in %v", s.name, result.RowsInTable, config.Table, result.Duration)
		report.Strategies = append(report.Strategies, result)

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func runStrategy(ctx context.Context, config BenchConfig, name string,
	load func(context.Context, newrows.RowSet, string) (newrows.LoadResult, error)) StrategyResult {

	result := StrategyResult{Strategy: name, Errors: []string{}, Success: true}
	startTime := time.Now()

	for i := 0; i < config.Loops && ctx.Err() == nil; i++ {
		log.Printf("🏃 [%s] running test %d", name, i)
		rows := randomRows(config.RowsPerLoop, config.MaxValue)

		res, err := load(ctx, rows, config.Table)
		loop := LoopResult{
			Loop:       i,
			Candidates: res.Candidates,
			Filtered:   res.Filtered,
			Written:    res.Written,
			Chunks:     len(res.Plan),
			Duration:   res.Duration,
		}
		if err != nil {
			loop.Error = err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("loop %d: %v", i, err))
			result.Success = false
			log.Printf("❌ [%s] loop %d: %v", name, i, err)
		}
		result.TotalWritten += int64(res.Written)
		result.Loops = append(result.Loops, loop)
		log.Printf("   row count after drop db duplicates is now: %d, completed loop in %v", res.Filtered, res.Duration)
	}

	result.Duration = time.Since(startTime)
	if secs := result.Duration.Seconds(); secs > 0 {
		result.RowsPerSec = float64(result.TotalWritten) / secs
	}
	return result
}

// randomRows 生成 n 行 A,B,C,D 随机整数，取值 [0, maxValue)
func randomRows(n, maxValue int) newrows.RowSet {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{
			int64(rand.IntN(maxValue)),
			int64(rand.IntN(maxValue)),
			int64(rand.IntN(maxValue)),
			int64(rand.IntN(maxValue)),
		}
	}
	return newrows.RowSet{Columns: []string{"A", "B", "C", "D"}, Rows: rows}
}
