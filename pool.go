package newrows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Conn 从连接池租用的独占连接，写完一个分块后归还
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// Release 归还连接，可重复调用
	Release()
}

// RawConn 可选扩展：暴露底层驱动连接（pgx COPY 使用）
type RawConn interface {
	Raw(f func(driverConn any) error) error
}

// ConnectionPool 有界连接池，池大小是并发写入的唯一限流手段
type ConnectionPool interface {
	// Acquire 获取连接；池耗尽时阻塞，直到有连接归还或 ctx 结束
	Acquire(ctx context.Context) (Conn, error)
	Size() int
}

var _ ConnectionPool = (*SQLPool)(nil)

// SQLPool 基于 *sql.DB 的连接池
// 用信号量控制租约数，同时把 MaxOpenConns 设为相同上限，保证不会超过数据库连接限制
type SQLPool struct {
	db             *sql.DB
	sem            *semaphore.Weighted
	size           int
	acquireTimeout time.Duration
	leased         atomic.Int64
	closed         atomic.Bool

	metricsReporter MetricsReporter
}

// NewSQLPool 用已打开的 *sql.DB 创建连接池（调用方负责 Open，Close 由连接池负责）
func NewSQLPool(db *sql.DB, size int) (*SQLPool, error) {
	if db == nil {
		return nil, configErrorf("pool", "db is nil")
	}
	if size < 1 {
		return nil, configErrorf("pool_size", "must be >= 1, got %d", size)
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	return &SQLPool{
		db:              db,
		sem:             semaphore.NewWeighted(int64(size)),
		size:            size,
		metricsReporter: NewNoopMetricsReporter(),
	}, nil
}

// OpenSQLPool 打开数据库并创建连接池
func OpenSQLPool(ctx context.Context, driverName, dsn string, size int) (*SQLPool, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	pool, err := NewSQLPool(db, size)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}
	return pool, nil
}

// WithAcquireTimeout 设置获取连接的最长等待时间（<= 0 表示只受 ctx 约束）
func (p *SQLPool) WithAcquireTimeout(d time.Duration) *SQLPool {
	p.acquireTimeout = d
	return p
}

// WithMetricsReporter 设置指标报告器
func (p *SQLPool) WithMetricsReporter(metricsReporter MetricsReporter) *SQLPool {
	if metricsReporter == nil {
		metricsReporter = NewNoopMetricsReporter()
	}
	p.metricsReporter = metricsReporter
	p.metricsReporter.SetPoolSize(p.size)
	return p
}

// DB 底层 *sql.DB
func (p *SQLPool) DB() *sql.DB { return p.db }

// Size 池大小
func (p *SQLPool) Size() int { return p.size }

// Leased 当前租出的连接数
func (p *SQLPool) Leased() int { return int(p.leased.Load()) }

// Acquire 获取连接
func (p *SQLPool) Acquire(ctx context.Context) (Conn, error) {
	if p.closed.Load() {
		return nil, &ConnectionError{Op: "acquire", Err: errors.New("pool is closed")}
	}

	waitCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("pool exhausted after %s: %w", p.acquireTimeout, err)
		}
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}
	p.leased.Add(1)
	p.metricsReporter.IncLeased()
	return &sqlConn{conn: conn, pool: p}, nil
}

// Close 关闭连接池；仍在租用中的连接归还后失效
func (p *SQLPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
	pool *SQLPool
	once sync.Once
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *sqlConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *sqlConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *sqlConn) Raw(f func(driverConn any) error) error {
	return c.conn.Raw(f)
}

func (c *sqlConn) Release() {
	c.once.Do(func() {
		_ = c.conn.Close()
		c.pool.leased.Add(-1)
		c.pool.metricsReporter.DecLeased()
		c.pool.sem.Release(1)
	})
}
