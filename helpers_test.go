package newrows_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rushairer/newrows"
	"github.com/rushairer/newrows/drivers/sqlite"
)

// fakeResult 模拟SQL执行结果
type fakeResult struct{ rows int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

// execRecord 一次 ExecContext 调用
type execRecord struct {
	seq   int64
	query string
	args  []any
	done  int64 // 完成时的序号
}

// fakePool 有界连接池的内存实现，记录所有语句与最大并发租约数
type fakePool struct {
	sem       chan struct{}
	leased    atomic.Int64
	maxLeased atomic.Int64
	seq       atomic.Int64

	// delay 每条语句的模拟耗时
	delay time.Duration
	// hook 返回非 nil 时该语句失败
	hook func(query string, args []any) error

	mu    sync.Mutex
	execs []*execRecord
}

func newFakePool(size int) *fakePool {
	return &fakePool{sem: make(chan struct{}, size)}
}

func (p *fakePool) Size() int { return cap(p.sem) }

func (p *fakePool) Acquire(ctx context.Context) (newrows.Conn, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &newrows.ConnectionError{Op: "acquire", Err: ctx.Err()}
	}
	n := p.leased.Add(1)
	for {
		cur := p.maxLeased.Load()
		if n <= cur || p.maxLeased.CompareAndSwap(cur, n) {
			break
		}
	}
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) records() []*execRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*execRecord, len(p.execs))
	copy(out, p.execs)
	return out
}

// inserts 返回以 firstArg 开头的 INSERT 语句次数
func (p *fakePool) inserts(firstArg any) int {
	n := 0
	for _, r := range p.records() {
		if strings.HasPrefix(r.query, "INSERT") && len(r.args) > 0 && r.args[0] == firstArg {
			n++
		}
	}
	return n
}

// insertedRows 成功执行的 INSERT 携带的行数
func (p *fakePool) insertedRows(columns int) int {
	n := 0
	for _, r := range p.records() {
		if strings.HasPrefix(r.query, "INSERT") && r.done > 0 {
			n += len(r.args) / columns
		}
	}
	return n
}

type fakeConn struct {
	pool *fakePool
	once sync.Once
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	p := c.pool
	rec := &execRecord{seq: p.seq.Add(1), query: query, args: args}
	p.mu.Lock()
	p.execs = append(p.execs, rec)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.hook != nil {
		if err := p.hook(query, args); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	rec.done = p.seq.Add(1)
	p.mu.Unlock()
	return fakeResult{rows: int64(len(args))}, nil
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, &newrows.QueryError{Query: query, Err: sql.ErrConnDone}
}

func (c *fakeConn) Release() {
	c.once.Do(func() {
		c.pool.leased.Add(-1)
		<-c.pool.sem
	})
}

// recordingReporter 记录 IncError 与租约数的指标报告器
type recordingReporter struct {
	newrows.NoopMetricsReporter

	mu     sync.Mutex
	errors []string
	chunks map[string]int
}

func (r *recordingReporter) IncError(table, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, kind)
}

func (r *recordingReporter) ObserveChunkDuration(table string, rows int, d time.Duration, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chunks == nil {
		r.chunks = map[string]int{}
	}
	r.chunks[status]++
}

func (r *recordingReporter) errorKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// sequentialRows 生成 n 行两列数据：第一列是行号
func sequentialRows(n int) newrows.RowSet {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int64(i), "v"}
	}
	return newrows.RowSet{Columns: []string{"id", "val"}, Rows: rows}
}

// openSQLite 在临时目录创建 SQLite 文件库
func openSQLite(t testing.TB, size int) *newrows.SQLPool {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "newrows.db") + "?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"
	pool, err := sqlite.Open(context.Background(), dsn, size)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

// composite 生成 A,B,C,D 行
func composite(rows ...[4]int64) newrows.RowSet {
	out := newrows.RowSet{Columns: []string{"A", "B", "C", "D"}}
	for _, r := range rows {
		out.Rows = append(out.Rows, []any{r[0], r[1], r[2], r[3]})
	}
	return out
}

// memKeyIndex 内存键索引
type memKeyIndex struct {
	mu   sync.Mutex
	keys map[string]map[newrows.KeyHash]struct{}
}

func newMemKeyIndex() *memKeyIndex {
	return &memKeyIndex{keys: make(map[string]map[newrows.KeyHash]struct{})}
}

func (m *memKeyIndex) ContainsKeys(_ context.Context, table string, hashes []newrows.KeyHash) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(hashes))
	for i, h := range hashes {
		_, out[i] = m.keys[table][h]
	}
	return out, nil
}

func (m *memKeyIndex) AddKeys(_ context.Context, table string, hashes []newrows.KeyHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.keys[table]
	if !ok {
		set = make(map[newrows.KeyHash]struct{})
		m.keys[table] = set
	}
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return nil
}

func (m *memKeyIndex) Reset(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, table)
	return nil
}

func (m *memKeyIndex) Count(_ context.Context, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.keys[table])), nil
}
