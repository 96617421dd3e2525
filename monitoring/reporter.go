package monitoring

import (
	"time"

	"github.com/rushairer/newrows"
)

// Reporter 实现 newrows.MetricsReporter，写入 Prometheus 指标
type Reporter struct {
	m *Metrics

	// 绑定维度
	Database string
}

// NewReporter 创建 Reporter；database 一般取驱动名称
func NewReporter(m *Metrics, database string) *Reporter {
	return &Reporter{m: m, Database: database}
}

// ObserveFilter 去重过滤耗时与行数
func (r *Reporter) ObserveFilter(table string, candidates, kept int, d time.Duration) {
	if r.m == nil {
		return
	}
	r.m.observeFilter(r.Database, table, candidates, kept, d)
}

// ObserveChunkDuration 分块写入耗时（含重试与退避）
func (r *Reporter) ObserveChunkDuration(table string, rows int, d time.Duration, status string) {
	if r.m == nil {
		return
	}
	r.m.observeChunk(r.Database, table, rows, d, status)
}

// ObserveWriteAll 一次 WriteAll 的耗时
func (r *Reporter) ObserveWriteAll(table string, chunks int, d time.Duration, status string) {
	if r.m == nil {
		return
	}
	r.m.observeWriteAll(r.Database, table, chunks, d, status)
}

// SetPoolSize 连接池大小
func (r *Reporter) SetPoolSize(n int) {
	if r.m == nil {
		return
	}
	r.m.poolSize.WithLabelValues(r.Database).Set(float64(n))
}

// IncLeased 租出+1
func (r *Reporter) IncLeased() {
	if r.m == nil {
		return
	}
	r.m.leasedConns.WithLabelValues(r.Database).Inc()
}

// DecLeased 租出-1
func (r *Reporter) DecLeased() {
	if r.m == nil {
		return
	}
	r.m.leasedConns.WithLabelValues(r.Database).Dec()
}

// IncError 错误计数（retry:/final: 前缀）
func (r *Reporter) IncError(table, kind string) {
	if r.m == nil {
		return
	}
	r.m.incError(r.Database, table, kind)
}

// 确保实现接口
var _ newrows.MetricsReporter = (*Reporter)(nil)
