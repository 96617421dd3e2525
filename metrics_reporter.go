package newrows

import "time"

// MetricsReporter 性能监控报告器接口
type MetricsReporter interface {
	// ObserveFilter 一次去重过滤：候选行数、保留行数、耗时
	ObserveFilter(table string, candidates, kept int, d time.Duration)
	// ObserveChunkDuration 单个分块写入耗时（含重试与退避），status: success/fail
	ObserveChunkDuration(table string, rows int, d time.Duration, status string)
	// ObserveWriteAll 一次 WriteAll 的总耗时与分块数
	ObserveWriteAll(table string, chunks int, d time.Duration, status string)
	// SetPoolSize 连接池大小（并发上限）
	SetPoolSize(n int)
	// IncLeased/DecLeased 当前租出的连接数
	IncLeased()
	DecLeased()
	// IncError 错误计数，kind 以 retry:/final: 开头
	IncError(table, kind string)
}

// NoopMetricsReporter 默认实现，所有方法为空
type NoopMetricsReporter struct{}

func NewNoopMetricsReporter() *NoopMetricsReporter { return &NoopMetricsReporter{} }

func (*NoopMetricsReporter) ObserveFilter(table string, candidates, kept int, d time.Duration) {}
func (*NoopMetricsReporter) ObserveChunkDuration(table string, rows int, d time.Duration, status string) {
}
func (*NoopMetricsReporter) ObserveWriteAll(table string, chunks int, d time.Duration, status string) {
}
func (*NoopMetricsReporter) SetPoolSize(n int)           {}
func (*NoopMetricsReporter) IncLeased()                  {}
func (*NoopMetricsReporter) DecLeased()                  {}
func (*NoopMetricsReporter) IncError(table, kind string) {}
