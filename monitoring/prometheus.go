package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options 配置项（可选）
type Options struct {
	// 指标命名
	Namespace   string            // 默认 "newrows"
	Subsystem   string            // 可为空
	ConstLabels map[string]string // 追加到所有指标的常量标签，如 {"env":"prod"}

	// 是否启用 table 维度（注意基数膨胀）
	IncludeTable bool
	// 是否注册 Go 运行时与进程指标
	RuntimeCollectors bool

	// 直方图桶
	DurationBuckets  []float64
	ChunkRowsBuckets []float64
}

// Metrics 指标容器
type Metrics struct {
	registry     *prometheus.Registry
	includeTable bool

	// Counter
	errorsTotal   *prometheus.CounterVec
	candidateRows *prometheus.CounterVec
	duplicateRows *prometheus.CounterVec
	chunksWritten *prometheus.CounterVec
	writtenRows   *prometheus.CounterVec

	// Histogram
	filterDuration   *prometheus.HistogramVec
	chunkDuration    *prometheus.HistogramVec
	chunkRows        *prometheus.HistogramVec
	writeAllDuration *prometheus.HistogramVec
	chunksPerWrite   *prometheus.HistogramVec

	// Gauge
	poolSize    *prometheus.GaugeVec
	leasedConns *prometheus.GaugeVec
}

// NewMetrics 创建并注册一套指标
func NewMetrics(opts Options) *Metrics {
	ns := opts.Namespace
	if ns == "" {
		ns = "newrows"
	}
	ss := opts.Subsystem
	cl := opts.ConstLabels

	// 默认桶
	if len(opts.DurationBuckets) == 0 {
		opts.DurationBuckets = prometheus.ExponentialBuckets(0.0005, 2, 18) // 0.5ms ~ 65s
	}
	if len(opts.ChunkRowsBuckets) == 0 {
		opts.ChunkRowsBuckets = prometheus.ExponentialBuckets(1, 2, 16)
	}

	tableLabels := func(labels ...string) []string {
		if opts.IncludeTable {
			labels = append(labels, "table")
		}
		return labels
	}

	counter := func(name, help string, labels []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   ss,
			Name:        name,
			Help:        help,
			ConstLabels: cl,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   ss,
			Name:        name,
			Help:        help,
			Buckets:     buckets,
			ConstLabels: cl,
		}, labels)
	}
	gauge := func(name, help string, labels []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   ss,
			Name:        name,
			Help:        help,
			ConstLabels: cl,
		}, labels)
	}

	m := &Metrics{
		registry:     prometheus.NewRegistry(),
		includeTable: opts.IncludeTable,

		errorsTotal: counter("errors_total",
			"Total number of chunk write errors (error_type starts with retry:/final:)",
			tableLabels("database", "error_type")),
		candidateRows: counter("filter_candidate_rows_total",
			"Rows offered to the duplicate filter",
			tableLabels("database")),
		duplicateRows: counter("filter_dropped_rows_total",
			"Rows dropped by the duplicate filter (intra-batch or already stored)",
			tableLabels("database")),
		chunksWritten: counter("chunks_total",
			"Chunks written, by final status",
			tableLabels("database", "status")),
		writtenRows: counter("written_rows_total",
			"Rows in successfully written chunks",
			tableLabels("database")),

		filterDuration: histogram("filter_duration_seconds",
			"Duplicate filter duration including the key lookup",
			opts.DurationBuckets, tableLabels("database")),
		chunkDuration: histogram("chunk_duration_seconds",
			"Write duration per chunk (includes pool wait, retry and backoff)",
			opts.DurationBuckets, tableLabels("database", "status")),
		chunkRows: histogram("chunk_rows",
			"Chunk size distribution",
			opts.ChunkRowsBuckets, []string{"database"}),
		writeAllDuration: histogram("write_all_duration_seconds",
			"Duration of a whole WriteAll call",
			opts.DurationBuckets, tableLabels("database", "status")),
		chunksPerWrite: histogram("chunks_per_write",
			"Number of planned chunks per WriteAll",
			prometheus.ExponentialBuckets(1, 2, 12), []string{"database"}),

		poolSize: gauge("pool_size",
			"Connection pool size (upper bound of concurrent chunk writes)",
			[]string{"database"}),
		leasedConns: gauge("leased_connections",
			"Connections currently leased from the pool",
			[]string{"database"}),
	}

	// 注册
	m.registry.MustRegister(
		m.errorsTotal,
		m.candidateRows,
		m.duplicateRows,
		m.chunksWritten,
		m.writtenRows,
		m.filterDuration,
		m.chunkDuration,
		m.chunkRows,
		m.writeAllDuration,
		m.chunksPerWrite,
		m.poolSize,
		m.leasedConns,
	)

	// 常规运行时指标（可选）
	if opts.RuntimeCollectors {
		m.registry.MustRegister(collectors.NewBuildInfoCollector())
		m.registry.MustRegister(collectors.NewGoCollector())
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

// Registry 底层 registry，可注册额外的 collector
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 /metrics 的 http.Handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: false})
}

// labels 按是否启用 table 维度拼接标签值
func (m *Metrics) labels(table string, values ...string) []string {
	if m.includeTable {
		return append(values, table)
	}
	return values
}

func (m *Metrics) observeFilter(database, table string, candidates, kept int, d time.Duration) {
	m.filterDuration.WithLabelValues(m.labels(table, database)...).Observe(d.Seconds())
	m.candidateRows.WithLabelValues(m.labels(table, database)...).Add(float64(candidates))
	if dropped := candidates - kept; dropped > 0 {
		m.duplicateRows.WithLabelValues(m.labels(table, database)...).Add(float64(dropped))
	}
}

func (m *Metrics) observeChunk(database, table string, rows int, d time.Duration, status string) {
	m.chunkDuration.WithLabelValues(m.labels(table, database, status)...).Observe(d.Seconds())
	m.chunksWritten.WithLabelValues(m.labels(table, database, status)...).Inc()
	m.chunkRows.WithLabelValues(database).Observe(float64(rows))
	if status == "success" {
		m.writtenRows.WithLabelValues(m.labels(table, database)...).Add(float64(rows))
	}
}

func (m *Metrics) observeWriteAll(database, table string, chunks int, d time.Duration, status string) {
	m.writeAllDuration.WithLabelValues(m.labels(table, database, status)...).Observe(d.Seconds())
	m.chunksPerWrite.WithLabelValues(database).Observe(float64(chunks))
}

func (m *Metrics) incError(database, table, kind string) {
	m.errorsTotal.WithLabelValues(m.labels(table, database, kind)...).Inc()
}
