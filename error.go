package newrows

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration 配置错误（非法分块大小、空 KeySpec 等）
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection 连接错误（连接池等待超时、连接断开）
	ErrConnection = errors.New("connection error")

	// ErrQuery 查询错误（SQL 错误、缺表缺列）
	ErrQuery = errors.New("query error")

	// ErrWrite 一个或多个分块写入失败
	ErrWrite = errors.New("write error")

	// ErrChunkSkipped 首块失败后未执行的分块
	ErrChunkSkipped = errors.New("chunk skipped")
)

// ConfigurationError 配置错误
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "newrows: invalid configuration: " + e.Message
	}
	return fmt.Sprintf("newrows: invalid configuration: %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConnectionError 获取或使用连接失败
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("newrows: connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// QueryError 读取查询失败
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("newrows: query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// ChunkError 单个分块的写入失败
type ChunkError struct {
	Index int
	Range Range
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d %s: %v", e.Index, e.Range, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// WriteError 汇总一次 WriteAll 中所有失败的分块
// Failures 按分块序号排序，足以让调用方只重试这些范围
type WriteError struct {
	Table    string
	Failures []*ChunkError
}

func (e *WriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "newrows: %d chunk(s) failed writing %s", len(e.Failures), e.Table)
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

func (e *WriteError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Ranges 返回失败（含跳过）的行范围
func (e *WriteError) Ranges() []Range {
	out := make([]Range, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Range
	}
	return out
}

// Skipped 返回因首块失败而未执行的分块数
func (e *WriteError) Skipped() int {
	n := 0
	for _, f := range e.Failures {
		if errors.Is(f.Err, ErrChunkSkipped) {
			n++
		}
	}
	return n
}
