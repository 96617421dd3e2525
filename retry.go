package newrows

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig 分块写入的可选重试配置（零值关闭）
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int           // 总尝试次数（含首轮），建议 2~3
	BackoffBase time.Duration // 退避基值（指数退避起点）
	MaxBackoff  time.Duration // 最大退避时长（上限）
	// 自定义错误分类（可选）；返回是否可重试与原因标签
	Classifier func(error) (retryable bool, reason string)
}

func (cfg RetryConfig) normalize(driver SQLDriver) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 20 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Classifier == nil {
		cfg.Classifier = func(err error) (bool, string) {
			if driver != nil && driver.IsDuplicateKey(err) {
				return false, "duplicate_key"
			}
			return DefaultRetryClassifier(err)
		}
	}
	return cfg
}

func (cfg RetryConfig) attempts() int {
	if cfg.Enabled && cfg.MaxAttempts > 1 {
		return cfg.MaxAttempts
	}
	return 1
}

// backoff 第 attempt 次失败后的等待时长：指数退避 + ±20% 抖动
func (cfg RetryConfig) backoff(attempt int) time.Duration {
	backoff := cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}
	jitter := time.Duration(int64(float64(backoff) * 0.2))
	if jitter <= 0 {
		return backoff
	}
	return backoff - jitter + time.Duration(rand.Int64N(int64(2*jitter+1)))
}

// DefaultRetryClassifier 默认错误分类
func DefaultRetryClassifier(err error) (bool, string) {
	if err == nil {
		return false, ""
	}
	// 非可重试：上下文取消/超时
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, "context"
	}
	if errors.Is(err, ErrConnection) {
		return true, "connection"
	}
	// 朴素字符串分类（MySQL/PG/SQLite 常见瞬态错误）
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "deadlock"):
		return true, "deadlock"
	case strings.Contains(s, "lock wait timeout"):
		return true, "lock_timeout"
	case strings.Contains(s, "database is locked") || strings.Contains(s, "database table is locked"):
		return true, "locked"
	case strings.Contains(s, "timeout"):
		return true, "timeout"
	case strings.Contains(s, "connection") && (strings.Contains(s, "refused") || strings.Contains(s, "reset") || strings.Contains(s, "closed")):
		return true, "connection"
	case strings.Contains(s, "broken pipe") || strings.Contains(s, "eof"):
		return true, "io"
	default:
		return false, "non_retryable"
	}
}

// sleepCtx 等待 d 或 ctx 结束
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
