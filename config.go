package newrows

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 加载配置
type Config struct {
	PoolSize         int           `json:"pool_size"`
	InitialChunkSize int           `json:"initial_chunk_size"`
	SteadyChunkSize  int           `json:"steady_chunk_size"`
	WriteMode        WriteMode     `json:"write_mode"`
	KeySpec          KeySpec       `json:"key_spec"`
	AcquireTimeout   time.Duration `json:"acquire_timeout"`
	Retry            RetryConfig   `json:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		PoolSize:         10,
		InitialChunkSize: DefaultInitialChunkSize,
		SteadyChunkSize:  DefaultSteadyChunkSize,
		WriteMode:        Append,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.PoolSize < 1 {
		return configErrorf("pool_size", "must be >= 1, got %d", c.PoolSize)
	}
	if c.InitialChunkSize < 0 {
		return configErrorf("initial_chunk_size", "must be >= 0, got %d", c.InitialChunkSize)
	}
	if c.SteadyChunkSize < 1 {
		return configErrorf("steady_chunk_size", "must be >= 1, got %d", c.SteadyChunkSize)
	}
	if c.WriteMode != Append && c.WriteMode != Replace {
		return configErrorf("write_mode", "unknown write mode %d", c.WriteMode)
	}
	if c.KeySpec != nil && len(c.KeySpec) == 0 {
		return configErrorf("keys", "key spec is empty")
	}
	if c.AcquireTimeout < 0 {
		return configErrorf("acquire_timeout", "must be >= 0, got %s", c.AcquireTimeout)
	}
	return nil
}

// 环境变量解析辅助函数
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, configErrorf(key, "not an integer: %q", value)
	}
	return parsed, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, configErrorf(key, "not a duration: %q", value)
	}
	return parsed, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, configErrorf(key, "not a boolean: %q", value)
	}
	return parsed, nil
}

// ParseKeySpec 解析逗号分隔的列名
func ParseKeySpec(s string) KeySpec {
	var keys KeySpec
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

// LoadConfigFromEnv 从 NEWROWS_* 环境变量读取配置，未设置的项使用默认值
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.PoolSize, err = parseIntEnv("NEWROWS_POOL_SIZE", cfg.PoolSize); err != nil {
		return cfg, err
	}
	if cfg.InitialChunkSize, err = parseIntEnv("NEWROWS_INITIAL_CHUNK", cfg.InitialChunkSize); err != nil {
		return cfg, err
	}
	if cfg.SteadyChunkSize, err = parseIntEnv("NEWROWS_STEADY_CHUNK", cfg.SteadyChunkSize); err != nil {
		return cfg, err
	}
	if cfg.WriteMode, err = ParseWriteMode(os.Getenv("NEWROWS_WRITE_MODE")); err != nil {
		return cfg, err
	}
	if keys := os.Getenv("NEWROWS_KEYS"); keys != "" {
		if cfg.KeySpec = ParseKeySpec(keys); len(cfg.KeySpec) == 0 {
			return cfg, configErrorf("NEWROWS_KEYS", "no column names in %q", keys)
		}
	}
	if cfg.AcquireTimeout, err = parseDurationEnv("NEWROWS_ACQUIRE_TIMEOUT", 0); err != nil {
		return cfg, err
	}

	if cfg.Retry.Enabled, err = parseBoolEnv("NEWROWS_RETRY_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.Retry.MaxAttempts, err = parseIntEnv("NEWROWS_RETRY_MAX_ATTEMPTS", 3); err != nil {
		return cfg, err
	}
	if cfg.Retry.BackoffBase, err = parseDurationEnv("NEWROWS_RETRY_BACKOFF_BASE", 20*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.Retry.MaxBackoff, err = parseDurationEnv("NEWROWS_RETRY_MAX_BACKOFF", 2*time.Second); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}
