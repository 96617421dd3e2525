package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/rushairer/newrows"
)

// 环境变量解析辅助函数
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("⚠️ %s=%q is not an integer, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func stringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// BenchConfig 基准测试配置
type BenchConfig struct {
	Driver      string         `json:"driver"`
	DSN         string         `json:"-"`
	Table       string         `json:"table"`
	Loops       int            `json:"loops"`
	RowsPerLoop int            `json:"rows_per_loop"`
	MaxValue    int            `json:"max_value"`
	MetricsAddr string         `json:"metrics_addr,omitempty"`
	RedisAddr   string         `json:"redis_addr,omitempty"`
	ReportDir   string         `json:"report_dir"`
	Loader      newrows.Config `json:"loader"`
}

func loadConfig() (BenchConfig, error) {
	loaderConfig, err := newrows.LoadConfigFromEnv()
	if err != nil {
		return BenchConfig{}, err
	}
	if loaderConfig.KeySpec == nil {
		loaderConfig.KeySpec = newrows.KeySpec{"A", "B"}
	}

	// 统一从环境变量读取配置
	config := BenchConfig{
		Driver:      stringEnv("NEWROWS_DRIVER", "sqlite"),
		DSN:         stringEnv("NEWROWS_DSN", "file:newrows.db?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"),
		Table:       stringEnv("NEWROWS_TABLE", "test_upsert"),
		Loops:       parseIntEnv("NEWROWS_LOOPS", 10),
		RowsPerLoop: parseIntEnv("NEWROWS_ROWS", 100000),
		MaxValue:    parseIntEnv("NEWROWS_MAX_VALUE", 500),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		ReportDir:   stringEnv("REPORT_DIR", "reports"),
		Loader:      loaderConfig,
	}

	if config.Loops < 0 || config.RowsPerLoop < 0 || config.MaxValue < 1 {
		return config, fmt.Errorf("loops and rows must be >= 0 and max value >= 1, got %d/%d/%d",
			config.Loops, config.RowsPerLoop, config.MaxValue)
	}

	log.Printf("📋 Loaded Configuration:")
	log.Printf("   Driver: %s", config.Driver)
	log.Printf("   Table: %s", config.Table)
	log.Printf("   Loops: %d x %d rows (values 0..%d)", config.Loops, config.RowsPerLoop, config.MaxValue-1)
	log.Printf("   Pool Size: %d", loaderConfig.PoolSize)
	log.Printf("   Chunks: first %d, then %d", loaderConfig.InitialChunkSize, loaderConfig.SteadyChunkSize)
	log.Printf("   Keys: %s", loaderConfig.KeySpec)
	return config, nil
}
