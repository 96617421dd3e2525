package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// LoopResult 单次循环结果
type LoopResult struct {
	Loop       int           `json:"loop"`
	Candidates int           `json:"candidates"`
	Filtered   int           `json:"filtered"`
	Written    int           `json:"written"`
	Chunks     int           `json:"chunks"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// StrategyResult 一种加载方式的结果
type StrategyResult struct {
	Strategy     string        `json:"strategy"`
	Loops        []LoopResult  `json:"loops"`
	Duration     time.Duration `json:"duration"`
	TotalWritten int64         `json:"total_written"`
	RowsInTable  int64         `json:"rows_in_table"`
	RowsPerSec   float64       `json:"rows_per_second"`
	Errors       []string      `json:"errors"`
	Success      bool          `json:"success"`
}

// Report 运行报告
type Report struct {
	Timestamp  time.Time        `json:"timestamp"`
	GoVersion  string           `json:"go_version"`
	Config     BenchConfig      `json:"config"`
	Strategies []StrategyResult `json:"strategies"`
}

func saveReport(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("newrows_report_%s.json", report.Timestamp.Format("2006-01-02_15-04-05")))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return filename, nil
}

func printSummary(report *Report) {
	log.Println("📈 Summary:")
	for _, s := range report.Strategies {
		status := "✅"
		if !s.Success {
			status = "❌"
		}
		log.Printf("   %s %-8s %8d rows in table, %10.2f rows/s, %v", status, s.Strategy, s.RowsInTable, s.RowsPerSec, s.Duration)
	}
}
