package main

import (
	"slices"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"NEWROWS_DRIVER", "NEWROWS_TABLE", "NEWROWS_LOOPS", "NEWROWS_ROWS", "NEWROWS_MAX_VALUE", "NEWROWS_KEYS"} {
		t.Setenv(key, "")
	}

	config, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Driver != "sqlite" || config.Table != "test_upsert" {
		t.Errorf("driver/table = %s/%s", config.Driver, config.Table)
	}
	if config.Loops != 10 || config.RowsPerLoop != 100000 || config.MaxValue != 500 {
		t.Errorf("loops/rows/max = %d/%d/%d", config.Loops, config.RowsPerLoop, config.MaxValue)
	}
	if !slices.Equal([]string(config.Loader.KeySpec), []string{"A", "B"}) {
		t.Errorf("keys = %v, want [A B]", config.Loader.KeySpec)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("NEWROWS_DRIVER", "pgx")
	t.Setenv("NEWROWS_LOOPS", "3")
	t.Setenv("NEWROWS_ROWS", "not-a-number")
	t.Setenv("NEWROWS_KEYS", "id")

	config, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Driver != "pgx" || config.Loops != 3 {
		t.Errorf("driver/loops = %s/%d", config.Driver, config.Loops)
	}
	if config.RowsPerLoop != 100000 {
		t.Errorf("invalid NEWROWS_ROWS should fall back to default, got %d", config.RowsPerLoop)
	}
	if !slices.Equal([]string(config.Loader.KeySpec), []string{"id"}) {
		t.Errorf("keys = %v, want [id]", config.Loader.KeySpec)
	}
}

func TestLoadConfig_RejectsBadBounds(t *testing.T) {
	t.Setenv("NEWROWS_MAX_VALUE", "0")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for NEWROWS_MAX_VALUE=0")
	}
}
