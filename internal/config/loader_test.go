package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
application:
  name: venice-ingestion-test
kafka:
  bootstrap_servers:
    - localhost:9092
  consumer:
    group_id: ingest-group
    topics:
      - storeA_v3
buffer:
  drainer_count: 4
  capacity_per_drainer_bytes: 1048576
store:
  path: /tmp/venice-test.db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Application.Name != "venice-ingestion-test" {
		t.Errorf("Application.Name = %q, want %q", cfg.Application.Name, "venice-ingestion-test")
	}
	if cfg.Buffer.DrainerCount != 4 {
		t.Errorf("Buffer.DrainerCount = %d, want 4", cfg.Buffer.DrainerCount)
	}
	if cfg.Buffer.CapacityPerDrainerBytes != 1048576 {
		t.Errorf("Buffer.CapacityPerDrainerBytes = %d, want 1048576", cfg.Buffer.CapacityPerDrainerBytes)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Buffer.DrainRetryBudget != 1000 {
		t.Errorf("Buffer.DrainRetryBudget = %d, want default 1000", cfg.Buffer.DrainRetryBudget)
	}
	if cfg.Buffer.DrainSleepIntervalMS != 50 {
		t.Errorf("Buffer.DrainSleepIntervalMS = %d, want default 50", cfg.Buffer.DrainSleepIntervalMS)
	}
	if cfg.Buffer.SlowDrainerThreshold != 0.8 {
		t.Errorf("Buffer.SlowDrainerThreshold = %f, want default 0.8", cfg.Buffer.SlowDrainerThreshold)
	}
	if cfg.Buffer.RecordOverheadBytes != 256 {
		t.Errorf("Buffer.RecordOverheadBytes = %d, want default 256", cfg.Buffer.RecordOverheadBytes)
	}
	if cfg.Buffer.StopTimeoutSeconds != 10 {
		t.Errorf("Buffer.StopTimeoutSeconds = %d, want default 10", cfg.Buffer.StopTimeoutSeconds)
	}
	if cfg.Observability.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Observability.Logging.Level, "info")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{
			"missing bootstrap servers",
			strings.Replace(validConfig, "  bootstrap_servers:\n    - localhost:9092\n", "", 1),
			"bootstrap servers",
		},
		{
			"missing group id",
			strings.Replace(validConfig, "    group_id: ingest-group\n", "", 1),
			"group ID",
		},
		{
			"invalid drainer count",
			strings.Replace(validConfig, "drainer_count: 4", "drainer_count: 0", 1),
			"drainer count",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader()
			_, err := loader.Load(writeConfig(t, tt.config))
			if err == nil {
				t.Fatal("Load() error = nil, want validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("VENICE_TEST_STORE_PATH", "/tmp/from-env.db")

	cfg := strings.Replace(validConfig, "path: /tmp/venice-test.db", "path: ${VENICE_TEST_STORE_PATH}", 1)
	loader := NewLoader()
	loaded, err := loader.Load(writeConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Store.Path != "/tmp/from-env.db" {
		t.Errorf("Store.Path = %q, want %q", loaded.Store.Path, "/tmp/from-env.db")
	}
}
