package config

import (
	"os"
	"testing"
)

func TestDefaultConfigIsUsable(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("got driver %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Executor.MaxConcurrentExecutions <= 0 {
		t.Fatal("expected a positive default concurrency limit")
	}
	if cfg.Loader.CircuitBreaker.FailureThreshold <= 0 {
		t.Fatal("expected a positive default failure threshold")
	}
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	os.Setenv("FNCORE_HTTP_ADDR", ":9999")
	os.Setenv("FNCORE_EXECUTOR_MAX_CONCURRENT", "7")
	defer os.Unsetenv("FNCORE_HTTP_ADDR")
	defer os.Unsetenv("FNCORE_EXECUTOR_MAX_CONCURRENT")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Daemon.HTTPAddr != ":9999" {
		t.Fatalf("got HTTPAddr %q, want :9999", cfg.Daemon.HTTPAddr)
	}
	if cfg.Executor.MaxConcurrentExecutions != 7 {
		t.Fatalf("got MaxConcurrentExecutions %d, want 7", cfg.Executor.MaxConcurrentExecutions)
	}
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "fncore-config-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"daemon":{"http_addr":":7000"}}`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := LoadFromFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Daemon.HTTPAddr != ":7000" {
		t.Fatalf("got HTTPAddr %q, want :7000", cfg.Daemon.HTTPAddr)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatal("expected unset fields to keep their default")
	}
}
