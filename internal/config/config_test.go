package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_ReadsPrefixedEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOREDASH_API_BASE_URL", "https://api.example.com/ ")
	t.Setenv("STOREDASH_TOKEN", "tok-123")
	t.Setenv("STOREDASH_PER_PAGE", "20")
	t.Setenv("STOREDASH_DEBOUNCE", "150ms")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("unexpected base URL: %q", cfg.API.BaseURL)
	}
	if cfg.API.Token != "tok-123" {
		t.Fatalf("unexpected token: %q", cfg.API.Token)
	}
	if cfg.API.RetryMax != 2 || cfg.API.Timeout != 0 {
		t.Fatalf("defaults not applied: %+v", cfg.API)
	}
	if cfg.Query.PerPage != 20 || cfg.Query.Debounce != 150*time.Millisecond {
		t.Fatalf("unexpected query config: %+v", cfg.Query)
	}
	if cfg.Cache.Capacity != 256 {
		t.Fatalf("unexpected cache capacity: %d", cfg.Cache.Capacity)
	}
	if cfg.Logs.Enabled() || cfg.Telemetry.Enabled() {
		t.Fatal("sinks should be disabled without configuration")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOREDASH_API_BASE_URL", "not a url")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoad_RejectsUnsupportedPageSize(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOREDASH_API_BASE_URL", "https://api.example.com")
	t.Setenv("STOREDASH_PER_PAGE", "7")

	if _, err := Load(); err == nil {
		t.Fatal("expected per-page validation error")
	}
}
