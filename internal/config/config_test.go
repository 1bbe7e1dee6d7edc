package config

import "testing"

func TestLoad_DefaultsWithNoConfigFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/engine.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if !cfg.DefaultSettings.Headless || cfg.DefaultSettings.TimeoutMs != 30000 {
		t.Errorf("DefaultSettings = %+v", cfg.DefaultSettings)
	}
	if cfg.BrowserProfileDir == "" {
		t.Error("expected a non-empty fallback BrowserProfileDir")
	}
}

func TestLoad_DirectEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/engine.yaml")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("BOCHA_API_KEY", "sk-test-123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.Providers.BochaAPIKey != "sk-test-123" {
		t.Errorf("Providers.BochaAPIKey = %q, want sk-test-123", cfg.Providers.BochaAPIKey)
	}
}
