// Package config loads the engine's environment overrides file (§6):
// database connection, browser profile directory root, per-provider
// credentials, and HTTP bind port. Grounded on the teacher's viper-based
// Load() (internal/config/config.go, Shannon's features.yaml loader) with
// the Shannon-specific Budget/Workflows/Enforcement/Gateway sections
// replaced by the engine's own settings. The file-watch/hot-reload manager
// (manager.go) is kept minus its policy-reload path — it's a generic filename-keyed watcher and
// applies as-is to the subset of settings that are safe to change at
// runtime (delay_between_tasks, timeout_ms), per SPEC_FULL.md §E.2.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DatabaseConfig holds the Postgres connection settings. client_encoding
// is always pinned to UTF-8 by db.NewClient regardless of what's set here.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ProviderCredentials holds per-provider API keys where applicable (only
// the direct-API provider, Bocha, needs one; hosted chat providers
// authenticate via their persistent browser profile).
type ProviderCredentials struct {
	BochaAPIKey string `mapstructure:"bocha_api_key"`
}

// DefaultUnitSettings are the engine's defaults for settings a TaskJob may
// override (§3 TaskJob.settings): headless mode, per-unit timeout, and
// inter-unit delay.
type DefaultUnitSettings struct {
	Headless          bool `mapstructure:"headless"`
	TimeoutMs         int  `mapstructure:"timeout_ms"`
	DelayBetweenTasks int  `mapstructure:"delay_between_tasks"`
}

// EngineConfig is the root configuration object for the Task Execution
// Engine binary.
type EngineConfig struct {
	Database          DatabaseConfig       `mapstructure:"database"`
	BrowserProfileDir string               `mapstructure:"browser_profile_dir"`
	Providers         ProviderCredentials  `mapstructure:"providers"`
	DefaultSettings   DefaultUnitSettings  `mapstructure:"default_settings"`
	HTTPPort          int                  `mapstructure:"http_port"`
	RedisURL          string               `mapstructure:"redis_url"`
	MigrationsPath    string               `mapstructure:"migrations_path"`
	Tracing           TracingFromYAML      `mapstructure:"tracing"`
}

// TracingFromYAML mirrors internal/tracing.Config's mapstructure tags so it
// can be embedded directly in engine.yaml.
type TracingFromYAML struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads the engine configuration from CONFIG_PATH (or
// config/engine.yaml by default). Environment overrides come from viper's
// AutomaticEnv with the ENGINE_ prefix, which (no key replacer is set)
// reaches only undotted keys viper already knows, such as ENGINE_HTTP_PORT,
// and from the fixed variable names in bindDirectEnvOverrides.
func Load() (*EngineConfig, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/engine.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()

	setDefaults(v)

	if info, err := os.Stat(cfgPath); err == nil && !info.IsDir() {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	// Direct environment overrides for the connection fields named in §6,
	// bypassing viper's dotted-key env binding for the common case.
	bindDirectEnvOverrides(v)

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.BrowserProfileDir == "" {
		cfg.BrowserProfileDir = filepath.Join(os.TempDir(), "geo-sentry-profiles")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "geo_sentry")
	v.SetDefault("database.user", "geo_sentry")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("http_port", 8080)
	v.SetDefault("migrations_path", "internal/db/migrations")
	v.SetDefault("default_settings.headless", true)
	v.SetDefault("default_settings.timeout_ms", 30000)
	v.SetDefault("default_settings.delay_between_tasks", 3)
	v.SetDefault("tracing.service_name", "geo-citation-sentry")
}

func bindDirectEnvOverrides(v *viper.Viper) {
	overrides := map[string]string{
		"database.host":            "DB_HOST",
		"database.port":            "DB_PORT",
		"database.name":            "DB_NAME",
		"database.user":            "DB_USER",
		"database.password":       "DB_PASSWORD",
		"database.sslmode":         "DB_SSLMODE",
		"browser_profile_dir":      "BROWSER_PROFILE_DIR",
		"providers.bocha_api_key":  "BOCHA_API_KEY",
		"http_port":                "HTTP_PORT",
		"redis_url":                "REDIS_URL",
	}
	for key, env := range overrides {
		if val, ok := os.LookupEnv(env); ok {
			v.Set(key, val)
		}
	}
}
