package config

import (
	"testing"
	"time"

	"github.com/open-fpl/data/internal/platform/logging"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_UptraceDSNFromOTLPHeaders(t *testing.T) {
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", `uptrace-dsn="https://token@api.uptrace.dev?grpc=4317"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UptraceDSN != "https://token@api.uptrace.dev?grpc=4317" {
		t.Fatalf("unexpected UptraceDSN: %q", cfg.UptraceDSN)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "APP_LOG_LEVEL", "SAVE_FREQUENCY", "SAVE_FEQUENCY", "ENTRIES_LIMIT",
		"HARVEST_MAX_RETRIES", "HARVEST_CONCURRENCY", "HARVEST_RETRY_BACKOFF", "HARVEST_RESUME",
		"SUPABASE_SECRET_KEY", "SUPABASE_URL", "SUPABASE_STORAGE_NAME", "SUPABASE_PICKS_TABLE",
		"PICKS_OUTPUT_DIR", "FPL_BASE_URL", "FPL_TIMEOUT", "CACHE_MAX_ENTRIES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppEnv != EnvDev || cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("unexpected app defaults: env=%s level=%s", cfg.AppEnv, cfg.LogLevel)
	}
	if cfg.SaveFrequency != 1000 || cfg.HarvestMaxRetries != 5 || cfg.HarvestConcurrency != 1 {
		t.Fatalf("unexpected harvest defaults: %+v", cfg.HarvestConfig())
	}
	if cfg.EntriesLimit != 0 || cfg.HarvestResume || cfg.HarvestRetryBackoff != 0 {
		t.Fatalf("unexpected optional harvest defaults: %+v", cfg.HarvestConfig())
	}
	if cfg.SupabaseBucket != "open-fpl" || cfg.SupabasePicksTable != "picks" {
		t.Fatalf("unexpected supabase defaults: bucket=%q table=%q", cfg.SupabaseBucket, cfg.SupabasePicksTable)
	}
	if cfg.PicksOutputDir != "./public/app-data/picks" {
		t.Fatalf("unexpected PicksOutputDir: %q", cfg.PicksOutputDir)
	}
	if cfg.FPLBaseURL != "https://fantasy.premierleague.com/api" || cfg.FPLTimeout != 10*time.Second {
		t.Fatalf("unexpected fpl defaults: url=%q timeout=%s", cfg.FPLBaseURL, cfg.FPLTimeout)
	}
	if cfg.StorageMode() != StorageDisk {
		t.Fatalf("expected disk storage by default")
	}
	if cfg.CacheMaxEntries != 10000 {
		t.Fatalf("unexpected CacheMaxEntries: %d", cfg.CacheMaxEntries)
	}
}

func TestLoad_HarvestConfigParsing(t *testing.T) {
	t.Setenv("ENTRIES_LIMIT", "250")
	t.Setenv("SAVE_FREQUENCY", "50")
	t.Setenv("HARVEST_MAX_RETRIES", "2")
	t.Setenv("HARVEST_CONCURRENCY", "8")
	t.Setenv("HARVEST_RETRY_BACKOFF", "250ms")
	t.Setenv("HARVEST_RESUME", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	got := cfg.HarvestConfig()
	if got.EntriesLimit != 250 || got.SaveFrequency != 50 || got.MaxRetries != 2 {
		t.Fatalf("unexpected harvest config: %+v", got)
	}
	if got.Concurrency != 8 || got.RetryBackoff != 250*time.Millisecond || !got.Resume {
		t.Fatalf("unexpected harvest options: %+v", got)
	}
}

func TestLoad_LegacySaveFrequencyName(t *testing.T) {
	t.Run("legacy name is honoured", func(t *testing.T) {
		t.Setenv("SAVE_FREQUENCY", "")
		t.Setenv("SAVE_FEQUENCY", "10")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.SaveFrequency != 10 {
			t.Fatalf("expected SaveFrequency=10, got %d", cfg.SaveFrequency)
		}
	})

	t.Run("correct name wins", func(t *testing.T) {
		t.Setenv("SAVE_FREQUENCY", "20")
		t.Setenv("SAVE_FEQUENCY", "10")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.SaveFrequency != 20 {
			t.Fatalf("expected SaveFrequency=20, got %d", cfg.SaveFrequency)
		}
	})
}

func TestLoad_RejectsInvalidHarvestValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "ENTRIES_LIMIT", value: "-1"},
		{key: "ENTRIES_LIMIT", value: "many"},
		{key: "SAVE_FREQUENCY", value: "-5"},
		{key: "HARVEST_MAX_RETRIES", value: "-1"},
		{key: "HARVEST_CONCURRENCY", value: "0"},
		{key: "HARVEST_CONCURRENCY", value: "1000"},
		{key: "HARVEST_RETRY_BACKOFF", value: "soon"},
		{key: "HARVEST_RESUME", value: "maybe"},
		{key: "FPL_TIMEOUT", value: "0s"},
		{key: "SUPABASE_TIMEOUT", value: "-1s"},
		{key: "CACHE_MAX_ENTRIES", value: "-1"},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestConfig_StorageMode(t *testing.T) {
	tests := []struct {
		name string
		key  string
		url  string
		want StorageMode
	}{
		{name: "neither", want: StorageDisk},
		{name: "key only", key: "secret", want: StorageDisk},
		{name: "url only", url: "https://project.supabase.co", want: StorageDisk},
		{name: "both", key: "secret", url: "https://project.supabase.co", want: StorageHosted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SUPABASE_SECRET_KEY", tc.key)
			t.Setenv("SUPABASE_URL", tc.url)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			if got := cfg.StorageMode(); got != tc.want {
				t.Fatalf("unexpected storage mode: got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestLoad_PyroscopeRequiresServerAddressWhenEnabled(t *testing.T) {
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when PYROSCOPE_ENABLED=true without PYROSCOPE_SERVER_ADDRESS")
	}
}

func TestLoad_PyroscopeAppNameDefaultsToServiceName(t *testing.T) {
	t.Setenv("APP_SERVICE_NAME", "picks-harvester")
	t.Setenv("PYROSCOPE_APP_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PyroscopeAppName != "picks-harvester" {
		t.Fatalf("unexpected PyroscopeAppName: %q", cfg.PyroscopeAppName)
	}
}

func TestLoad_CORSOriginsParsing(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://open-fpl.app , ,http://localhost:3000 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://open-fpl.app" || cfg.CORSAllowedOrigins[1] != "http://localhost:3000" {
		t.Fatalf("unexpected CORSAllowedOrigins: %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_FPLCircuitBreakerConfig(t *testing.T) {
	t.Setenv("FPL_CIRCUIT_ENABLED", "false")
	t.Setenv("FPL_CIRCUIT_FAILURE_COUNT", "9")
	t.Setenv("FPL_CIRCUIT_OPEN_TIMEOUT", "30s")
	t.Setenv("FPL_CIRCUIT_HALF_OPEN_MAX_REQ", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	got := cfg.FPLCircuitBreaker()
	if got.Enabled || got.FailureThreshold != 9 || got.OpenTimeout != 30*time.Second || got.HalfOpenMaxReq != 3 {
		t.Fatalf("unexpected breaker config: %+v", got)
	}
}
