package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/open-fpl/data/internal/platform/resilience"
	"github.com/open-fpl/data/internal/usecase"
)

// StorageMode names the checkpoint backend chosen for a harvest run.
type StorageMode string

const (
	StorageDisk   StorageMode = "disk"
	StorageHosted StorageMode = "hosted"
)

// Config stores runtime configuration for the harvester and the API.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	LogLevel           logging.Level
	HTTPAddr           string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string
	CacheEnabled       bool
	CacheTTL           time.Duration
	CacheMaxEntries    int

	FPLBaseURL               string
	FPLTimeout               time.Duration
	FPLUserAgent             string
	FPLCircuitEnabled        bool
	FPLCircuitFailureCount   int
	FPLCircuitOpenTimeout    time.Duration
	FPLCircuitHalfOpenMaxReq int

	SupabaseSecretKey  string
	SupabaseURL        string
	SupabaseBucket     string
	SupabasePicksTable string
	SupabaseDBURL      string
	SupabaseTimeout    time.Duration
	PicksOutputDir     string

	EntriesLimit        int
	SaveFrequency       int
	HarvestMaxRetries   int
	HarvestConcurrency  int
	HarvestRetryBackoff time.Duration
	HarvestResume       bool

	UptraceEnabled             bool
	UptraceDSN                 string
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}
	if readTimeout <= 0 || writeTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_READ_TIMEOUT and APP_WRITE_TIMEOUT must be > 0")
	}

	cacheEnabled, err := strconv.ParseBool(getEnv("CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}
	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	if cacheEnabled && cacheTTL <= 0 {
		return Config{}, fmt.Errorf("CACHE_TTL must be > 0 when CACHE_ENABLED=true")
	}
	cacheMaxEntries, err := getEnvAsInt("CACHE_MAX_ENTRIES", 10000)
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_MAX_ENTRIES: %w", err)
	}
	if cacheMaxEntries < 0 {
		return Config{}, fmt.Errorf("CACHE_MAX_ENTRIES must be >= 0")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	fplTimeout, err := time.ParseDuration(getEnv("FPL_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_TIMEOUT: %w", err)
	}
	if fplTimeout <= 0 {
		return Config{}, fmt.Errorf("FPL_TIMEOUT must be > 0")
	}
	fplCircuitEnabled, err := strconv.ParseBool(getEnv("FPL_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_ENABLED: %w", err)
	}
	fplCircuitFailureCount, err := getEnvAsInt("FPL_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if fplCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("FPL_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	fplCircuitOpenTimeout, err := time.ParseDuration(getEnv("FPL_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if fplCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("FPL_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	fplCircuitHalfOpenMaxReq, err := getEnvAsInt("FPL_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if fplCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("FPL_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	supabaseTimeout, err := time.ParseDuration(getEnv("SUPABASE_TIMEOUT", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SUPABASE_TIMEOUT: %w", err)
	}
	if supabaseTimeout <= 0 {
		return Config{}, fmt.Errorf("SUPABASE_TIMEOUT must be > 0")
	}

	entriesLimit, err := getEnvAsInt("ENTRIES_LIMIT", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse ENTRIES_LIMIT: %w", err)
	}
	if entriesLimit < 0 {
		return Config{}, fmt.Errorf("ENTRIES_LIMIT must be >= 0")
	}
	// SAVE_FEQUENCY is the misspelled name older deployments still set.
	saveFrequency, err := getEnvAsInt("SAVE_FREQUENCY", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse SAVE_FREQUENCY: %w", err)
	}
	if saveFrequency == 0 {
		saveFrequency, err = getEnvAsInt("SAVE_FEQUENCY", usecase.DefaultSaveFrequency)
		if err != nil {
			return Config{}, fmt.Errorf("parse SAVE_FEQUENCY: %w", err)
		}
	}
	if saveFrequency < 1 {
		return Config{}, fmt.Errorf("SAVE_FREQUENCY must be >= 1")
	}
	maxRetries, err := getEnvAsInt("HARVEST_MAX_RETRIES", usecase.DefaultMaxRetries)
	if err != nil {
		return Config{}, fmt.Errorf("parse HARVEST_MAX_RETRIES: %w", err)
	}
	if maxRetries < 0 {
		return Config{}, fmt.Errorf("HARVEST_MAX_RETRIES must be >= 0")
	}
	concurrency, err := getEnvAsInt("HARVEST_CONCURRENCY", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse HARVEST_CONCURRENCY: %w", err)
	}
	if concurrency < 1 || concurrency > 256 {
		return Config{}, fmt.Errorf("HARVEST_CONCURRENCY must be between 1 and 256")
	}
	retryBackoff, err := time.ParseDuration(getEnv("HARVEST_RETRY_BACKOFF", "0s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HARVEST_RETRY_BACKOFF: %w", err)
	}
	if retryBackoff < 0 {
		return Config{}, fmt.Errorf("HARVEST_RETRY_BACKOFF must be >= 0")
	}
	resume, err := strconv.ParseBool(getEnv("HARVEST_RESUME", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HARVEST_RESUME: %w", err)
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                getEnv("APP_SERVICE_NAME", "open-fpl-data"),
		ServiceVersion:             getEnv("APP_SERVICE_VERSION", "dev"),
		LogLevel:                   parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
		HTTPAddr:                   getEnv("APP_HTTP_ADDR", ":8080"),
		ReadTimeout:                readTimeout,
		WriteTimeout:               writeTimeout,
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		CacheEnabled:               cacheEnabled,
		CacheTTL:                   cacheTTL,
		CacheMaxEntries:            cacheMaxEntries,
		FPLBaseURL:                 strings.TrimSpace(getEnv("FPL_BASE_URL", "https://fantasy.premierleague.com/api")),
		FPLTimeout:                 fplTimeout,
		FPLUserAgent:               strings.TrimSpace(getEnv("FPL_USER_AGENT", "open-fpl-data/1.0")),
		FPLCircuitEnabled:          fplCircuitEnabled,
		FPLCircuitFailureCount:     fplCircuitFailureCount,
		FPLCircuitOpenTimeout:      fplCircuitOpenTimeout,
		FPLCircuitHalfOpenMaxReq:   fplCircuitHalfOpenMaxReq,
		SupabaseSecretKey:          strings.TrimSpace(getEnv("SUPABASE_SECRET_KEY", "")),
		SupabaseURL:                strings.TrimSpace(getEnv("SUPABASE_URL", "")),
		SupabaseBucket:             strings.TrimSpace(getEnv("SUPABASE_STORAGE_NAME", "open-fpl")),
		SupabasePicksTable:         strings.TrimSpace(getEnv("SUPABASE_PICKS_TABLE", "picks")),
		SupabaseDBURL:              strings.TrimSpace(getEnv("SUPABASE_DB_URL", "")),
		SupabaseTimeout:            supabaseTimeout,
		PicksOutputDir:             strings.TrimSpace(getEnv("PICKS_OUTPUT_DIR", "./public/app-data/picks")),
		EntriesLimit:               entriesLimit,
		SaveFrequency:              saveFrequency,
		HarvestMaxRetries:          maxRetries,
		HarvestConcurrency:         concurrency,
		HarvestRetryBackoff:        retryBackoff,
		HarvestResume:              resume,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}
	if cfg.PicksOutputDir == "" {
		return Config{}, fmt.Errorf("PICKS_OUTPUT_DIR cannot be empty")
	}

	return cfg, nil
}

// StorageMode is hosted only when both the secret key and the project URL
// are set.
func (c Config) StorageMode() StorageMode {
	if c.SupabaseSecretKey != "" && c.SupabaseURL != "" {
		return StorageHosted
	}
	return StorageDisk
}

func (c Config) HarvestConfig() usecase.HarvestConfig {
	return usecase.HarvestConfig{
		SaveFrequency: c.SaveFrequency,
		MaxRetries:    c.HarvestMaxRetries,
		EntriesLimit:  c.EntriesLimit,
		Concurrency:   c.HarvestConcurrency,
		RetryBackoff:  c.HarvestRetryBackoff,
		Resume:        c.HarvestResume,
	}
}

func (c Config) FPLCircuitBreaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Enabled:          c.FPLCircuitEnabled,
		FailureThreshold: c.FPLCircuitFailureCount,
		OpenTimeout:      c.FPLCircuitOpenTimeout,
		HalfOpenMaxReq:   c.FPLCircuitHalfOpenMaxReq,
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
