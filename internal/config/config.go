package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	GeneratorBedrock = "bedrock"
	GeneratorOpenAI  = "openai"

	EngineAthena = "athena"
	EngineDuckDB = "duckdb"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Generator     GeneratorConfig
	Retry         RetryConfig
	Engine        EngineConfig
	Guardrail     GuardrailConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type GeneratorConfig struct {
	Provider         string
	ModelID          string
	Region           string
	BaseURL          string
	APIKey           string
	Temperature      float64
	Timeout          time.Duration
	SQLMaxTokens     int
	SummaryMaxTokens int
	SchemaFile       string
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

type EngineConfig struct {
	Provider       string
	Region         string
	WorkGroup      string
	Database       string
	OutputLocation string
	PollInterval   time.Duration
	PageSize       int
	DuckDBTables   string
}

type GuardrailConfig struct {
	RowLimit       int
	AllowedSchemas []string
}

type HistoryConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	ArchiveEnabled   bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKLAKE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKLAKE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "ASKLAKE_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKLAKE_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKLAKE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKLAKE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKLAKE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },

		func() error { return applyString(lookup, "ASKLAKE_GENERATOR_PROVIDER", &cfg.Generator.Provider) },
		func() error { return applyString(lookup, "BEDROCK_MODEL_ID", &cfg.Generator.ModelID) },
		func() error { return applyString(lookup, "ASKLAKE_GENERATOR_MODEL", &cfg.Generator.ModelID) },
		func() error { return applyString(lookup, "ASKLAKE_GENERATOR_REGION", &cfg.Generator.Region) },
		func() error { return applyString(lookup, "ASKLAKE_GENERATOR_BASE_URL", &cfg.Generator.BaseURL) },
		func() error { return applyString(lookup, "ASKLAKE_GENERATOR_API_KEY", &cfg.Generator.APIKey) },
		func() error { return applyFloat(lookup, "ASKLAKE_GENERATOR_TEMPERATURE", &cfg.Generator.Temperature) },
		func() error { return applyDuration(lookup, "ASKLAKE_GENERATOR_TIMEOUT", &cfg.Generator.Timeout) },
		func() error { return applyInt(lookup, "ASKLAKE_GENERATOR_SQL_MAX_TOKENS", &cfg.Generator.SQLMaxTokens) },
		func() error {
			return applyInt(lookup, "ASKLAKE_GENERATOR_SUMMARY_MAX_TOKENS", &cfg.Generator.SummaryMaxTokens)
		},
		func() error { return applyString(lookup, "ASKLAKE_SCHEMA_FILE", &cfg.Generator.SchemaFile) },

		func() error { return applyInt(lookup, "ASKLAKE_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts) },
		func() error { return applyDuration(lookup, "ASKLAKE_RETRY_BASE_DELAY", &cfg.Retry.BaseDelay) },
		func() error { return applyDuration(lookup, "ASKLAKE_RETRY_MAX_DELAY", &cfg.Retry.MaxDelay) },
		func() error { return applyDuration(lookup, "ASKLAKE_RETRY_MAX_JITTER", &cfg.Retry.MaxJitter) },

		func() error { return applyString(lookup, "ASKLAKE_ENGINE_PROVIDER", &cfg.Engine.Provider) },
		func() error { return applyString(lookup, "ASKLAKE_ENGINE_REGION", &cfg.Engine.Region) },
		func() error { return applyString(lookup, "ATHENA_WORKGROUP", &cfg.Engine.WorkGroup) },
		func() error { return applyString(lookup, "ATHENA_DATABASE", &cfg.Engine.Database) },
		func() error { return applyString(lookup, "ATHENA_OUTPUT_S3", &cfg.Engine.OutputLocation) },
		func() error { return applyDuration(lookup, "ASKLAKE_ENGINE_POLL_INTERVAL", &cfg.Engine.PollInterval) },
		func() error { return applyInt(lookup, "ASKLAKE_ENGINE_PAGE_SIZE", &cfg.Engine.PageSize) },
		func() error { return applyString(lookup, "ASKLAKE_DUCKDB_TABLES", &cfg.Engine.DuckDBTables) },

		func() error { return applyInt(lookup, "MAX_ROWS", &cfg.Guardrail.RowLimit) },
		func() error { return applyInt(lookup, "ASKLAKE_MAX_ROWS", &cfg.Guardrail.RowLimit) },
		func() error { return applyList(lookup, "ALLOWED_SCHEMAS", &cfg.Guardrail.AllowedSchemas) },
		func() error { return applyList(lookup, "ASKLAKE_ALLOWED_SCHEMAS", &cfg.Guardrail.AllowedSchemas) },

		func() error { return applyString(lookup, "ASKLAKE_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "ASKLAKE_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyInt(lookup, "ASKLAKE_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "ASKLAKE_HISTORY_CONN_MAX_IDLE_TIME", &cfg.History.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "ASKLAKE_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime)
		},

		func() error { return applyString(lookup, "ASKLAKE_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKLAKE_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKLAKE_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKLAKE_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "ASKLAKE_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "ASKLAKE_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKLAKE_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "ASKLAKE_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "ASKLAKE_ARCHIVE_ENABLED", &cfg.ObjectStore.ArchiveEnabled) },

		func() error { return applyBool(lookup, "ASKLAKE_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKLAKE_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Generator.Provider {
	case GeneratorBedrock, GeneratorOpenAI:
	default:
		return fmt.Errorf("invalid ASKLAKE_GENERATOR_PROVIDER: %q", c.Generator.Provider)
	}
	switch c.Engine.Provider {
	case EngineAthena, EngineDuckDB:
	default:
		return fmt.Errorf("invalid ASKLAKE_ENGINE_PROVIDER: %q", c.Engine.Provider)
	}
	if c.Guardrail.RowLimit <= 0 {
		return fmt.Errorf("row limit must be positive, got %d", c.Guardrail.RowLimit)
	}
	if len(c.Guardrail.AllowedSchemas) == 0 {
		return fmt.Errorf("at least one allowed schema is required")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine poll interval must be positive")
	}
	if c.Engine.PageSize <= 0 || c.Engine.PageSize > 1000 {
		return fmt.Errorf("engine page size must be within 1..1000, got %d", c.Engine.PageSize)
	}
	if c.Profile == ProfileProd && c.Engine.Provider == EngineAthena {
		if c.Engine.WorkGroup == "" {
			return fmt.Errorf("ATHENA_WORKGROUP is required")
		}
		if c.Engine.Database == "" {
			return fmt.Errorf("ATHENA_DATABASE is required")
		}
		if c.Engine.OutputLocation == "" {
			return fmt.Errorf("ATHENA_OUTPUT_S3 is required")
		}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "asklake-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Generator: GeneratorConfig{
			Provider:         GeneratorBedrock,
			ModelID:          "anthropic.claude-3-5-sonnet-20240620-v1:0",
			Region:           "us-east-1",
			BaseURL:          "https://api.openai.com",
			Temperature:      0,
			Timeout:          30 * time.Second,
			SQLMaxTokens:     300,
			SummaryMaxTokens: 150,
		},
		Retry: RetryConfig{
			MaxAttempts: 6,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			MaxJitter:   300 * time.Millisecond,
		},
		Engine: EngineConfig{
			Provider:     EngineDuckDB,
			Region:       "us-east-1",
			WorkGroup:    "primary",
			Database:     "nyc_taxi",
			PollInterval: 800 * time.Millisecond,
			PageSize:     1000,
		},
		Guardrail: GuardrailConfig{
			RowLimit:       100,
			AllowedSchemas: []string{"nyc_taxi"},
		},
		History: HistoryConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "asklake",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
			ArchiveEnabled:   false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Engine.Provider = EngineAthena
		cfg.Engine.WorkGroup = ""
		cfg.Engine.OutputLocation = ""
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList parses a comma separated set. Duplicates and blanks are dropped.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	seen := map[string]struct{}{}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		values = append(values, part)
	}
	sort.Strings(values)
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
