package config

import (
	"strconv"
	"strings"
	"time"
)

// Config is the root application configuration.
//
// Settings whose zero value is meaningful (false, 0) carry no env-default
// tag: cleanenv would apply the tag over an explicit YAML zero. Their
// defaults come from Defaults instead.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Lookup    LookupConfig    `yaml:"lookup"`
	Retry     RetryConfig     `yaml:"retry"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Database  DatabaseConfig  `yaml:"database"`
	Embed     EmbedConfig     `yaml:"embed"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Content-Type,X-Request-Id"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// RateLimitConfig bounds how often one client may trigger lookups.
// Zero LookupsPerMinute disables the limit.
type RateLimitConfig struct {
	LookupsPerMinute int           `yaml:"lookups_per_minute" env:"RATE_LIMIT_LOOKUPS_PER_MINUTE"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"   env:"RATE_LIMIT_CLEANUP_INTERVAL"   env-default:"5m"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"  env:"SERVER_METRICS_ENABLED"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// LookupConfig configures queries against the explanation-search service.
// Credential has no default and must be supplied.
type LookupConfig struct {
	EndpointURL      string        `yaml:"endpoint_url"      env:"LOOKUP_ENDPOINT_URL"      env-default:"https://www.neuronpedia.org/api/search-all"`
	ModelID          string        `yaml:"model_id"          env:"LOOKUP_MODEL_ID"          env-default:"gemma-2-2b"`
	SourceSet        string        `yaml:"source_set"        env:"LOOKUP_SOURCE_SET"        env-default:"gemmascope-res-16k"`
	LayersRaw        string        `yaml:"layers"            env:"LOOKUP_LAYERS"            env-default:"20-gemmascope-res-16k"`
	SortIndexesRaw   string        `yaml:"sort_indexes"      env:"LOOKUP_SORT_INDEXES"`
	IgnoreBOS        bool          `yaml:"ignore_bos"        env:"LOOKUP_IGNORE_BOS"`
	DensityThreshold float64       `yaml:"density_threshold" env:"LOOKUP_DENSITY_THRESHOLD"`
	MaxResults       int           `yaml:"max_results"       env:"LOOKUP_MAX_RESULTS"       env-default:"50"`
	Credential       string        `yaml:"credential"        env:"LOOKUP_CREDENTIAL"        env-required:"true"`
	RequestTimeout   time.Duration `yaml:"request_timeout"   env:"LOOKUP_REQUEST_TIMEOUT"   env-default:"15s"`

	// Layers is parsed from LayersRaw during validation.
	Layers []string `yaml:"-" env:"-"`
	// SortIndexes is parsed from SortIndexesRaw during validation.
	SortIndexes []int `yaml:"-" env:"-"`
}

// RetryConfig bounds the retry policy applied to transient lookup failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"     env:"RETRY_MAX_ATTEMPTS"     env-default:"3"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"RETRY_INITIAL_INTERVAL" env-default:"200ms"`
	MaxInterval     time.Duration `yaml:"max_interval"     env:"RETRY_MAX_INTERVAL"     env-default:"2s"`
}

// CacheConfig holds per-session lookup cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"0s"`
}

// SessionConfig holds settings for interactive sessions served over HTTP.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions" env:"SESSION_MAX_SESSIONS" env-default:"1000"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
}

// TokenizerConfig selects optional Unicode normalization before splitting.
type TokenizerConfig struct {
	UnicodeForm string `yaml:"unicode_form" env:"TOKENIZER_UNICODE_FORM" env-default:"none"`
}

// DatabaseConfig holds PostgreSQL connection settings for the lookup log.
// An empty DSN disables the lookup log.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DATABASE_AUTO_MIGRATE"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

// EmbedConfig holds the base URL of the embeddable feature dashboard.
type EmbedConfig struct {
	BaseURL string `yaml:"base_url" env:"EMBED_BASE_URL" env-default:"https://neuronpedia.org"`
	Height  int    `yaml:"height"   env:"EMBED_HEIGHT"   env-default:"300"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Defaults returns the configuration every load starts from, holding the
// defaults of settings that may legitimately be set to zero.
func Defaults() Config {
	return Config{
		Server:    ServerConfig{MetricsEnabled: true},
		Lookup:    LookupConfig{IgnoreBOS: true, DensityThreshold: -1},
		Database:  DatabaseConfig{MinConns: 1, AutoMigrate: true},
		RateLimit: RateLimitConfig{LookupsPerMinute: 120},
	}
}
