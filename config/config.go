// Package config provides configuration management for the application.
//
// Values are resolved in three layers: built-in defaults, an optional
// config.yaml (with ${VAR} and ${VAR:-default} expansion), then environment
// variables. A .env file in the working directory is loaded first.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBodySizeLimit is the default maximum request body size (10MB)
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Body size limit bounds
const (
	MinBodySizeLimit int64 = 1024              // 1KB
	MaxBodySizeLimit int64 = 100 * 1024 * 1024 // 100MB
)

// DefaultMaxChunkLength is the default bound on one upload fragment
const DefaultMaxChunkLength = 1500

// minChunkLength is one base64 quantum
const minChunkLength = 4

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	HTTP    HTTPConfig    `yaml:"http"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	CallLog CallLogConfig `yaml:"call_log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// BodySizeLimit accepts a byte count or a K/M suffixed size (e.g. "10M")
	BodySizeLimit  string `yaml:"body_size_limit"`
	SwaggerEnabled bool   `yaml:"swagger_enabled"`
	// AdminEndpointsEnabled serves the read-only call log API under /admin/api/v1
	AdminEndpointsEnabled bool `yaml:"admin_endpoints_enabled"`
	// AdminKey, when set, is required as a Bearer token on the admin API
	AdminKey string `yaml:"admin_key"`
}

// BackendConfig describes the script deployment every call is relayed to
type BackendConfig struct {
	URL            string `yaml:"url"`
	MaxChunkLength int    `yaml:"max_chunk_length"`
	// UploadConcurrency bounds concurrent independent upload sessions
	UploadConcurrency int `yaml:"upload_concurrency"`
}

// HTTPConfig holds outbound HTTP client timeouts in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// CacheConfig holds reference cache configuration
type CacheConfig struct {
	// Type is "local", "redis" or "none"
	Type string `yaml:"type"`
	// TTL is the entry lifetime in seconds
	TTL        int         `yaml:"ttl"`
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// StorageConfig selects the call log database
type StorageConfig struct {
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// CallLogConfig controls persistence of relay and upload outcomes
type CallLogConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	// FlushInterval is in seconds
	FlushInterval int `yaml:"flush_interval"`
	RetentionDays int `yaml:"retention_days"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig controls the process logger
type LogConfig struct {
	// Format is "auto", "json" or "pretty"
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	// File, when set, receives logs through a rotating writer
	File string `yaml:"file"`
}

// LoadResult is the outcome of Load
type LoadResult struct {
	Config *Config
	// ConfigFile is the YAML file that was applied, empty when none was found
	ConfigFile string
}

// configPaths are searched in order for a YAML config file
var configPaths = []string{"config/config.yaml", "config.yaml"}

// Load reads configuration from defaults, config.yaml and the environment,
// then validates the result.
func Load() (*LoadResult, error) {
	// Optional; a missing .env is not an error
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	var used string
	for _, p := range configPaths {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		used = p
		break
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, ConfigFile: used}, nil
}

// buildDefaultConfig returns the configuration used when nothing is set
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Backend: BackendConfig{
			MaxChunkLength:    DefaultMaxChunkLength,
			UploadConcurrency: 4,
		},
		HTTP: HTTPConfig{
			Timeout:               60,
			ResponseHeaderTimeout: 60,
		},
		Cache: CacheConfig{
			Type:       "local",
			TTL:        6 * 60 * 60,
			MaxEntries: 512,
			Redis: RedisConfig{
				Key: "classrelay:ref:",
			},
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/classrelay.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "classrelay"},
		},
		CallLog: CallLogConfig{
			BufferSize:    1000,
			FlushInterval: 5,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Format: "auto",
			Level:  "info",
		},
	}
}

// applyEnvOverrides overwrites cfg with any environment variable that is set
func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.BodySizeLimit, "BODY_SIZE_LIMIT")
	setString(&cfg.Server.AdminKey, "ADMIN_KEY")
	// GAS_URL is the name older deployments use; BACKEND_URL wins when both are set
	setString(&cfg.Backend.URL, "GAS_URL")
	setString(&cfg.Backend.URL, "BACKEND_URL")
	setString(&cfg.Cache.Type, "REF_CACHE_TYPE")
	setString(&cfg.Cache.Redis.URL, "REDIS_URL")
	setString(&cfg.Cache.Redis.Key, "REDIS_KEY")
	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Storage.PostgreSQL.URL, "POSTGRES_URL")
	setString(&cfg.Storage.MongoDB.URL, "MONGODB_URL")
	setString(&cfg.Storage.MongoDB.Database, "MONGODB_DATABASE")
	setString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File, "LOG_FILE")

	ints := []struct {
		dst *int
		key string
	}{
		{&cfg.Backend.MaxChunkLength, "MAX_CHUNK_LENGTH"},
		{&cfg.Backend.UploadConcurrency, "UPLOAD_CONCURRENCY"},
		{&cfg.HTTP.Timeout, "HTTP_TIMEOUT"},
		{&cfg.HTTP.ResponseHeaderTimeout, "HTTP_RESPONSE_HEADER_TIMEOUT"},
		{&cfg.Cache.TTL, "REF_CACHE_TTL"},
		{&cfg.Cache.MaxEntries, "REF_CACHE_MAX_ENTRIES"},
		{&cfg.Storage.PostgreSQL.MaxConns, "POSTGRES_MAX_CONNS"},
		{&cfg.CallLog.BufferSize, "CALL_LOG_BUFFER_SIZE"},
		{&cfg.CallLog.FlushInterval, "CALL_LOG_FLUSH_INTERVAL"},
		{&cfg.CallLog.RetentionDays, "CALL_LOG_RETENTION_DAYS"},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	bools := []struct {
		dst *bool
		key string
	}{
		{&cfg.Server.SwaggerEnabled, "SWAGGER_ENABLED"},
		{&cfg.Server.AdminEndpointsEnabled, "ADMIN_ENDPOINTS_ENABLED"},
		{&cfg.CallLog.Enabled, "CALL_LOG_ENABLED"},
		{&cfg.Metrics.Enabled, "METRICS_ENABLED"},
	}
	for _, b := range bools {
		if err := setBool(b.dst, b.key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

// Validate reports the first configuration problem found
func (c *Config) Validate() error {
	if err := ValidateBackendURL(c.Backend.URL); err != nil {
		return err
	}
	if c.Backend.MaxChunkLength < minChunkLength {
		return fmt.Errorf("MAX_CHUNK_LENGTH must be at least %d, got %d", minChunkLength, c.Backend.MaxChunkLength)
	}
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		return err
	}
	switch c.Cache.Type {
	case "local", "redis", "none", "":
	default:
		return fmt.Errorf("invalid REF_CACHE_TYPE %q (valid: local, redis, none)", c.Cache.Type)
	}
	switch c.Log.Format {
	case "auto", "json", "pretty", "":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (valid: auto, json, pretty)", c.Log.Format)
	}
	return nil
}

// ValidateBackendURL requires an absolute http or https URL
func ValidateBackendURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("BACKEND_URL (or GAS_URL) is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid BACKEND_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

var bodySizePattern = regexp.MustCompile(`^(\d+)([KkMmGg][Bb]?)?$`)

// ParseBodySizeLimit converts a size such as "10M" to bytes.
// An empty string yields DefaultBodySizeLimit.
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultBodySizeLimit, nil
	}
	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid body size limit %q: expected a number with optional K, M or G suffix", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid body size limit %q: %w", s, err)
	}
	switch strings.TrimSuffix(strings.ToUpper(m[2]), "B") {
	case "K":
		n *= 1024
	case "M":
		n *= 1024 * 1024
	case "G":
		n *= 1024 * 1024 * 1024
	}
	return n, nil
}

// ValidateBodySizeLimit checks format and bounds of a body size limit
func ValidateBodySizeLimit(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := ParseBodySizeLimit(s)
	if err != nil {
		return err
	}
	if n < MinBodySizeLimit || n > MaxBodySizeLimit {
		return fmt.Errorf("body size limit %q out of range (1K to 100M)", s)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// ${VAR} is left untouched when VAR is unset or empty.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := m[1], m[2] != "", m[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}
