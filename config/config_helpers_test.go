package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExpandString tests the expandString function with various scenarios
func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "string without placeholders",
			input:    "simple-string",
			envVars:  map[string]string{},
			expected: "simple-string",
		},
		{
			name:     "simple variable expansion",
			input:    "${API_KEY}",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "sk-12345",
		},
		{
			name:     "variable in middle of string",
			input:    "prefix-${API_KEY}-suffix",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "prefix-sk-12345-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "https", "HOST": "api.example.com", "PORT": "8080"},
			expected: "https://api.example.com:8080",
		},
		{
			name:     "variable with default value - env var exists",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": "sk-real-key"},
			expected: "sk-real-key",
		},
		{
			name:     "variable with default value - env var missing",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{},
			expected: "default-key",
		},
		{
			name:     "variable with default value - env var empty",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": ""},
			expected: "default-key",
		},
		{
			name:     "unresolved variable - no default",
			input:    "${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "${MISSING_VAR}",
		},
		{
			name:     "partially resolved string",
			input:    "${RESOLVED}-${UNRESOLVED}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1-${UNRESOLVED}",
		},
		{
			name:     "mixed resolved and unresolved with defaults",
			input:    "${RESOLVED}:${UNRESOLVED:-fallback}:${MISSING}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1:fallback:${MISSING}",
		},
		{
			name:     "default value with special characters",
			input:    "${BACKEND_URL:-https://script.google.com/macros/s/abc/exec}",
			envVars:  map[string]string{},
			expected: "https://script.google.com/macros/s/abc/exec",
		},
		{
			name:     "default value with colon in it",
			input:    "${URL:-http://localhost:8080}",
			envVars:  map[string]string{},
			expected: "http://localhost:8080",
		},
		{
			name:     "complex real-world example",
			input:    "${SCRIPT_HOST:-https://script.google.com}/macros/s/abc/exec",
			envVars:  map[string]string{},
			expected: "https://script.google.com/macros/s/abc/exec",
		},
		{
			name:     "environment variable set to empty string (no default)",
			input:    "${EMPTY_VAR}",
			envVars:  map[string]string{"EMPTY_VAR": ""},
			expected: "${EMPTY_VAR}",
		},
		{
			name:     "empty default value - env var missing",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "empty default value - env var set",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": "actual-value"},
			expected: "actual-value",
		},
		{
			name:     "empty default value - env var empty",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": ""},
			expected: "",
		},
		{
			name:     "optional url pattern - not set should be empty",
			input:    "${REDIS_URL:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "optional url pattern - set to value",
			input:    "${REDIS_URL:-}",
			envVars:  map[string]string{"REDIS_URL": "redis://cache:6379"},
			expected: "redis://cache:6379",
		},
		{
			name:     "multiple placeholders some resolved some not",
			input:    "prefix-${VAR1}-${VAR2}-${VAR3}-suffix",
			envVars:  map[string]string{"VAR1": "a", "VAR3": "c"},
			expected: "prefix-a-${VAR2}-c-suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				_ = os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					_ = os.Unsetenv(k)
				}
			}()

			result := expandString(tt.input)
			if result != tt.expected {
				t.Errorf("expandString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "3000" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "3000")
				}
			},
		},
		{
			name:    "GAS_URL alias",
			envVars: map[string]string{"GAS_URL": "https://script.google.com/macros/s/abc/exec"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend.URL != "https://script.google.com/macros/s/abc/exec" {
					t.Errorf("Backend.URL = %q", cfg.Backend.URL)
				}
			},
		},
		{
			name: "BACKEND_URL wins over GAS_URL",
			envVars: map[string]string{
				"GAS_URL":     "https://old.example.com/exec",
				"BACKEND_URL": "https://new.example.com/exec",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend.URL != "https://new.example.com/exec" {
					t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "https://new.example.com/exec")
				}
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Type != "postgresql" {
					t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, "postgresql")
				}
				if cfg.Storage.PostgreSQL.URL != "postgres://localhost/test" {
					t.Errorf("Storage.PostgreSQL.URL = %q, want %q", cfg.Storage.PostgreSQL.URL, "postgres://localhost/test")
				}
				if cfg.Storage.PostgreSQL.MaxConns != 20 {
					t.Errorf("Storage.PostgreSQL.MaxConns = %d, want %d", cfg.Storage.PostgreSQL.MaxConns, 20)
				}
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "true", "CALL_LOG_ENABLED": "1", "SWAGGER_ENABLED": "false"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled should be true")
				}
				if !cfg.CallLog.Enabled {
					t.Error("CallLog.Enabled should be true")
				}
				if cfg.Server.SwaggerEnabled {
					t.Error("Server.SwaggerEnabled should be false")
				}
			},
		},
		{
			name:    "admin overrides",
			envVars: map[string]string{"ADMIN_ENDPOINTS_ENABLED": "true", "ADMIN_KEY": "admin-secret"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Server.AdminEndpointsEnabled {
					t.Error("Server.AdminEndpointsEnabled should be true")
				}
				if cfg.Server.AdminKey != "admin-secret" {
					t.Errorf("Server.AdminKey = %q, want %q", cfg.Server.AdminKey, "admin-secret")
				}
			},
		},
		{
			name:    "HTTP timeout overrides",
			envVars: map[string]string{"HTTP_TIMEOUT": "30", "HTTP_RESPONSE_HEADER_TIMEOUT": "45"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.HTTP.Timeout != 30 {
					t.Errorf("HTTP.Timeout = %d, want 30", cfg.HTTP.Timeout)
				}
				if cfg.HTTP.ResponseHeaderTimeout != 45 {
					t.Errorf("HTTP.ResponseHeaderTimeout = %d, want 45", cfg.HTTP.ResponseHeaderTimeout)
				}
			},
		},
		{
			name:    "chunk and cache overrides",
			envVars: map[string]string{"MAX_CHUNK_LENGTH": "800", "REF_CACHE_TYPE": "redis", "REF_CACHE_TTL": "60"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend.MaxChunkLength != 800 {
					t.Errorf("Backend.MaxChunkLength = %d, want 800", cfg.Backend.MaxChunkLength)
				}
				if cfg.Cache.Type != "redis" {
					t.Errorf("Cache.Type = %q, want redis", cfg.Cache.Type)
				}
				if cfg.Cache.TTL != 60 {
					t.Errorf("Cache.TTL = %d, want 60", cfg.Cache.TTL)
				}
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "8080" {
					t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
				}
				if cfg.HTTP.Timeout != 60 {
					t.Errorf("HTTP.Timeout = %d, want 60", cfg.HTTP.Timeout)
				}
				if cfg.Backend.MaxChunkLength != DefaultMaxChunkLength {
					t.Errorf("Backend.MaxChunkLength = %d, want %d", cfg.Backend.MaxChunkLength, DefaultMaxChunkLength)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverrides_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CHUNK_LENGTH", "lots")

	err := applyEnvOverrides(buildDefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "MAX_CHUNK_LENGTH")
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "BODY_SIZE_LIMIT", "GAS_URL", "BACKEND_URL", "REF_CACHE_TYPE", "REDIS_URL", "REDIS_KEY",
		"STORAGE_TYPE", "SQLITE_PATH", "POSTGRES_URL", "MONGODB_URL", "MONGODB_DATABASE",
		"METRICS_ENDPOINT", "LOG_FORMAT", "LOG_LEVEL", "LOG_FILE", "MAX_CHUNK_LENGTH",
		"UPLOAD_CONCURRENCY", "HTTP_TIMEOUT", "HTTP_RESPONSE_HEADER_TIMEOUT", "REF_CACHE_TTL",
		"REF_CACHE_MAX_ENTRIES", "POSTGRES_MAX_CONNS", "CALL_LOG_BUFFER_SIZE",
		"CALL_LOG_FLUSH_INTERVAL", "CALL_LOG_RETENTION_DAYS", "SWAGGER_ENABLED",
		"CALL_LOG_ENABLED", "METRICS_ENABLED", "ADMIN_ENDPOINTS_ENABLED", "ADMIN_KEY",
	} {
		t.Setenv(k, "")
	}
}
