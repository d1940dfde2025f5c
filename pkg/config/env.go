package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces the tool's own environment variables.
const EnvPrefix = "REPORTSPECTRE_"

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv copies environment overrides onto cfg. lookup is usually
// os.LookupEnv. Settings for which changed returns true came from flags and
// are kept.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool), changed func(flag string) bool) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if changed == nil {
		changed = func(string) bool { return false }
	}

	get := func(flag string, names ...string) (string, bool) {
		if changed(flag) {
			return "", false
		}
		for _, name := range names {
			if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value), true
			}
		}
		return "", false
	}

	if v, ok := get("ollama-model", "OLLAMA_MODEL"); ok {
		cfg.OllamaModel = v
	}
	if v, ok := get("ollama-url", "OLLAMA_BASE_URL"); ok {
		cfg.OllamaURL = v
	}
	if v, ok := get("ollama-timeout", "OLLAMA_TIMEOUT"); ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid OLLAMA_TIMEOUT: %w", err)
		}
		cfg.OllamaTimeout = d
	}
	if v, ok := get("input", "INPUT_DIRECTORY"); ok {
		cfg.InputDir = v
	}
	if v, ok := get("output", "OUTPUT_DIRECTORY"); ok {
		cfg.OutputDir = v
	}
	if v, ok := get("config-dir", "CONFIG_DIRECTORY"); ok {
		cfg.ConfigDir = v
	}
	if v, ok := get("max-retries", "MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v, ok := get("classifier", "FALLBACK_TO_LLM"); ok {
		cfg.Classifier = strings.EqualFold(v, "true")
	}
	if v, ok := get("concurrency", "ENABLE_PARALLEL_PROCESSING"); ok && strings.EqualFold(v, "false") {
		cfg.Concurrency = 1
	}
	if v, ok := get("clickhouse-dsn", EnvPrefix+"CLICKHOUSE_DSN"); ok {
		cfg.ClickHouseDSN = v
	}
	if v, ok := get("postgres-url", EnvPrefix+"POSTGRES_URL", "DATABASE_URL"); ok {
		cfg.PostgresURL = v
	}
	if v, ok := get("log-level", EnvPrefix+"LOG_LEVEL", "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return nil
}

// parseSeconds accepts a bare number of seconds or a duration string.
func parseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative timeout %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	return ParseDuration(s)
}
