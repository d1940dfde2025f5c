package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFileYAML is the canonical config filename.
	DefaultConfigFileYAML = ".reportspectre.yaml"
	// DefaultConfigFileYML is a compatible alternate config filename.
	DefaultConfigFileYML = ".reportspectre.yml"
)

// FileConfig represents values loaded from a .reportspectre.yaml file.
type FileConfig struct {
	ConfigDir     string `yaml:"config_dir"`
	InputDir      string `yaml:"input_dir"`
	OutputDir     string `yaml:"output_dir"`
	Format        string `yaml:"format"`
	Concurrency   *int   `yaml:"concurrency"`
	FileTimeout   string `yaml:"file_timeout"`
	Classifier    *bool  `yaml:"classifier"`
	OllamaURL     string `yaml:"ollama_url"`
	OllamaModel   string `yaml:"ollama_model"`
	OllamaTimeout string `yaml:"ollama_timeout"`
	MaxRetries    *int   `yaml:"max_retries"`
	RateLimit     *int   `yaml:"rate_limit"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	PostgresURL   string `yaml:"postgres_url"`
	ResultTable   string `yaml:"result_table"`
	Baseline      string `yaml:"baseline"`
	LogLevel      string `yaml:"log_level"`
}

// Normalize trims string fields.
func (fc *FileConfig) Normalize() {
	if fc == nil {
		return
	}
	for _, field := range []*string{
		&fc.ConfigDir, &fc.InputDir, &fc.OutputDir, &fc.Format, &fc.FileTimeout,
		&fc.OllamaURL, &fc.OllamaModel, &fc.OllamaTimeout, &fc.ClickHouseDSN,
		&fc.PostgresURL, &fc.ResultTable, &fc.Baseline, &fc.LogLevel,
	} {
		*field = strings.TrimSpace(*field)
	}
	fc.Format = strings.ToLower(fc.Format)
}

// Apply copies the file values onto cfg. Settings for which changed returns
// true were given on the command line and are left alone.
func (fc *FileConfig) Apply(cfg *Config, changed func(flag string) bool) error {
	if fc == nil || cfg == nil {
		return nil
	}
	if changed == nil {
		changed = func(string) bool { return false }
	}

	setString := func(flag, value string, target *string) {
		if value != "" && !changed(flag) {
			*target = value
		}
	}
	setInt := func(flag string, value *int, target *int) {
		if value != nil && !changed(flag) {
			*target = *value
		}
	}

	setString("config-dir", fc.ConfigDir, &cfg.ConfigDir)
	setString("input", fc.InputDir, &cfg.InputDir)
	setString("output", fc.OutputDir, &cfg.OutputDir)
	setString("format", fc.Format, &cfg.Format)
	setString("ollama-url", fc.OllamaURL, &cfg.OllamaURL)
	setString("ollama-model", fc.OllamaModel, &cfg.OllamaModel)
	setString("clickhouse-dsn", fc.ClickHouseDSN, &cfg.ClickHouseDSN)
	setString("postgres-url", fc.PostgresURL, &cfg.PostgresURL)
	setString("result-table", fc.ResultTable, &cfg.ResultTable)
	setString("baseline", fc.Baseline, &cfg.BaselinePath)
	setString("log-level", fc.LogLevel, &cfg.LogLevel)
	setInt("concurrency", fc.Concurrency, &cfg.Concurrency)
	setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	setInt("rate-limit", fc.RateLimit, &cfg.RateLimit)

	if fc.Classifier != nil && !changed("classifier") {
		cfg.Classifier = *fc.Classifier
	}
	if fc.FileTimeout != "" && !changed("file-timeout") {
		d, err := ParseDuration(fc.FileTimeout)
		if err != nil {
			return fmt.Errorf("invalid file_timeout in config file: %w", err)
		}
		cfg.FileTimeout = d
	}
	if fc.OllamaTimeout != "" && !changed("ollama-timeout") {
		d, err := ParseDuration(fc.OllamaTimeout)
		if err != nil {
			return fmt.Errorf("invalid ollama_timeout in config file: %w", err)
		}
		cfg.OllamaTimeout = d
	}
	return nil
}

// AutoLoadFile discovers and loads the first available config file.
func AutoLoadFile() (*FileConfig, string, error) {
	candidates := []string{
		DefaultConfigFileYAML,
		DefaultConfigFileYML,
	}

	if homeDir, err := os.UserHomeDir(); err == nil && strings.TrimSpace(homeDir) != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, DefaultConfigFileYAML),
			filepath.Join(homeDir, DefaultConfigFileYML),
		)
	}

	return LoadFirstExistingFile(candidates)
}

// LoadFirstExistingFile loads the first config file that exists in paths.
func LoadFirstExistingFile(paths []string) (*FileConfig, string, error) {
	for _, path := range paths {
		candidate := strings.TrimSpace(path)
		if candidate == "" {
			continue
		}

		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("failed to access config file %q: %w", candidate, err)
		}
		if info.IsDir() {
			return nil, "", fmt.Errorf("config path %q is a directory, expected a file", candidate)
		}

		cfg, err := LoadFile(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}

	return nil, "", nil
}

// LoadFile loads config values from a specific YAML file path.
func LoadFile(path string) (*FileConfig, error) {
	filename := strings.TrimSpace(path)
	if filename == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", filename, err)
	}

	cfg := &FileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", filename, err)
	}

	cfg.Normalize()
	return cfg, nil
}
