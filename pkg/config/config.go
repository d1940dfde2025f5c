package config

import (
	"fmt"
	"strings"
	"time"
)

// Output formats accepted by --format.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
	FormatAll   = "all"
)

// Config holds all runtime configuration
type Config struct {
	// Report type settings
	ConfigDir string

	// Input/output settings
	InputDir  string
	OutputDir string
	Format    string

	// Concurrency settings
	Concurrency int
	FileTimeout time.Duration

	// Classifier settings
	Classifier    bool
	OllamaURL     string
	OllamaModel   string
	OllamaTimeout time.Duration
	MaxRetries    int
	RateLimit     int

	// Result sinks
	ClickHouseDSN string
	PostgresURL   string
	ResultTable   string

	// Analysis settings
	ReportMonth string

	// Baseline settings
	BaselinePath   string
	UpdateBaseline bool

	// Operational flags
	Interactive bool
	Verbose     bool
	DryRun      bool
	LogLevel    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ConfigDir:     "./config/report_types",
		InputDir:      "./input",
		OutputDir:     "./output",
		Format:        FormatText,
		Concurrency:   4,
		FileTimeout:   2 * time.Minute,
		Classifier:    false,
		OllamaURL:     "http://localhost:11434",
		OllamaModel:   "llama3.1:8b",
		OllamaTimeout: 30 * time.Second,
		MaxRetries:    3,
		RateLimit:     2,
		ResultTable:   "report_results",
		Verbose:       false,
		DryRun:        false,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatText, FormatJSON, FormatSARIF, FormatAll:
	default:
		return fmt.Errorf("invalid format %q: must be one of text, json, sarif, all", c.Format)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency %d: must be at least 1", c.Concurrency)
	}
	if c.FileTimeout < 0 {
		return fmt.Errorf("invalid file timeout %s: must be positive", c.FileTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid max retries %d: must be at least 1", c.MaxRetries)
	}
	if strings.TrimSpace(c.ConfigDir) == "" {
		return fmt.Errorf("config directory is required")
	}
	return nil
}

// WritesText reports whether the text summary is requested.
func (c *Config) WritesText() bool {
	return c.Format == FormatText || c.Format == FormatAll
}

// WritesJSON reports whether per-file JSON results are requested.
func (c *Config) WritesJSON() bool {
	return c.Format == FormatJSON || c.Format == FormatAll
}

// WritesSARIF reports whether SARIF output is requested.
func (c *Config) WritesSARIF() bool {
	return c.Format == FormatSARIF || c.Format == FormatAll
}
