package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/reportspectre/internal/analyzer"
	"github.com/ppiankov/reportspectre/internal/baseline"
	"github.com/ppiankov/reportspectre/internal/classifier"
	"github.com/ppiankov/reportspectre/internal/detector"
	"github.com/ppiankov/reportspectre/internal/logging"
	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporter"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/runner"
	"github.com/ppiankov/reportspectre/internal/sink"
	"github.com/ppiankov/reportspectre/internal/source"
	"github.com/ppiankov/reportspectre/internal/timeline"
	"github.com/ppiankov/reportspectre/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	// String variables for custom duration parsing
	var fileTimeoutStr string
	var ollamaTimeoutStr string
	var configPath string
	var envFile string

	cmd := &cobra.Command{
		Use:     "analyze [files...]",
		Aliases: []string{"run"},
		Short:   "Classify and score reports",
		Long: `Classify every report in the input directory (or the files given as
arguments), run the checks of its report type, and score its risk.

Configuration is read from defaults, then .reportspectre.yaml, then the
environment (.env included), then flags; later sources win.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return prepareConfig(cmd, cfg, configPath, envFile, fileTimeoutStr, ollamaTimeoutStr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAnalyze(ctx, cfg, args, cmd.OutOrStdout())
		},
	}

	// Config sources
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a .reportspectre.yaml file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	cmd.Flags().StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "Directory of report type YAML files")

	// Input/output flags
	cmd.Flags().StringVar(&cfg.InputDir, "input", cfg.InputDir, "Input directory")
	cmd.Flags().StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Output directory")
	cmd.Flags().StringVar(&cfg.Format, "format", cfg.Format, "Output format (text, json, sarif, all)")

	// Concurrency flags
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Worker pool size")
	cmd.Flags().StringVar(&fileTimeoutStr, "file-timeout", "2m", "Per-file timeout (e.g., 30s, 2m, 1h)")

	// Classifier flags
	cmd.Flags().BoolVar(&cfg.Classifier, "classifier", cfg.Classifier, "Enable the LLM classification stage")
	cmd.Flags().StringVar(&cfg.OllamaURL, "ollama-url", cfg.OllamaURL, "Ollama base URL")
	cmd.Flags().StringVar(&cfg.OllamaModel, "ollama-model", cfg.OllamaModel, "Ollama model")
	cmd.Flags().StringVar(&ollamaTimeoutStr, "ollama-timeout", "30s", "Classifier request timeout")
	cmd.Flags().IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Classifier attempts per request")
	cmd.Flags().IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Classifier requests per second")

	// Sink flags
	cmd.Flags().StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", "", "Store results in ClickHouse")
	cmd.Flags().StringVar(&cfg.PostgresURL, "postgres-url", "", "Store results in Postgres")
	cmd.Flags().StringVar(&cfg.ResultTable, "result-table", cfg.ResultTable, "Result table name for database sinks")

	// Analysis flags
	cmd.Flags().StringVar(&cfg.ReportMonth, "report-month", "", "Pin the report month (YYYY-MM)")
	cmd.Flags().BoolVar(&cfg.Interactive, "interactive", false, "Ask for the report type of unrecognized files")

	// Baseline flags
	cmd.Flags().StringVar(&cfg.BaselinePath, "baseline", "", "Suppress findings recorded in this baseline file")
	cmd.Flags().BoolVar(&cfg.UpdateBaseline, "update-baseline", false, "Write current findings to the baseline file")

	// Operational flags
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "Dry run mode (don't write output)")

	return cmd
}

// prepareConfig merges flags, config file and environment into cfg.
func prepareConfig(cmd *cobra.Command, cfg *config.Config, configPath, envFile, fileTimeoutStr, ollamaTimeoutStr string) error {
	var err error

	// 1. Flag durations
	if fileTimeoutStr != "" {
		cfg.FileTimeout, err = config.ParseDuration(fileTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid --file-timeout duration: %w", err)
		}
	}
	if ollamaTimeoutStr != "" {
		cfg.OllamaTimeout, err = config.ParseDuration(ollamaTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid --ollama-timeout duration: %w", err)
		}
	}

	changed := func(flag string) bool { return cmd.Flags().Changed(flag) }

	// 2. Config file
	var fc *config.FileConfig
	if configPath != "" {
		fc, err = config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		var path string
		fc, path, err = config.AutoLoadFile()
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		if fc != nil {
			slog.Debug("config file loaded", slog.String("path", path))
		}
	}
	if fc != nil {
		if err := fc.Apply(cfg, changed); err != nil {
			return err
		}
	}

	// 3. Environment
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv, changed); err != nil {
		return err
	}

	// 4. Validation
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ReportMonth != "" {
		if _, err := timeline.ParseMonth(cfg.ReportMonth); err != nil {
			return fmt.Errorf("invalid --report-month: %w", err)
		}
	}
	if cfg.UpdateBaseline && cfg.BaselinePath == "" {
		cfg.BaselinePath = baseline.DefaultPath
	}

	cfg.Verbose = verbose
	if cfg.LogLevel != "" && !verbose {
		level, ok := logging.ParseLevel(cfg.LogLevel)
		if !ok {
			return fmt.Errorf("invalid log level %q", cfg.LogLevel)
		}
		logging.InitLevel(level)
	}
	return nil
}

// runAnalyze executes the analysis workflow
func runAnalyze(ctx context.Context, cfg *config.Config, files []string, out io.Writer) error {
	startTime := time.Now()

	// 1. Load report types
	registry, err := reporttype.LoadDir(cfg.ConfigDir)
	if err != nil {
		if isFirstRun {
			fmt.Fprintf(out, "No report types found in %s. Add one YAML file per report type and run again.\n", cfg.ConfigDir)
		}
		return fmt.Errorf("failed to load report types: %w", err)
	}
	holder := reporttype.NewHolder(cfg.ConfigDir, registry)
	stopReload := reloadOnHangup(holder)
	defer stopReload()
	slog.Info("report types loaded", slog.Int("count", registry.Len()), slog.String("dir", cfg.ConfigDir))

	// 2. Wire detection and analysis
	provider := source.Default()
	opts := []detector.Option{detector.WithClassifierTimeout(cfg.OllamaTimeout)}
	if cfg.Classifier {
		opts = append(opts, detector.WithClassifier(classifier.New(
			cfg.OllamaURL,
			cfg.OllamaModel,
			classifier.WithTimeout(cfg.OllamaTimeout),
			classifier.WithMaxRetries(cfg.MaxRetries),
			classifier.WithRateLimit(cfg.RateLimit),
		)))
	}
	if cfg.Interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("invalid --interactive: stdin must be a terminal")
		}
		opts = append(opts, detector.WithSelector(newPromptSelector(os.Stdin, out)))
	}
	det := detector.New(holder, provider, opts...)

	analyzerOpts := []analyzer.Option{analyzer.WithProvider(provider)}
	if cfg.ReportMonth != "" {
		month, err := timeline.ParseMonth(cfg.ReportMonth)
		if err != nil {
			return fmt.Errorf("invalid --report-month: %w", err)
		}
		analyzerOpts = append(analyzerOpts, analyzer.WithReportMonth(month))
	}
	an := analyzer.New(analyzerOpts...)

	// 3. Result sinks
	results, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := results.Close(); err != nil {
			slog.Warn("failed to close result sinks", slog.String("error", err.Error()))
		}
	}()

	// 4. Input files
	if len(files) == 0 {
		files, err = runner.Discover(cfg.InputDir, provider.Supports)
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		fmt.Fprintf(out, "No supported files found in %s\n", cfg.InputDir)
		return nil
	}

	// 5. Run
	runOpts := []runner.Option{
		runner.WithWorkers(cfg.Concurrency),
		runner.WithFileTimeout(cfg.FileTimeout),
	}
	if results.Len() > 0 {
		runOpts = append(runOpts, runner.WithSink(results))
	}
	r := runner.New(det, an, runOpts...)
	analyzed, runErr := r.Run(ctx, files)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Warn("run finished with errors", slog.String("error", runErr.Error()))
	}

	// 6. Summary and baseline
	summary := models.Summarize(analyzed)
	summary.Tool = "reportspectre"
	summary.Version = version
	summary.RunID = r.RunID()
	summary.GeneratedAt = time.Now().UTC()
	summary.Duration = time.Since(startTime).Round(time.Millisecond).String()

	report := &reporter.Report{Summary: summary, Results: analyzed}
	remaining, err := applyBaseline(cfg, report)
	if err != nil {
		return err
	}

	// 7. Write output
	if !cfg.DryRun {
		if err := reporter.New(cfg).Generate(report); err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}
	} else {
		fmt.Fprintf(out, "Dry run: %d files analyzed, skipping output\n", summary.TotalFiles)
	}

	if errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if cfg.BaselinePath != "" && !cfg.UpdateBaseline && remaining > 0 {
		return &FindingsError{Count: remaining}
	}
	return nil
}

// openSinks returns the sinks the configuration asks for. Dry runs write nothing.
func openSinks(ctx context.Context, cfg *config.Config) (*sink.Multi, error) {
	if cfg.DryRun {
		return sink.NewMulti(), nil
	}

	var sinks []sink.Sink
	closeAll := func() {
		_ = sink.NewMulti(sinks...).Close()
	}

	if cfg.WritesJSON() {
		dir, err := sink.NewJSONDir(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dir)
	}
	if cfg.ClickHouseDSN != "" {
		ch, err := sink.NewClickHouse(ctx, cfg.ClickHouseDSN, cfg.ResultTable)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open clickhouse sink: %w", err)
		}
		sinks = append(sinks, ch)
	}
	if cfg.PostgresURL != "" {
		pg, err := sink.NewPostgres(ctx, cfg.PostgresURL, cfg.ResultTable)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
	}
	return sink.NewMulti(sinks...), nil
}

// applyBaseline suppresses known findings and optionally records the current
// ones. It returns the number of findings not covered by the baseline.
func applyBaseline(cfg *config.Config, report *reporter.Report) (int, error) {
	if cfg.BaselinePath == "" {
		return len(baseline.Collect(report.Results)), nil
	}

	if cfg.UpdateBaseline {
		set := baseline.Set{}
		baseline.AddAll(set, baseline.CollectFingerprints(report.Results))
		if cfg.DryRun {
			return 0, nil
		}
		if err := baseline.Save(cfg.BaselinePath, set); err != nil {
			return 0, err
		}
		slog.Info("baseline updated", slog.String("path", cfg.BaselinePath), slog.Int("fingerprints", len(set)))
		return 0, nil
	}

	known, err := baseline.Load(cfg.BaselinePath)
	if err != nil {
		return 0, err
	}
	remaining, suppressed := baseline.SuppressKnown(report.Results, known)
	report.Suppressed = suppressed
	return len(remaining), nil
}

// reloadOnHangup reloads report types on SIGHUP until the returned func is called.
func reloadOnHangup(holder *reporttype.Holder) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-hup:
				_ = holder.Reload()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(hup)
		close(done)
	}
}
