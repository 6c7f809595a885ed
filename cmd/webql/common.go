package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/config"
	applog "github.com/nao1215/webql/internal/log"
	"github.com/nao1215/webql/internal/report"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// Output formats accepted by --format.
const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getPersistentString reads a string flag defined on the root command.
func getPersistentString(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		value, _ = cmd.Root().PersistentFlags().GetString(name) //nolint:errcheck // missing flag yields ""
	}
	return value
}

// getPersistentBool reads a bool flag defined on the root command.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, _ = cmd.Root().PersistentFlags().GetBool(name) //nolint:errcheck // missing flag yields false
	}
	return value
}

// loadConfig creates a Config from the global flags and the configuration file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.NoColor = getPersistentBool(cmd, "no-color")
	cfg.ConfigFilePath = getPersistentString(cmd, "config")
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger creates the redacting logger for a command and makes it the
// default. --log-json switches the records to JSON lines.
func setupLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	var logger *slog.Logger
	if getPersistentBool(cmd, "log-json") {
		logger = applog.NewJSONLogger(cmd.ErrOrStderr(), verbose)
	} else {
		logger = applog.NewLogger(cmd.ErrOrStderr(), verbose)
	}
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, and after
// maxTime when it is positive.
func signalContext(parent context.Context, maxTime time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if maxTime <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, maxTime)
	return ctx, func() {
		cancel()
		stop()
	}
}

// addCrawlFlags registers the flags shared by scan and analyze.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir,
		"Output directory for harvested files")
	cmd.Flags().BoolP("aggressive", "a", false,
		"Also collect every quoted .js path found in HTML")
	cmd.Flags().BoolP("secrets", "s", false,
		"Run trufflehog over the harvested files")
	cmd.Flags().Bool("no-deobfuscate", false,
		"Do not run webcrack on harvested scripts")
	cmd.Flags().Int("max-urls", config.DefaultMaxURLs,
		"Maximum number of URLs fetched per target (0 = unlimited)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().Duration("tool-timeout", config.DefaultToolTimeout,
		"Timeout for each external tool invocation")
	cmd.Flags().Duration("max-time", 0,
		"Overall time limit; partial results are kept (0 = none)")
	cmd.Flags().Float64("rate-limit", config.DefaultRateLimit,
		"Maximum requests per second (0 = unlimited)")
	cmd.Flags().String("user-agent", "", "User-Agent header for requests")
	cmd.Flags().String("proxy", "", "Proxy URL (socks5://, socks5h://, http://)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
}

// applyCrawlFlags copies the crawl flags into cfg.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) (time.Duration, error) {
	var err error
	flags := cmd.Flags()

	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return 0, err
	}
	if cfg.Aggressive, err = flags.GetBool("aggressive"); err != nil {
		return 0, err
	}
	if cfg.Secrets, err = flags.GetBool("secrets"); err != nil {
		return 0, err
	}
	noDeobfuscate, err := flags.GetBool("no-deobfuscate")
	if err != nil {
		return 0, err
	}
	cfg.Deobfuscate = !noDeobfuscate
	if cfg.MaxURLs, err = flags.GetInt("max-urls"); err != nil {
		return 0, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return 0, err
	}
	if cfg.ToolTimeout, err = flags.GetDuration("tool-timeout"); err != nil {
		return 0, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
		return 0, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return 0, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return 0, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return 0, err
	}
	maxTime, err := flags.GetDuration("max-time")
	if err != nil {
		return 0, err
	}
	return maxTime, nil
}

// addReportFlags registers the report format flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write report to specified file path (creates directories if needed)")
}

// applyReportFlags copies the report flags into cfg.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("report"); err != nil {
		return err
	}
	return nil
}

// reportFormat returns the format selected by cfg.
func reportFormat(cfg *config.Config) string {
	switch {
	case cfg.JSONReport:
		return formatJSON
	case cfg.MarkdownReport:
		return formatMarkdown
	default:
		return formatText
	}
}

// checkFormat validates a --format value.
func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatMarkdown:
		return nil
	default:
		return fmt.Errorf("%w: %s (want text, json or markdown)", ErrUnknownFormat, format)
	}
}

// newReportWriter creates the writer for format.
func newReportWriter(format string, w io.Writer, cfg *config.Config) (report.Writer, error) {
	switch format {
	case formatJSON:
		return report.NewJSONWriter(w, report.WithPrettyPrint()), nil
	case formatMarkdown:
		return report.NewMarkdownWriter(w), nil
	case formatText:
		// color.NoColor is set by fatih/color when stdout is not a terminal.
		colored := !cfg.NoColor && cfg.ReportFile == "" && !color.NoColor
		return report.NewSimpleWriter(w,
			report.WithColor(colored),
			report.WithVerbose(cfg.Verbose),
		), nil
	default:
		return nil, checkFormat(format)
	}
}

// openReportWriter opens the report destination and creates its writer.
// With a report file, the selected format goes to the file and a text
// summary still goes to stdout.
func openReportWriter(cmd *cobra.Command, cfg *config.Config) (report.Writer, func() error, error) {
	out, closeOut, err := openReportOutput(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	w, err := newReportWriter(reportFormat(cfg), out, cfg)
	if err != nil {
		_ = closeOut() //nolint:errcheck // the writer error is reported instead
		return nil, nil, err
	}
	if cfg.ReportFile == "" {
		return w, closeOut, nil
	}

	terminal := report.NewSimpleWriter(cmd.OutOrStdout(),
		report.WithColor(!cfg.NoColor && !color.NoColor),
		report.WithVerbose(cfg.Verbose),
	)
	return report.NewMultiWriter(w, terminal), closeOut, nil
}

// openReportOutput returns the report destination: cfg.ReportFile, or the
// command's stdout. The close function is always safe to call.
func openReportOutput(cmd *cobra.Command, cfg *config.Config) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain sensitive findings, so only the owner can read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
