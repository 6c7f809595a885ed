package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/config"
	"github.com/nao1215/webql/internal/model"
	"github.com/nao1215/webql/internal/pipeline"
)

// NewParseCmd creates the parse command.
func NewParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <db-path>",
		Short: "Run the CodeQL query suite against a database",
		Long: `Parse analyzes a CodeQL database and writes the results as SARIF.

The query suite defaults to javascript-lgtm.qls and can be changed with
--query-suite or tools.querySuite in the configuration file. A path to a
file inside the database selects its directory.

Examples:
  webql parse webql_output/webql_codeql_db
  webql parse site_db -o site.sarif --query-suite javascript-security-extended.qls`,
		Args: cobra.ExactArgs(1),
		RunE: runParseCmd,
	}

	cmd.Flags().StringP("output-file", "o", "results.sarif", "Output file for analysis results")
	cmd.Flags().String("query-suite", "", "CodeQL query suite (default from configuration)")
	cmd.Flags().Duration("tool-timeout", config.DefaultToolTimeout,
		"Timeout for each external tool invocation")

	return cmd
}

func runParseCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	outputFile, err := cmd.Flags().GetString("output-file")
	if err != nil {
		return err
	}
	suite, err := cmd.Flags().GetString("query-suite")
	if err != nil {
		return err
	}
	if suite == "" {
		suite = cfg.File.QuerySuite()
	}
	if cfg.ToolTimeout, err = cmd.Flags().GetDuration("tool-timeout"); err != nil {
		return err
	}

	dbPath, err := resolveDatabase(args[0])
	if err != nil {
		return err
	}

	logger := setupLogger(cmd, cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), 0)
	defer cancel()

	ts := pipeline.NewToolset(cfg, nil, logger)
	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddStep(pipeline.NewQueryStep(ts.Analyzer, suite, outputFile))

	r := model.NewAnalysisReport(dbPath, filepath.Dir(outputFile))
	r.DatabasePath = dbPath
	if err := p.Execute(ctx, r); err != nil {
		return fmt.Errorf("CodeQL analysis failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "CodeQL analysis completed. Results saved to %s\n", r.SARIFPath)
	return nil
}

// resolveDatabase returns the database directory for path, using the parent
// directory when path is a file.
func resolveDatabase(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("database not found: %w", err)
	}
	if !info.IsDir() {
		return filepath.Dir(path), nil
	}
	return path, nil
}
