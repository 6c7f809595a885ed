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

// NewGenerateCmd creates the generate command.
func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <source-path>",
		Short: "Create a CodeQL database from harvested scripts",
		Long: `Generate beautifies every .js file below the source path with js-beautify
and creates a JavaScript CodeQL database from it.

A relative --db-name is placed inside the source path.

Examples:
  webql generate webql_output
  webql generate webql_output --db-name /tmp/site_db --overwrite`,
		Args: cobra.ExactArgs(1),
		RunE: runGenerateCmd,
	}

	cmd.Flags().String("db-name", config.DefaultDatabaseName, "Name or path of the CodeQL database")
	cmd.Flags().Bool("overwrite", false, "Overwrite an existing database")
	cmd.Flags().Bool("no-beautify", false, "Skip js-beautify")
	cmd.Flags().Duration("tool-timeout", config.DefaultToolTimeout,
		"Timeout for each external tool invocation")

	return cmd
}

func runGenerateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dbName, err := cmd.Flags().GetString("db-name")
	if err != nil {
		return err
	}
	overwrite, err := cmd.Flags().GetBool("overwrite")
	if err != nil {
		return err
	}
	noBeautify, err := cmd.Flags().GetBool("no-beautify")
	if err != nil {
		return err
	}
	if cfg.ToolTimeout, err = cmd.Flags().GetDuration("tool-timeout"); err != nil {
		return err
	}

	source := args[0]
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", source)
	}
	dbPath := databasePath(source, dbName)

	logger := setupLogger(cmd, cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), 0)
	defer cancel()

	ts := pipeline.NewToolset(cfg, nil, logger)
	p := pipeline.New(pipeline.WithLogger(logger))
	if !noBeautify {
		p.AddStep(pipeline.NewBeautifyStep(ts.Beautifier, source))
	}
	p.AddStep(pipeline.NewDatabaseStep(ts.Creator, source, dbPath, overwrite))

	r := model.NewAnalysisReport(source, source)
	if err := p.Execute(ctx, r); err != nil {
		return fmt.Errorf("failed to generate CodeQL database: %w", err)
	}

	out := cmd.OutOrStdout()
	if !noBeautify {
		fmt.Fprintf(out, "Beautified %d script(s)\n", r.Beautified)
	}
	fmt.Fprintf(out, "CodeQL database generated at: %s\n", r.DatabasePath)
	return nil
}

// databasePath resolves --db-name against the source directory.
func databasePath(source, dbName string) string {
	if dbName == "" {
		dbName = config.DefaultDatabaseName
	}
	if filepath.IsAbs(dbName) {
		return dbName
	}
	return filepath.Join(source, dbName)
}
