package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/sarif"
)

// NewResultsCmd creates the results command.
func NewResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results <sarif-file>",
		Short: "Show SARIF findings grouped by severity",
		Long: `Results reads a SARIF file and prints its findings grouped into the
critical, high, medium, low and info buckets by their security-severity score.

Examples:
  webql results results.sarif
  webql results results.sarif --format json
  webql results results.sarif --format markdown --report report.md`,
		Args: cobra.ExactArgs(1),
		RunE: runResultsCmd,
	}

	cmd.Flags().StringP("format", "f", formatText, "Output format: text, json or markdown")
	cmd.Flags().StringP("report", "r", "", "Write the report to a file")

	return cmd
}

func runResultsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("report"); err != nil {
		return err
	}
	if err := checkFormat(format); err != nil {
		return err
	}
	setupLogger(cmd, cfg.Verbose)

	findings, err := sarif.ClassifyFile(args[0])
	if err != nil {
		return err
	}

	out, closeOut, err := openReportOutput(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // best effort close of the report file

	w, err := newReportWriter(format, out, cfg)
	if err != nil {
		return err
	}
	if _, err := w.WriteFindings(findings); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
