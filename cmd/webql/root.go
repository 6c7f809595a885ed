package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for webql.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webql",
		Short: "JavaScript harvesting and CodeQL analysis for web applications",
		Long: `webql crawls a web application for every JavaScript file it can reach,
including lazily loaded webpack chunks, dynamic imports, import maps, source maps
and Next.js-style build manifests. The harvested scripts can be de-obfuscated,
beautified and loaded into a CodeQL database, and the analysis results are
classified by severity.

External tools (found on PATH or configured in .webql):
  webcrack     de-obfuscation during scan
  js-beautify  reformatting before database creation
  codeql       database creation and analysis
  trufflehog   secrets scanning`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .webql in current or home directory)")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().Bool("log-json", false, "Write log records to stderr as JSON lines")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewGenerateCmd())
	cmd.AddCommand(NewParseCmd())
	cmd.AddCommand(NewResultsCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewSecretsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
