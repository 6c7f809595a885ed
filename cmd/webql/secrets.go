package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/config"
	applog "github.com/nao1215/webql/internal/log"
	"github.com/nao1215/webql/internal/pipeline"
	"github.com/nao1215/webql/internal/tools"
)

// secretView is the printable form of a trufflehog finding. Raw values are
// never printed.
type secretView struct {
	Detector string `json:"detector"`
	Verified bool   `json:"verified"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Redacted string `json:"redacted"`
}

// NewSecretsCmd creates the secrets command.
func NewSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets <directory>",
		Short: "Scan harvested files for secrets with trufflehog",
		Long: `Secrets runs "trufflehog filesystem" over a directory and lists the
detected credentials. Secret values are shown redacted; the full NDJSON output
is kept in the output file.

Examples:
  webql secrets webql_output
  webql secrets webql_output --json`,
		Args: cobra.ExactArgs(1),
		RunE: runSecretsCmd,
	}

	cmd.Flags().StringP("output-file", "o", "",
		"trufflehog output file (default: <directory>/secrets/trufflehog_<name>_output.txt)")
	cmd.Flags().BoolP("json", "j", false, "Print findings as JSON")
	cmd.Flags().Duration("tool-timeout", config.DefaultToolTimeout,
		"Timeout for each external tool invocation")

	return cmd
}

func runSecretsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	outputFile, err := cmd.Flags().GetString("output-file")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if cfg.ToolTimeout, err = cmd.Flags().GetDuration("tool-timeout"); err != nil {
		return err
	}

	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if outputFile == "" {
		outputFile = secretsOutputPath(dir)
	}

	logger := setupLogger(cmd, cfg.Verbose)
	ctx, cancel := signalContext(cmd.Context(), 0)
	defer cancel()

	cfg.Secrets = true
	ts := pipeline.NewToolset(cfg, nil, logger)
	if err := scanSecrets(ctx, ts.Secrets, dir, outputFile, cmd.ErrOrStderr()); err != nil {
		return err
	}

	secrets, err := tools.ReadSecrets(outputFile)
	if err != nil {
		return err
	}
	return printSecrets(cmd.OutOrStdout(), secrets, asJSON)
}

func toSecretViews(secrets []tools.Secret) []secretView {
	views := make([]secretView, 0, len(secrets))
	for _, s := range secrets {
		redacted := s.Redacted
		if redacted == "" {
			redacted = applog.MaskValue
		}
		views = append(views, secretView{
			Detector: s.DetectorName,
			Verified: s.Verified,
			File:     s.File(),
			Line:     s.Line(),
			Redacted: redacted,
		})
	}
	return views
}

// printSecrets lists secrets as JSON or one line per finding.
func printSecrets(w io.Writer, secrets []tools.Secret, asJSON bool) error {
	views := toSecretViews(secrets)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No secrets found.")
		return err
	}
	for _, v := range views {
		verified := "unverified"
		if v.Verified {
			verified = "VERIFIED"
		}
		location := v.File
		if v.Line > 0 {
			location += ":" + strconv.Itoa(v.Line)
		}
		if _, err := fmt.Fprintf(w, "%-20s %-10s %s  %s\n", v.Detector, verified, location, v.Redacted); err != nil {
			return err
		}
	}
	return nil
}
