package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/webql/internal/config"
	"github.com/nao1215/webql/internal/database"
	"github.com/nao1215/webql/internal/model"
)

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "List recorded analysis runs",
		Long: `History lists the runs recorded by "webql analyze", newest first.
Give a target to show only its runs.

Examples:
  webql history
  webql history https://example.com --limit 5
  webql history show 12
  webql history diff 11 12`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "History database directory")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the findings of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShowCmd,
	}
	cmd.Flags().StringP("format", "f", formatText, "Output format: text, json or markdown")
	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <older-run-id> <newer-run-id>",
		Short: "List scripts that are new or changed between two runs",
		Args:  cobra.ExactArgs(2),
		RunE:  runHistoryDiffCmd,
	}
}

// openHistory opens the existing history database named by --db-dir.
func openHistory(cmd *cobra.Command) (*database.HistoryDB, error) {
	dir := getPersistentString(cmd, "db-dir")
	if dir == "" {
		dir = config.XDGDataDir()
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	return database.Open(dir, opts)
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID %q", s)
	}
	return id, nil
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	target := ""
	if len(args) == 1 {
		target = args[0]
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), target, limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

// printRuns writes one line per run with its severity counts.
func printRuns(w io.Writer, runs []database.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	fmt.Fprintf(w, "%-6s %-20s %-10s %-7s %-24s %s\n", "ID", "Started", "Status", "Assets", "C/H/M/L/I", "Target")
	for _, r := range runs {
		counts := make([]string, 0, len(model.Buckets()))
		for _, sev := range model.Buckets() {
			counts = append(counts, strconv.Itoa(r.RiskSummary[sev.String()]))
		}
		if _, err := fmt.Fprintf(w, "%-6d %-20s %-10s %-7d %-24s %s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			r.AssetCount,
			strings.Join(counts, "/"),
			r.Target,
		); err != nil {
			return err
		}
	}
	return nil
}

func runHistoryShowCmd(cmd *cobra.Command, args []string) error {
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if err := checkFormat(format); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d not found", id)
	}
	findings, err := db.Findings(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == formatText {
		fmt.Fprintf(out, "Run %d: %s (%s, %s)\n", run.ID, run.Target, run.Status, run.StartedAt.Local().Format(time.DateTime))
	}
	w, err := newReportWriter(format, out, cfg)
	if err != nil {
		return err
	}
	_, err = w.WriteFindings(findings)
	return err
}

func runHistoryDiffCmd(cmd *cobra.Command, args []string) error {
	older, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	newer, err := parseRunID(args[1])
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	changed, err := db.ChangedAssets(cmd.Context(), older, newer)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(changed) == 0 {
		fmt.Fprintf(out, "No new or changed scripts between run %d and run %d.\n", older, newer)
		return nil
	}
	fmt.Fprintf(out, "%d new or changed script(s) between run %d and run %d:\n", len(changed), older, newer)
	for _, u := range changed {
		fmt.Fprintf(out, "  %s\n", u)
	}
	return nil
}
