// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/internal/ledger"
	"github.com/pdiddy/src2ir/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past conversion runs or show one run",
	Long: `History reads the conversion ledger. Without arguments it lists the most
recent runs. With a run ID (or a unique prefix of one) it lists the file
results of that run; --yaml or --json exports the full run report.`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd, map[string]string{"ledger": "ledger.path"})
	},
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("ledger.path")
	if path == "" {
		return fmt.Errorf("no ledger configured: set --ledger or ledger.path")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening ledger %s: %w", path, err)
	}

	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := context.Background()
	yamlOutput, _ := cmd.Flags().GetBool("yaml")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 0 {
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := l.Runs(ctx, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		return formatRuns(os.Stdout, runs)
	}

	switch {
	case yamlOutput:
		return l.ExportYAML(ctx, os.Stdout, args[0])
	case jsonOutput:
		return l.ExportJSON(ctx, os.Stdout, args[0])
	}

	run, err := l.Run(ctx, args[0])
	if err != nil {
		return err
	}
	status, _ := cmd.Flags().GetString("status")
	entries, err := l.Entries(ctx, run.ID, ledger.EntryFilter{Status: types.ConversionStatus(status)})
	if err != nil {
		return err
	}
	return formatEntries(os.Stdout, run, entries)
}

func formatRuns(w io.Writer, runs []ledger.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-8s  %-19s  %-9s  %-7s  %-6s  %s\n",
		"Run", "Started", "Converted", "Skipped", "Failed", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, r := range runs {
		started := r.StartedAt.Local().Format("2006-01-02 15:04:05")
		failed := fmt.Sprint(r.Failed)
		if !r.Finished() {
			failed = "?"
		}
		fmt.Fprintf(w, "%-8s  %-19s  %-9d  %-7d  %-6s  %s\n",
			shortID(r.ID), started, r.Converted, r.Skipped, failed, r.SourceDir)
	}
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
	return nil
}

func formatEntries(w io.Writer, run ledger.Run, entries []ledger.Entry) error {
	fmt.Fprintf(w, "Run %s (%s -> %s)\n", run.ID, run.SourceDir, run.IRDir)
	fmt.Fprintf(w, "Started %s", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.Finished() {
		fmt.Fprintf(w, ", took %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return nil
	}
	fmt.Fprintf(w, "%-9s  %-4s  %-40s  %8s\n", "Status", "Lang", "Source", "Time")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, e := range entries {
		src := e.RelPath
		if src == "" {
			src = e.Source
		}
		if len(src) > 40 {
			src = "..." + src[len(src)-37:]
		}
		fmt.Fprintf(w, "%-9s  %-4s  %-40s  %6dms\n", e.Status, e.Language, src, e.DurationMS)
		if e.Error != "" {
			fmt.Fprintf(w, "           %s\n", firstLine(e.Error))
		}
	}
	fmt.Fprintf(w, "\n%d entries\n", len(entries))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	historyCmd.Flags().String("ledger", types.DefaultLedger, "conversion ledger database")
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().String("status", "", "show only entries with this status: converted, skipped, failed")
	historyCmd.Flags().Bool("yaml", false, "export the run report as YAML")
	historyCmd.Flags().Bool("json", false, "print as JSON")

	rootCmd.AddCommand(historyCmd)
}
