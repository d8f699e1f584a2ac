// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/internal/convert"
	"github.com/pdiddy/src2ir/internal/discover"
	"github.com/pdiddy/src2ir/internal/ledger"
	"github.com/pdiddy/src2ir/internal/metrics"
	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Compile C++ and Rust sources into LLVM IR",
	Long: `Convert walks the source directory, compiles every .cpp file with clang++
and every .rs file with rustc, and writes textual IR into the IR directory,
mirroring the source layout: source/add/add.cpp becomes ir/add/add_cpp.ll.

All C++ files are processed before any Rust file. A file whose IR already
exists is skipped. The first failed compile aborts the run unless
--keep-going is set; either way a failure makes the command exit non-zero.

Naming files converts only those files.`,
	Args:    cobra.ArbitraryArgs,
	PreRunE: bindConvertFlags,
	RunE:    runConvert,
}

// conversionFlags maps conversion flags to their configuration keys.
var conversionFlags = map[string]string{
	"source-dir":   "conversion.source_dir",
	"ir-dir":       "conversion.ir_dir",
	"recursive":    "conversion.recursive",
	"force":        "conversion.force",
	"changed":      "conversion.changed",
	"keep-going":   "conversion.keep_going",
	"jobs":         "conversion.jobs",
	"timeout":      "conversion.timeout",
	"max-ir-bytes": "conversion.max_ir_bytes",
	"max-ir-lines": "conversion.max_ir_lines",
	"lang":         "conversion.languages",
	"ledger":       "ledger.path",
	"metrics-file": "metrics_file",
}

func addConvertFlags(cmd *cobra.Command) {
	d := types.DefaultConfig()
	f := cmd.Flags()
	f.String("source-dir", d.Conversion.SourceDir, "directory containing .cpp and .rs sources")
	f.String("ir-dir", d.Conversion.IRDir, "directory receiving generated .ll files")
	f.Bool("recursive", d.Conversion.Recursive, "descend into subdirectories of the source directory")
	f.Bool("force", false, "recompile even when the IR file exists")
	f.Bool("changed", false, "recompile sources edited since their last recorded conversion")
	f.Bool("keep-going", false, "continue past failed compiles")
	f.IntP("jobs", "j", d.Conversion.Jobs, "number of compiles to run at once")
	f.Duration("timeout", 0, "per-file compile timeout (0 = none)")
	f.Int64("max-ir-bytes", 0, "reject IR larger than this many bytes (0 = no limit)")
	f.Int("max-ir-lines", 0, "reject IR with more lines than this (0 = no limit)")
	f.StringSlice("lang", nil, "restrict to languages: cpp, rust")
	f.String("ledger", d.Ledger.Path, "conversion ledger database (empty disables)")
	f.String("metrics-file", "", "write Prometheus metrics to this file after the run")
}

func bindConvertFlags(cmd *cobra.Command, _ []string) error {
	return bindFlags(cmd, conversionFlags)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch, err := convertRun(ctx, cfg, toolchain.NewSet(cfg.Toolchain), args, os.Stdout)
	if err != nil {
		return err
	}
	if batch.HasFailures() {
		return fmt.Errorf("%d file(s) failed to convert", batch.Failed)
	}
	return nil
}

// convertRun plans and executes one conversion run, recording it in the
// ledger and metrics file when those are configured.
func convertRun(ctx context.Context, cfg types.Config, set toolchain.Set, paths []string, w io.Writer) (convert.BatchResult, error) {
	conv := cfg.Conversion
	langs := conv.Languages
	if len(langs) == 0 {
		langs = types.Languages
	}

	var jobs []types.Job
	if len(paths) > 0 {
		named, err := discover.JobsFor(conv.SourceDir, conv.IRDir, paths, langs)
		if err != nil {
			return convert.BatchResult{}, err
		}
		jobs = named
	} else {
		planned, err := discover.Plan(conv.SourceDir, conv.IRDir, conv.Recursive, langs)
		if err != nil {
			return convert.BatchResult{}, err
		}
		jobs = planned
	}
	logger.Debug("convert: planned",
		slog.Int("jobs", len(jobs)),
		slog.String("source_dir", conv.SourceDir),
		slog.String("ir_dir", conv.IRDir))

	opts := convert.OptionsFromConfig(conv)

	var l *ledger.Ledger
	if cfg.Ledger.Path != "" {
		var err error
		if l, err = ledger.Open(cfg.Ledger.Path); err != nil {
			return convert.BatchResult{}, err
		}
		defer l.Close()
		if conv.Changed {
			opts.Stale = l.StaleFunc(ctx, w)
		}
	} else if conv.Changed {
		return convert.BatchResult{}, fmt.Errorf("--changed needs the ledger: set --ledger or ledger.path")
	}

	// Only jobs that will compile need their compiler installed.
	if err := set.Check(jobLanguages(convert.Pending(jobs, opts))); err != nil {
		return convert.BatchResult{}, err
	}

	var rec *ledger.RunRecorder
	if l != nil {
		var err error
		if rec, err = l.BeginRun(ctx, conv.SourceDir, conv.IRDir); err != nil {
			return convert.BatchResult{}, err
		}
		opts.Recorders = append(opts.Recorders, rec)
		logger.Info("convert: recording run", slog.String("run_id", rec.ID()), slog.String("ledger", cfg.Ledger.Path))
	}

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		var err error
		if m, err = metrics.New(); err != nil {
			return convert.BatchResult{}, err
		}
		opts.Recorders = append(opts.Recorders, m)
	}

	batch, runErr := convert.ConvertBatch(ctx, set, jobs, opts, w)

	if rec != nil {
		if err := rec.Finish(batch); err != nil {
			logger.Warn("convert: finishing ledger run", slog.String("error", err.Error()))
		}
	}
	if m != nil {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("convert: writing metrics", slog.String("error", err.Error()))
		}
	}
	return batch, runErr
}

// jobLanguages returns the distinct languages among jobs, in processing
// order, so that only the compilers actually needed are checked.
func jobLanguages(jobs []types.Job) []types.Language {
	seen := make(map[types.Language]bool)
	for _, j := range jobs {
		seen[j.Source.Language] = true
	}
	var langs []types.Language
	for _, lang := range types.Languages {
		if seen[lang] {
			langs = append(langs, lang)
		}
	}
	return langs
}

func init() {
	addConvertFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}
