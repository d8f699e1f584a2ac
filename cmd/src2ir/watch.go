// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompile sources as they change",
	Long: `Watch runs a normal conversion, then watches the source directory and
recompiles every .cpp or .rs file that is created or written. Changed files
are always recompiled, and a failed compile does not stop the watcher.

Press Ctrl-C to stop.`,
	Args:    cobra.NoArgs,
	PreRunE: bindConvertFlags,
	RunE:    runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	debounce, _ := cmd.Flags().GetDuration("debounce")
	initial, _ := cmd.Flags().GetBool("initial")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set := toolchain.NewSet(cfg.Toolchain)
	if initial {
		batch, err := convertRun(ctx, cfg, set, nil, os.Stdout)
		if err != nil && ctx.Err() == nil {
			logger.Warn("watch: initial conversion failed", slog.String("error", err.Error()))
		} else if batch.HasFailures() {
			logger.Warn("watch: initial conversion had failures", slog.Int("failed", batch.Failed))
		}
	}

	changed := cfg
	changed.Conversion.Force = true
	changed.Conversion.Changed = false
	changed.Conversion.KeepGoing = true

	fmt.Fprintf(os.Stdout, "watching %s for changes\n", cfg.Conversion.SourceDir)
	return watch.Watch(ctx, cfg.Conversion.SourceDir,
		watch.Options{Recursive: cfg.Conversion.Recursive, Debounce: debounce},
		logger,
		func(ctx context.Context, paths []string) {
			if _, err := convertRun(ctx, changed, set, paths, os.Stdout); err != nil {
				logger.Warn("watch: conversion failed", slog.String("error", err.Error()))
			}
		})
}

func init() {
	addConvertFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before recompiling a batch of changes")
	watchCmd.Flags().Bool("initial", true, "run a full conversion before watching")

	rootCmd.AddCommand(watchCmd)
}
