// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/internal/metrics"
	"github.com/pdiddy/src2ir/internal/server"
	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve IR generation over HTTP",
	Long: `Serve starts an HTTP server for browser front ends.

POST /api/generate-ir takes {"cppCode": "...", "rustCode": "..."} and
answers {"cppIR": "...", "rustIR": "..."}. Errors answer 500 with
{"error": "..."}. Each compile is bounded by --timeout and the generated
IR by --max-ir-bytes and --max-ir-lines.

GET /healthz reports liveness and GET /metrics exposes Prometheus metrics.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd, map[string]string{
			"addr":         "serve.addr",
			"timeout":      "serve.timeout",
			"max-ir-bytes": "serve.max_ir_bytes",
			"max-ir-lines": "serve.max_ir_lines",
		})
	},
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	set := toolchain.NewSet(cfg.Toolchain)
	if err := set.Check(types.Languages); err != nil {
		return err
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(set, cfg.Serve, logger,
		server.WithRecorders(m),
		server.WithMetricsHandler(m.Handler()))
	logger.Info("serve: starting",
		slog.String("address", cfg.Serve.Addr),
		slog.Duration("timeout", cfg.Serve.Timeout))
	return srv.Run(ctx)
}

func init() {
	d := types.DefaultConfig().Serve
	serveCmd.Flags().String("addr", d.Addr, "listen address")
	serveCmd.Flags().Duration("timeout", d.Timeout, "per-compile timeout")
	serveCmd.Flags().Int64("max-ir-bytes", d.MaxIRBytes, "reject IR larger than this many bytes (0 = no limit)")
	serveCmd.Flags().Int("max-ir-lines", d.MaxIRLines, "reject IR with more lines than this (0 = no limit)")

	rootCmd.AddCommand(serveCmd)
}
