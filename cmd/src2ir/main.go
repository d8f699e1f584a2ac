// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the src2ir CLI, which compiles C++
// and Rust example sources into LLVM IR for side-by-side comparison.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is the diagnostic logger configured from --log-level. Progress
// lines go to stdout directly.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// rootCmd is the base command for the src2ir CLI.
var rootCmd = &cobra.Command{
	Use:   "src2ir",
	Short: "Compile C++ and Rust examples into LLVM IR",
	Long: `src2ir compiles paired C++ and Rust example sources into textual LLVM IR
so that the two can be compared function by function.

C++ files are compiled with clang++ -O0 -S -emit-llvm and Rust files with
rustc --emit=llvm-ir --crate-type=lib. Existing IR files are left alone
unless --force or --changed asks for a rebuild.

Running src2ir without a subcommand is the same as src2ir convert.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(viper.GetString("log_level"))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./src2ir.yaml or ~/.config/src2ir/src2ir.yaml)")
	pf.String("log-level", "warn", "diagnostic log level: debug, info, warn, error")
	pf.String("cpp-compiler", "", "C++ compiler binary (default clang++)")
	pf.String("rust-compiler", "", "Rust compiler binary (default rustc)")

	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("toolchain.cpp.bin", pf.Lookup("cpp-compiler"))
	_ = viper.BindPFlag("toolchain.rust.bin", pf.Lookup("rust-compiler"))

	// The bare command runs a conversion with convert's flags.
	addConvertFlags(rootCmd)
	rootCmd.PreRunE = bindConvertFlags
	rootCmd.RunE = runConvert
	rootCmd.Args = cobra.ArbitraryArgs
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("src2ir")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "src2ir"))
		}
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("SRC2IR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
