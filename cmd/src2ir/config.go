// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/pkg/types"
)

// setDefaults registers the default of every configuration key so that
// config files and SRC2IR_* variables can override any of them.
func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()

	v.SetDefault("log_level", "warn")

	v.SetDefault("toolchain.cpp.bin", d.Toolchain.CPP.Bin)
	v.SetDefault("toolchain.cpp.args", d.Toolchain.CPP.Args)
	v.SetDefault("toolchain.rust.bin", d.Toolchain.Rust.Bin)
	v.SetDefault("toolchain.rust.args", d.Toolchain.Rust.Args)

	v.SetDefault("conversion.source_dir", d.Conversion.SourceDir)
	v.SetDefault("conversion.ir_dir", d.Conversion.IRDir)
	v.SetDefault("conversion.recursive", d.Conversion.Recursive)
	v.SetDefault("conversion.force", d.Conversion.Force)
	v.SetDefault("conversion.changed", d.Conversion.Changed)
	v.SetDefault("conversion.keep_going", d.Conversion.KeepGoing)
	v.SetDefault("conversion.jobs", d.Conversion.Jobs)
	v.SetDefault("conversion.timeout", d.Conversion.Timeout)
	v.SetDefault("conversion.max_ir_bytes", d.Conversion.MaxIRBytes)
	v.SetDefault("conversion.max_ir_lines", d.Conversion.MaxIRLines)
	v.SetDefault("conversion.languages", []string{})

	v.SetDefault("ledger.path", d.Ledger.Path)

	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.timeout", d.Serve.Timeout)
	v.SetDefault("serve.max_ir_bytes", d.Serve.MaxIRBytes)
	v.SetDefault("serve.max_ir_lines", d.Serve.MaxIRLines)

	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("fixed_dir", types.DefaultFixedDir)
}

// loadConfig assembles a validated Config from v.
func loadConfig(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		Toolchain: types.ToolchainConfig{
			CPP: types.CompilerConfig{
				Bin:  v.GetString("toolchain.cpp.bin"),
				Args: v.GetStringSlice("toolchain.cpp.args"),
			},
			Rust: types.CompilerConfig{
				Bin:  v.GetString("toolchain.rust.bin"),
				Args: v.GetStringSlice("toolchain.rust.args"),
			},
		},
		Conversion: types.ConversionConfig{
			SourceDir:  v.GetString("conversion.source_dir"),
			IRDir:      v.GetString("conversion.ir_dir"),
			Recursive:  v.GetBool("conversion.recursive"),
			Force:      v.GetBool("conversion.force"),
			Changed:    v.GetBool("conversion.changed"),
			KeepGoing:  v.GetBool("conversion.keep_going"),
			Jobs:       v.GetInt("conversion.jobs"),
			Timeout:    v.GetDuration("conversion.timeout"),
			MaxIRBytes: v.GetInt64("conversion.max_ir_bytes"),
			MaxIRLines: v.GetInt("conversion.max_ir_lines"),
		},
		Ledger: types.LedgerConfig{Path: v.GetString("ledger.path")},
		Serve: types.ServeConfig{
			Addr:       v.GetString("serve.addr"),
			Timeout:    v.GetDuration("serve.timeout"),
			MaxIRBytes: v.GetInt64("serve.max_ir_bytes"),
			MaxIRLines: v.GetInt("serve.max_ir_lines"),
		},
		MetricsFile: v.GetString("metrics_file"),
	}

	for _, name := range v.GetStringSlice("conversion.languages") {
		lang, err := types.ParseLanguage(name)
		if err != nil {
			return types.Config{}, err
		}
		cfg.Conversion.Languages = append(cfg.Conversion.Languages, lang)
	}

	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// bindFlags binds the named flags of cmd to viper keys. Binding happens
// when a command runs because several commands share keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}
