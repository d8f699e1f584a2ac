// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

var toolchainCmd = &cobra.Command{
	Use:   "toolchain",
	Short: "Report which compilers are available",
	Long: `Toolchain checks that the C++ and Rust compilers are on PATH and prints
their versions and the command line each one is run with. It exits
non-zero when a compiler is missing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		set := toolchain.NewSet(cfg.Toolchain)
		if err := reportToolchain(cmd, os.Stdout, set, cfg.Toolchain); err != nil {
			return err
		}
		return set.Check(types.Languages)
	},
}

func reportToolchain(cmd *cobra.Command, w io.Writer, set toolchain.Set, cfg types.ToolchainConfig) error {
	for _, lang := range types.Languages {
		c, err := set.For(lang)
		if err != nil {
			return err
		}
		cc := cfg.CPP
		if lang == types.LangRust {
			cc = cfg.Rust
		}

		if !c.Available() {
			fmt.Fprintf(w, "%-5s %-8s not found\n", lang.String()+":", c.Name())
			continue
		}
		v, err := c.Version(cmd.Context())
		if err != nil {
			v = "version unknown: " + err.Error()
		}
		fmt.Fprintf(w, "%-5s %-8s %s\n", lang.String()+":", c.Name(), v)
		fmt.Fprintf(w, "      %s %s <src> -o <out>\n", cc.Bin, strings.Join(cc.Args, " "))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(toolchainCmd)
}
