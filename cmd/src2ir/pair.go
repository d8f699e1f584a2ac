// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/src2ir/internal/irpair"
	"github.com/pdiddy/src2ir/pkg/types"
)

var pairCmd = &cobra.Command{
	Use:   "pair <example>",
	Short: "Show the C++ and Rust IR files of one example",
	Long: `Pair locates the IR generated for an example whose sources live in their
own directory, e.g. source/add/add.cpp and source/add/add.rs, which convert
writes to ir/add/add_cpp.ll and ir/add/add_rs.ll.

With --fixed, hand-corrected files in the fixed directory
(ir_fixed/add/add_cpp_fixed.ll, ir_fixed/add/add_rs_fixed.ll) take
precedence over the generated ones, per language.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd, map[string]string{
			"ir-dir":    "conversion.ir_dir",
			"fixed-dir": "fixed_dir",
		})
	},
	RunE: runPair,
}

func runPair(cmd *cobra.Command, args []string) error {
	useFixed, _ := cmd.Flags().GetBool("fixed")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	show, _ := cmd.Flags().GetBool("show")

	pair, err := irpair.Resolve(viper.GetString("conversion.ir_dir"), viper.GetString("fixed_dir"), args[0], useFixed)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pair)
	}
	return printPair(os.Stdout, pair, show)
}

func printPair(w io.Writer, pair irpair.Pair, show bool) error {
	for _, lang := range types.Languages {
		f := pair.For(lang)
		label := ""
		if f.Fixed {
			label = " (fixed)"
		}
		fmt.Fprintf(w, "%-5s %s%s\n", lang.String()+":", f.Path, label)
	}
	if !show {
		return nil
	}
	for _, lang := range types.Languages {
		f := pair.For(lang)
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Path, err)
		}
		fmt.Fprintf(w, "\n--- %s ---\n%s", f.Path, data)
	}
	return nil
}

func init() {
	pairCmd.Flags().String("ir-dir", types.DefaultIRDir, "directory holding generated IR")
	pairCmd.Flags().String("fixed-dir", types.DefaultFixedDir, "directory holding hand-corrected IR")
	pairCmd.Flags().Bool("fixed", false, "prefer hand-corrected IR when present")
	pairCmd.Flags().Bool("json", false, "print the pair as JSON")
	pairCmd.Flags().Bool("show", false, "print the contents of both IR files")

	rootCmd.AddCommand(pairCmd)
}
