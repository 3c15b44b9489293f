package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootCmd is the knovel CLI's root command; every stage and `run`
// registers itself onto it from its own file's init().
var RootCmd = &cobra.Command{
	Use:   "knovel",
	Short: "reference-free k-mer-novelty de novo germline variant caller",
	Long: `knovel

A reference-free de novo germline variant caller: isolate proband reads
whose k-mers are abundant in the proband and absent from the parents,
partition them by shared k-mers, assemble each partition locally,
anchor the resulting contig to a reference, and emit variant calls with
trio genotype-likelihood scores.
`,
	SilenceUsage: true,
}

func init() {
	RootCmd.SetUsageTemplate(usageTemplate(""))

	RootCmd.PersistentFlags().IntP("threads", "j", 0,
		formatFlagUsage(`Number of CPUs to use. 0 means all available cores.`))
	RootCmd.PersistentFlags().BoolP("quiet", "q", false,
		formatFlagUsage(`Suppress informational log messages.`))
	RootCmd.PersistentFlags().StringP("log", "", "",
		formatFlagUsage(`Log file to additionally write log messages to.`))
	RootCmd.PersistentFlags().StringP("config", "", "",
		formatFlagUsage(`TOML config file (default: $HOME/.config/knovel/config.toml).`))
}

// Execute runs the CLI, exiting with status 1 on a cobra-level error
// (flag parsing, unknown subcommand) per spec.md §6/§7's exit code table.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
