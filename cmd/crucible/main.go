package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	privilegedFlag bool
	budgetFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Crucible - sandboxed snippet execution",
	Long: `Crucible executes untrusted script snippets under strict resource limits.

Snippets run in a capability-restricted interpreter with a wall-clock budget,
a step ceiling, and a capped output channel. A snippet can emit text and at
most one raster image per run.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&privilegedFlag, "privileged", false, "Use the extended execution budget")
	rootCmd.PersistentFlags().StringVar(&budgetFlag, "budget", "", "Wall-clock budget override (e.g. 500ms, 5s)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
