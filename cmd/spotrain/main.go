// Command spotrain trains cost predictors for combinatorial optimization
// problems with decision-focused losses and reports their regret.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spotrain",
		Short:         "Decision-focused learning experiments",
		Long:          `Train predictors of optimization costs with two-stage, SPO+ or Black-Box losses and measure their regret.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd(), newServeCmd(), newVersionCmd())
	return cmd
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
