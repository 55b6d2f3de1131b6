// Command fncore runs the multi-tenant function execution core: the
// Module Loader & Cache, Function Executor, Sandbox Runner, and
// Observability Store, wired together behind a small HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fncore",
		Short: "Multi-tenant function execution core",
		Long:  "fncore loads, caches, sandboxes, and executes short-lived functions, persisting their execution history and exporting metrics.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON config file (defaults applied on top)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(invokeCmd())
	rootCmd.AddCommand(exportMetricsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
