package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "draftline",
		Short: "Schema-driven record access and versioning engine",
		Long: `Draftline serves schema-described database records over HTTP with
two-tier versioning: edits are staged as draft rows in a workspace and
overlaid onto live rows at read time, so published content never changes
until a draft is promoted.`,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newInspectCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
