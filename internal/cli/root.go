// Package cli defines the Cobra commands of the dataqa CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // set via ldflags at build time

// NewRootCommand builds the dataqa command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dataqa",
		Short: "Ask questions about a SQL Server database in plain language",
		Long: `dataqa turns natural-language questions into SQL, runs them against
the configured SQL Server database, and prints the result as a table.

Connection and model settings are read from the same environment
variables as the API server (SQL_SERVER, SQL_DATABASE, LLM_PROVIDER, ...).`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newAskCommand())
	root.AddCommand(newRenderCommand())
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
