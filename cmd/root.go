package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags only; each subcommand defines its own positional
	// and data-directory-specific flags.
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bijou",
	Short: "Embeddable encrypted filesystem engine",
	Long: `bijou manages and mounts Bijou databases: key-value-backed
metadata with per-file authenticated content encryption, optional
filename encryption, and a pluggable raw blob store.

Commands:
  create   Initialize a new Bijou database
  mount    Mount a Bijou database as a FUSE filesystem
  config   Show the resolved configuration`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// GetVerbose returns the verbose flag value.
func GetVerbose() bool {
	return verbose
}
