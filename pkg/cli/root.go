package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "testproxy",
		Short: "testproxy records HTTP traffic and plays it back for tests",
		Long: `testproxy sits between a test suite and the services it calls.

In record mode it forwards each request upstream and stores the sanitized
exchange in a recording. In playback mode it answers requests from that
recording without touching the network.`,
		SilenceUsage:  true,
		SilenceErrors: true, // Execute prints errors
	}

	root.PersistentFlags().Bool("json", false, "Output command results in JSON format")

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
