// Package commands implements the pulse command line.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// CLI is the pulse command tree.
type CLI struct {
	rootCmd *cobra.Command
	serve   func() error
}

// New builds the command tree. serve runs the dashboard backend and is what
// a bare "pulse" invocation does.
func New(serve func() error) *CLI {
	c := &CLI{serve: serve}

	c.rootCmd = &cobra.Command{
		Use:           "pulse",
		Short:         "Customer health dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.serve()
		},
	}

	c.rootCmd.AddCommand(c.newServeCmd())
	c.rootCmd.AddCommand(c.newResourcesCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

func (c *CLI) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP backend (configured from PULSE_* environment variables)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.serve()
		},
	}
}
