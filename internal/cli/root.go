// Package cli implements linkvaultctl, the operator tool for a LinkVault
// deployment. Storage commands open the configured backends directly and
// must not run against a Badger directory the server holds open.
package cli

import (
	"context"
	"io"

	"linkvault-server/internal/bootstrap"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X linkvault-server/internal/cli.Version=..."
var Version = "dev"

// Opener builds the application components for a storage command
type Opener func(ctx context.Context) (*bootstrap.App, error)

// NewRootCommand returns the root command with all subcommands attached
func NewRootCommand(open Opener, out io.Writer) *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:           "linkvaultctl",
		Short:         "Operate a LinkVault deployment.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `linkvaultctl inspects and maintains the record store behind a LinkVault server:
purge expired links, inspect or list records, take backups, and check that
view and download limits hold under concurrent access.`,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	rootCmd.AddCommand(NewSweepCommand(open))
	rootCmd.AddCommand(NewShowCommand(open))
	rootCmd.AddCommand(NewListCommand(open))
	rootCmd.AddCommand(NewBackupCommand(open))
	rootCmd.AddCommand(NewGCCommand(open))
	rootCmd.AddCommand(NewStressCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// withApp opens the components, runs fn and closes the record store
func withApp(cmd *cobra.Command, open Opener, fn func(app *bootstrap.App) error) error {
	app, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
