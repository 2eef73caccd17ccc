// Package cli implements the stocksync operator command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stocksync-api/internal/app"
	"stocksync-api/internal/config"
)

// Opener builds the application the commands operate on.
type Opener func() (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultOpener loads configuration from the environment and builds the app.
func DefaultOpener() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// NewRootCommand creates the root command for the stocksync CLI.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "stocksync",
		Short: "Operate the stock sync core",
		Long: `Operator tools for the stock sync core: run catalog reconciliation,
review pending product updates, supervise the sync queue, and run workers.

Settings are read from the environment (and .env), the same as the API server.
Queue commands only see tasks when QUEUE_DRIVER=redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))

	return cmd
}

// withApp opens the app for the duration of fn.
func (o *RootOptions) withApp(fn func(a *app.App) error) error {
	a, err := o.open()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.Close()
	return fn(a)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
