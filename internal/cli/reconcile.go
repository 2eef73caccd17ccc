package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stocksync-api/internal/app"
	"stocksync-api/internal/reconcile"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one catalog reconciliation pass",
		Long: `Page through the remote catalog and compare it with local products.

With --dry-run nothing is written; the report lists the same decisions a live
pass would make.

Exit codes:
  0 - Pass completed
  1 - Pass stopped early (the partial report is still printed)
  2 - Command error

Examples:
  stocksync reconcile --dry-run
  stocksync reconcile --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				summary, runErr := a.Reconciler.Run(cmd.Context(), dryRun)
				if summary != nil {
					if err := printSummary(cmd, rootOpts.Format, summary); err != nil {
						return err
					}
				}
				if runErr != nil {
					return WrapExitError(ExitFailure, "reconciliation stopped early", runErr)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report decisions without writing anything")

	return cmd
}

func printSummary(cmd *cobra.Command, format string, s *reconcile.Summary) error {
	return output(cmd.OutOrStdout(), format, s, func(tw *tabwriter.Writer) {
		mode := "live"
		if s.DryRun {
			mode = "dry run"
		}
		fmt.Fprintf(tw, "Reconciliation (%s)\n", mode)
		fmt.Fprintf(tw, "pages\t%d\n", s.Pages)
		fmt.Fprintf(tw, "processed\t%d\n", s.Processed)
		fmt.Fprintf(tw, "created\t%d\n", s.Created)
		fmt.Fprintf(tw, "auto accepted\t%d\n", s.AutoAccepted)
		fmt.Fprintf(tw, "queued for review\t%d\n", s.Queued)
		fmt.Fprintf(tw, "unchanged\t%d\n", s.Unchanged)
		fmt.Fprintf(tw, "errors\t%d\n", s.Errors)
		if s.Truncated {
			fmt.Fprintln(tw, "truncated\tyes (max pages reached)")
		}

		if len(s.Decisions) > 0 {
			fmt.Fprintln(tw, "\nSKU\tACTION\tFIELDS")
			for _, d := range s.Decisions {
				fields := d.Changes.Fields()
				sort.Strings(fields)
				fmt.Fprintf(tw, "%s\t%s\t%v\n", d.SKU, d.Action, fields)
			}
		}
		if len(s.ItemErrors) > 0 {
			fmt.Fprintln(tw, "\nSKU\tERROR")
			for _, e := range s.ItemErrors {
				fmt.Fprintf(tw, "%s\t%s\n", e.SKU, e.Message)
			}
		}
	})
}
