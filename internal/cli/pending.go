package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stocksync-api/internal/app"
	"stocksync-api/internal/model"
	"stocksync-api/internal/reconcile"
)

// NewPendingCommand creates the pending update review command group.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review pending product updates",
	}

	cmd.AddCommand(newPendingListCommand(rootOpts))
	cmd.AddCommand(newPendingReviewCommand(rootOpts, "approve", "Apply pending updates to local products",
		func(r *reconcile.Reconciler) func(cmd *cobra.Command, ids []string, reviewer string) *reconcile.BulkResult {
			return func(cmd *cobra.Command, ids []string, reviewer string) *reconcile.BulkResult {
				return r.BulkApprove(cmd.Context(), ids, reviewer)
			}
		}))
	cmd.AddCommand(newPendingReviewCommand(rootOpts, "reject", "Discard pending updates",
		func(r *reconcile.Reconciler) func(cmd *cobra.Command, ids []string, reviewer string) *reconcile.BulkResult {
			return func(cmd *cobra.Command, ids []string, reviewer string) *reconcile.BulkResult {
				return r.BulkReject(cmd.Context(), ids, reviewer)
			}
		}))

	return cmd
}

func newPendingListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List product updates by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := model.UpdateStatus(status)
			if st != "" && !st.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status))
			}
			return rootOpts.withApp(func(a *app.App) error {
				updates, total, err := a.Reconciler.ListUpdates(cmd.Context(), st, limit, offset)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list updates", err)
				}
				data := map[string]interface{}{"total": total, "updates": updates}
				return output(cmd.OutOrStdout(), rootOpts.Format, data, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "ID\tPRODUCT\tSTATUS\tCHANGES")
					for _, u := range updates {
						fields := u.ChangesDetected.Fields()
						sort.Strings(fields)
						changes := ""
						for _, f := range fields {
							c := u.ChangesDetected[f]
							changes += fmt.Sprintf("%s: %q -> %q; ", f, c.Local, c.Remote)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.ProductID, u.Status, changes)
					}
					fmt.Fprintf(tw, "\n%d of %d shown\n", len(updates), total)
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(model.UpdatePending), "filter by status (empty for all)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}

func newPendingReviewCommand(rootOpts *RootOptions, use, short string,
	action func(r *reconcile.Reconciler) func(cmd *cobra.Command, ids []string, reviewer string) *reconcile.BulkResult) *cobra.Command {
	var reviewer string

	cmd := &cobra.Command{
		Use:   use + " <update-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				result := action(a.Reconciler)(cmd, args, reviewer)
				if err := output(cmd.OutOrStdout(), rootOpts.Format, result, func(tw *tabwriter.Writer) {
					for _, id := range result.Succeeded {
						fmt.Fprintf(tw, "%s\t%sd\n", id, use)
					}
					ids := make([]string, 0, len(result.Failed))
					for id := range result.Failed {
						ids = append(ids, id)
					}
					sort.Strings(ids)
					for _, id := range ids {
						fmt.Fprintf(tw, "%s\tfailed: %s\n", id, result.Failed[id])
					}
				}); err != nil {
					return err
				}
				if len(result.Failed) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d of %d update(s) could not be %sd", len(result.Failed), len(args), use))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer id recorded on the update (required)")
	_ = cmd.MarkFlagRequired("reviewer")

	return cmd
}
