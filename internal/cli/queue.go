package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"stocksync-api/internal/app"
	"stocksync-api/internal/model"
	"stocksync-api/internal/supervisor"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Supervise the sync task queue",
	}

	cmd.AddCommand(newQueueHealthCommand(rootOpts))
	cmd.AddCommand(newQueueRecommendationsCommand(rootOpts))
	cmd.AddCommand(newQueueFailedCommand(rootOpts))
	cmd.AddCommand(newQueueRetryCommand(rootOpts))
	cmd.AddCommand(newQueueRetryAllCommand(rootOpts))
	cmd.AddCommand(newQueuePurgeCommand(rootOpts))

	return cmd
}

func newQueueHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show pending, failed and stuck task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				h, err := a.Supervisor.Health(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read queue", err)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, h, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "status\t%s\n", h.Status)
					fmt.Fprintf(tw, "pending\t%d\n", h.Pending)
					fmt.Fprintf(tw, "reserved\t%d\n", h.Reserved)
					fmt.Fprintf(tw, "failed\t%d\n", h.Failed)
					fmt.Fprintf(tw, "stuck (> %s)\t%d\n", h.StuckThreshold, h.Stuck)

					types := make([]string, 0, len(h.FailedByType))
					for t := range h.FailedByType {
						types = append(types, t)
					}
					sort.Strings(types)
					for _, t := range types {
						fmt.Fprintf(tw, "  failed %s\t%d\n", t, h.FailedByType[t])
					}
				})
			})
		},
	}
}

func newQueueRecommendationsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recommendations",
		Short: "Rank failure groups with a suggested action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				recs, err := a.Supervisor.Recommendations(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read queue", err)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, recs, func(tw *tabwriter.Writer) {
					printRecommendations(tw, recs)
				})
			})
		},
	}
}

func printRecommendations(tw *tabwriter.Writer, recs []supervisor.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(tw, "No failed tasks.")
		return
	}
	fmt.Fprintln(tw, "PRIORITY\tTYPE\tCLASS\tCOUNT\tSUGGESTION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", r.Priority, r.ErrorType, r.Class, r.Count, r.Suggestion)
	}
}

func newQueueFailedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List dead-lettered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				tasks, err := a.Supervisor.FailedTasks(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read queue", err)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, tasks, func(tw *tabwriter.Writer) {
					printTasks(tw, tasks)
				})
			})
		},
	}
}

func printTasks(tw *tabwriter.Writer, tasks []model.SyncTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(tw, "No failed tasks.")
		return
	}
	fmt.Fprintln(tw, "ID\tTYPE\tSUBJECT\tATTEMPTS\tFAILED AT\tERROR")
	for _, t := range tasks {
		failedAt, errMsg := "-", "-"
		if t.FailedAt != nil {
			failedAt = t.FailedAt.Format(time.RFC3339)
		}
		if t.LastError != nil {
			errMsg = t.LastError.Type + ": " + t.LastError.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", t.ID, t.Type, t.SubjectID, t.Attempts, failedAt, errMsg)
	}
}

func newQueueRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Requeue one failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				if err := a.Supervisor.RetryTask(cmd.Context(), args[0]); err != nil {
					return WrapExitError(ExitFailure, "retry failed", err)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, map[string]string{"retried": args[0]}, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "Requeued %s\n", args[0])
				})
			})
		},
	}
}

func newQueueRetryAllCommand(rootOpts *RootOptions) *cobra.Command {
	var errType string

	cmd := &cobra.Command{
		Use:   "retry-all",
		Short: "Requeue every failed task of one error type",
		Example: `  stocksync queue retry-all --type connection
  stocksync queue retry-all --type auth`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				n, err := a.Supervisor.RetryAllOfType(cmd.Context(), errType)
				if err != nil {
					return WrapExitError(ExitFailure, "retry failed", err)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, map[string]interface{}{"type": errType, "retried": n}, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "Requeued %d %s task(s)\n", n, errType)
				})
			})
		},
	}

	cmd.Flags().StringVar(&errType, "type", "", "error type to retry (required)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newQueuePurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	var actor string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Irreversibly delete all failed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "purge deletes every failed task; pass --yes to confirm")
			}
			return rootOpts.withApp(func(a *app.App) error {
				n, err := a.Supervisor.PurgeFailed(cmd.Context(), actor)
				if err != nil {
					return WrapExitError(ExitFailure, "purge failed", err)
				}
				return output(cmd.OutOrStdout(), rootOpts.Format, map[string]int64{"purged": n}, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "Purged %d failed task(s)\n", n)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	cmd.Flags().StringVar(&actor, "actor", "cli", "operator name recorded in the log")

	return cmd
}
