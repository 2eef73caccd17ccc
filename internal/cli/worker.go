package cli

import (
	"log"

	"github.com/spf13/cobra"

	"stocksync-api/internal/app"
)

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued sync tasks until interrupted",
		Long: `Run the worker pool and the reconcile scheduler without the HTTP API.

Use this with QUEUE_DRIVER=redis to scale workers apart from the API server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(func(a *app.App) error {
				a.StartBackground()
				log.Println("[Worker] Running; press Ctrl+C to stop")
				<-cmd.Context().Done()
				log.Println("[Worker] Stopping...")
				a.StopBackground()
				return nil
			})
		},
	}
}
