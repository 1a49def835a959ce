package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API, connectivity probe and sync loop",
	Long: `Start the debtsync daemon. It serves the local HTTP API a host UI talks
to, probes the ledger API for connectivity, and replays queued writes each
time the connection comes back. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printf(cmd, "debtsync listening on http://%s\n", d.Config.Addr())
	return d.Serve(ctx)
}
