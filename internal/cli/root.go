// Package cli implements the debtsync command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerline/debtsync/internal/daemon"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "debtsync",
	Short: "Offline-capable debt ledger client",
	Long: `debtsync keeps a local, offline-capable view of a remote debt ledger.
Writes made without a connection are queued durably and replayed in order
when the ledger API is reachable again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default $DEBTSYNC_HOME/config.toml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDaemon loads config and builds the component graph for one command.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

// withDaemon opens the daemon, probes connectivity once (replaying any
// backlog) and runs fn.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d.Connect(ctx)
	return fn(ctx, d)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
