package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerline/debtsync/internal/daemon"
	"github.com/ledgerline/debtsync/internal/domain"
)

// ─── Sync queue commands ────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(failuresCmd)

	failuresCmd.Flags().IntP("limit", "n", 20, "Maximum failures to show")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and sync queue status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			st, err := d.Sync.Status()
			if err != nil {
				return err
			}
			printf(cmd, "Connectivity: %s\n", st.Connectivity)
			printf(cmd, "Queued:       %d\n", st.QueueDepth)
			if st.Halted {
				printf(cmd, "Replay:       halted (%s)\n", st.LastError)
			}
			if st.LastDrained != nil {
				printf(cmd, "Last synced:  %s\n", st.LastDrained.Local().Format(time.RFC1123))
			} else {
				printf(cmd, "Last synced:  never\n")
			}
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued writes now",
	Long:  `Replay the sync queue against the ledger API. Use this after a replay halted on a temporary failure.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		before, err := d.DB.QueueDepth()
		if err != nil {
			return err
		}
		if d.Connect(ctx) == domain.Offline {
			printf(cmd, "Offline: %d write(s) stay queued.\n", before)
			return nil
		}

		// Connecting already replays; Flush retries whatever a halt left behind.
		report, err := d.Sync.Flush(ctx)
		if err != nil && !errors.Is(err, domain.ErrOffline) {
			return err
		}
		remaining, _ := d.DB.QueueDepth()
		printf(cmd, "Processed %d of %d queued write(s), %d remaining.\n", before-remaining, before, remaining)
		for _, f := range d.Notifier.Drain() {
			printf(cmd, "  ✗ %s %s rejected: %s\n", f.MutationType, f.CustomerID, f.Reason)
		}
		if report.Halted {
			printf(cmd, "Replay halted: %s\n", report.HaltReason)
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List writes waiting to be synced",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		entries, err := d.Sync.Queue()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			printf(cmd, "Sync queue is empty.\n")
			return nil
		}
		printf(cmd, "Queued writes (%d):\n", len(entries))
		for _, e := range entries {
			printf(cmd, "  %-4d %-14s %-12s attempts=%d  %s\n", e.Seq, e.MutationType, e.CustomerID, e.Attempt, e.EnqueuedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List queued writes the ledger rejected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		d, err := openDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		failures, err := d.Sync.Failures(limit)
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			printf(cmd, "No rejected writes.\n")
			return nil
		}
		for _, f := range failures {
			printf(cmd, "%s  %-14s %-12s %s\n", f.FailedAt.Local().Format(time.DateTime), f.MutationType, f.CustomerID, f.Reason)
		}
		return nil
	},
}
