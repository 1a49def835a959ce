package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ledgerline/debtsync/internal/daemon"
	"github.com/ledgerline/debtsync/internal/domain"
)

// ─── Ledger commands ────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(chargeCmd)
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(adjustCmd)
	rootCmd.AddCommand(markPaidCmd)
	rootCmd.AddCommand(agingCmd)

	accountCmd.Flags().String("as-of", "", "Fold the ledger as of this date (YYYY-MM-DD)")
	agingCmd.Flags().String("date", "", "Report date (YYYY-MM-DD, default today)")
	for _, c := range []*cobra.Command{chargeCmd, payCmd, adjustCmd} {
		c.Flags().StringP("note", "m", "", "Description stored with the transaction")
	}
}

var balanceCmd = &cobra.Command{
	Use:   "balance CUSTOMER_ID",
	Short: "Show a customer's outstanding balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			out, err := d.Debts.Outstanding(ctx, args[0])
			if err != nil && out == nil {
				return err
			}
			if out == nil {
				printf(cmd, "%s has no debt record.\n", args[0])
				return nil
			}
			printf(cmd, "%s owes %s (%s)\n", args[0], formatMoney(out.TotalOwed, d.Config.Currency), out.CollectionStatus)
			if out.LastPaymentDate != nil {
				printf(cmd, "Last payment: %s\n", out.LastPaymentDate.Format(time.DateOnly))
			}
			return nil
		})
	},
}

var accountCmd = &cobra.Command{
	Use:   "account CUSTOMER_ID",
	Short: "Show balance, aging buckets and status derived from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asOfFlag, _ := cmd.Flags().GetString("as-of")
		var asOf time.Time
		if asOfFlag != "" {
			t, err := time.Parse(time.DateOnly, asOfFlag)
			if err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
			asOf = t.Add(24*time.Hour - time.Nanosecond)
		}

		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			view, err := d.Debts.Account(ctx, args[0], asOf)
			if err != nil {
				return err
			}
			if view == nil {
				printf(cmd, "%s has no ledger.\n", args[0])
				return nil
			}
			cur := d.Config.Currency
			printf(cmd, "Customer:   %s\n", view.CustomerID)
			printf(cmd, "As of:      %s\n", view.AsOf.Format(time.DateOnly))
			printf(cmd, "Balance:    %s\n", formatMoney(view.Balance, cur))
			printf(cmd, "Status:     %s (payments: %s)\n", view.CollectionStatus, view.PaymentStatus)
			for _, b := range domain.Buckets {
				printf(cmd, "  %-12s %12s  (%d open)\n", b, formatMoney(view.Buckets.Get(b), cur), view.BucketCounts[b])
			}
			if view.UnappliedCredit.IsPositive() {
				printf(cmd, "Credit:     %s\n", formatMoney(view.UnappliedCredit, cur))
			}
			if view.Discrepancies > 0 {
				printf(cmd, "Price override: effective %s vs stored %s (%d sale(s) differ)\n",
					formatMoney(view.EffectiveTotal, cur), formatMoney(view.StoredTotal, cur), view.Discrepancies)
			}
			return nil
		})
	},
}

func amountCommand(use, short string, submit func(ctx context.Context, d *daemon.Daemon, id string, amount decimal.Decimal, note string) (domain.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CUSTOMER_ID AMOUNT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			note, _ := cmd.Flags().GetString("note")
			return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
				receipt, err := submit(ctx, d, args[0], amount, note)
				if err != nil {
					return err
				}
				printReceipt(cmd, receipt)
				return nil
			})
		},
	}
}

var chargeCmd = amountCommand("charge", "Record a charge against a customer",
	func(ctx context.Context, d *daemon.Daemon, id string, amount decimal.Decimal, note string) (domain.Receipt, error) {
		return d.Debts.Charge(ctx, id, amount, note)
	})

var payCmd = amountCommand("pay", "Record a payment from a customer",
	func(ctx context.Context, d *daemon.Daemon, id string, amount decimal.Decimal, note string) (domain.Receipt, error) {
		return d.Debts.Pay(ctx, id, amount, note)
	})

var adjustCmd = amountCommand("adjust", "Record a signed correction (negative is a credit)",
	func(ctx context.Context, d *daemon.Daemon, id string, amount decimal.Decimal, note string) (domain.Receipt, error) {
		return d.Debts.Adjust(ctx, id, amount, note)
	})

var markPaidCmd = &cobra.Command{
	Use:   "mark-paid CUSTOMER_ID",
	Short: "Settle a customer's outstanding balance in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			receipt, err := d.Debts.MarkPaid(ctx, args[0])
			if err != nil {
				return err
			}
			printReceipt(cmd, receipt)
			return nil
		})
	},
}

var agingCmd = &cobra.Command{
	Use:   "aging",
	Short: "Show the aging report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			rep, err := d.Debts.AgingReport(ctx, date)
			if err != nil && rep == nil {
				return err
			}
			if rep == nil || len(rep.Rows) == 0 {
				printf(cmd, "No aging data.\n")
				return nil
			}
			cur := d.Config.Currency
			printf(cmd, "Aging report %s\n", rep.Date)
			printf(cmd, "%-16s %12s %12s %12s %12s\n", "CUSTOMER", domain.BucketCurrent, domain.Bucket31To60, domain.Bucket61To90, domain.BucketOver90)
			for _, row := range rep.Rows {
				name := row.Name
				if name == "" {
					name = row.CustomerID
				}
				printf(cmd, "%-16s %12s %12s %12s %12s\n", name,
					formatMoney(row.Buckets.Get(domain.BucketCurrent), cur),
					formatMoney(row.Buckets.Get(domain.Bucket31To60), cur),
					formatMoney(row.Buckets.Get(domain.Bucket61To90), cur),
					formatMoney(row.Buckets.Get(domain.BucketOver90), cur))
			}
			return nil
		})
	},
}

func printReceipt(cmd *cobra.Command, r domain.Receipt) {
	switch {
	case r.Committed:
		printf(cmd, "✅ Committed (%s)\n", r.LocalID)
	case r.Queued:
		printf(cmd, "⏳ Queued offline (%s). It will sync when the ledger is reachable.\n", r.LocalID)
	}
}
