// Package invalidation maps committed mutations to the cached views they
// make stale.
//
// Keys are built here and only here, so readers and the graph always agree
// on the hierarchy:
//
//	debts/summary
//	debts/customers/<status>/<search>/<page>/<size>
//	debts/customer/<id>
//	debts/customer/<id>/history
//	debts/outstanding/<id>
//	payments/list/...
//	reports/aging/<date>
//	reports/daily-payments/<date>
//	reminders/history/<id>
//	reminders/needing
//	reminders/outstanding-balance
package invalidation

import (
	"strconv"

	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
)

// ─── Prefixes ───────────────────────────────────────────────────────────────

// DebtSummary is the dashboard aggregate view.
func DebtSummary() cache.Key { return cache.Key{"debts", "summary"} }

// CustomersList is the prefix of every filtered/paginated debtor list.
func CustomersList() cache.Key { return cache.Key{"debts", "customers"} }

// CustomerDetail is the prefix of one customer's detail and history views.
func CustomerDetail(customerID string) cache.Key {
	return cache.Key{"debts", "customer", customerID}
}

// Outstanding is one customer's outstanding-balance record.
func Outstanding(customerID string) cache.Key {
	return cache.Key{"debts", "outstanding", customerID}
}

// PaymentsList is the prefix of every payments list view.
func PaymentsList() cache.Key { return cache.Key{"payments", "list"} }

// AgingReports is the prefix of every aging report.
func AgingReports() cache.Key { return cache.Key{"reports", "aging"} }

// DailyPaymentsReports is the prefix of every daily payments report.
func DailyPaymentsReports() cache.Key { return cache.Key{"reports", "daily-payments"} }

// ReminderHistory is one customer's reminder notes.
func ReminderHistory(customerID string) cache.Key {
	return cache.Key{"reminders", "history", customerID}
}

// RemindersNeeding lists customers due a reminder.
func RemindersNeeding() cache.Key { return cache.Key{"reminders", "needing"} }

// OutstandingBalance is the reminder screen's outstanding-balance view.
func OutstandingBalance() cache.Key { return cache.Key{"reminders", "outstanding-balance"} }

// ─── Concrete view keys ─────────────────────────────────────────────────────

// CustomersPage is the key of one debtor list page.
func CustomersPage(f domain.CustomerFilter) cache.Key {
	return CustomersList().Append(
		string(f.Status),
		f.Search,
		strconv.Itoa(f.Page),
		strconv.Itoa(f.PageSize),
	)
}

// CustomerHistory is the key of one customer's transaction history.
func CustomerHistory(customerID string) cache.Key {
	return CustomerDetail(customerID).Append("history")
}

// AgingReport is the key of the aging report for date (YYYY-MM-DD).
func AgingReport(date string) cache.Key { return AgingReports().Append(date) }

// DailyPayments is the key of the daily payments report for date.
func DailyPayments(date string) cache.Key { return DailyPaymentsReports().Append(date) }
