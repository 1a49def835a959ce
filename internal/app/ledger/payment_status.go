package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/debtsync/internal/domain"
)

// ProjectPaymentStatus projects paid vs due for one invoice view.
// Being past due by more than 90 days reads as COLLECTION.
func ProjectPaymentStatus(due, paid decimal.Decimal, dueDate *time.Time, asOf time.Time) domain.PaymentStatus {
	if !due.IsPositive() || paid.GreaterThanOrEqual(due) {
		return domain.PaymentPaid
	}
	if dueDate != nil {
		late := AgeDays(*dueDate, asOf)
		switch {
		case late > days90MaxDays:
			return domain.PaymentCollection
		case late > 0:
			return domain.PaymentOverdue
		}
	}
	if paid.IsPositive() {
		return domain.PaymentPartial
	}
	return domain.PaymentUnpaid
}
