package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/debtsync/internal/domain"
)

// OpenItem is a balance-increasing transaction and what is left of it after
// credits were applied.
type OpenItem struct {
	TransactionID string             `json:"transactionId"`
	OccurredAt    time.Time          `json:"occurredAt"`
	AgeDays       int                `json:"ageDays"`
	Bucket        domain.AgingBucket `json:"bucket"`
	Original      decimal.Decimal    `json:"original"`
	Remaining     decimal.Decimal    `json:"remaining"`
}

// Result is the fold of a transaction sequence as of a date.
type Result struct {
	Balance         decimal.Decimal            `json:"balance"`
	Buckets         domain.BucketTotals        `json:"buckets"`
	Counts          map[domain.AgingBucket]int `json:"counts"`
	Open            []OpenItem                 `json:"open"`
	UnappliedCredit decimal.Decimal            `json:"unappliedCredit"`
	LastPaymentDate *time.Time                 `json:"lastPaymentDate,omitempty"`
}

// Aggregate folds txs as of asOf.
//
// Transactions dated after asOf are ignored. Charges and positive adjustments
// open an item classified by its age. Payments and negative adjustments
// settle open items oldest first, so OVER_90 is paid down before CURRENT.
// Credit beyond every open item is carried forward, consumed by later
// charges, and otherwise reported as a negative CURRENT amount so that the
// bucket totals always sum to Balance.
func Aggregate(txs []domain.Transaction, asOf time.Time) Result {
	res := Result{
		Balance:         decimal.Zero,
		Buckets:         make(domain.BucketTotals, len(domain.Buckets)),
		Counts:          make(map[domain.AgingBucket]int, len(domain.Buckets)),
		UnappliedCredit: decimal.Zero,
	}
	for _, b := range domain.Buckets {
		res.Buckets[b] = decimal.Zero
		res.Counts[b] = 0
	}

	var open []*OpenItem
	credit := decimal.Zero
	cutoff := day(asOf)

	for _, tx := range domain.SortTransactions(txs) {
		if day(tx.OccurredAt).After(cutoff) {
			continue
		}
		amt := tx.Signed()
		res.Balance = res.Balance.Add(amt)

		if tx.Kind == domain.KindPayment {
			at := tx.OccurredAt
			if res.LastPaymentDate == nil || at.After(*res.LastPaymentDate) {
				res.LastPaymentDate = &at
			}
		}

		switch {
		case amt.IsPositive():
			remaining := amt
			if credit.IsPositive() {
				use := decimal.Min(credit, remaining)
				credit = credit.Sub(use)
				remaining = remaining.Sub(use)
			}
			age := AgeDays(tx.OccurredAt, asOf)
			open = append(open, &OpenItem{
				TransactionID: tx.ID,
				OccurredAt:    tx.OccurredAt,
				AgeDays:       age,
				Bucket:        Classify(age),
				Original:      amt,
				Remaining:     remaining,
			})
		case amt.IsNegative():
			left := amt.Neg()
			for _, item := range open {
				if left.IsZero() {
					break
				}
				if !item.Remaining.IsPositive() {
					continue
				}
				take := decimal.Min(item.Remaining, left)
				item.Remaining = item.Remaining.Sub(take)
				left = left.Sub(take)
			}
			credit = credit.Add(left)
		}
	}

	for _, item := range open {
		if !item.Remaining.IsPositive() {
			continue
		}
		res.Buckets[item.Bucket] = res.Buckets[item.Bucket].Add(item.Remaining)
		res.Counts[item.Bucket]++
		res.Open = append(res.Open, *item)
	}
	if credit.IsPositive() {
		res.Buckets[domain.BucketCurrent] = res.Buckets[domain.BucketCurrent].Sub(credit)
	}
	res.UnappliedCredit = credit
	return res
}

// Account builds the derived DebtAccount for one customer. status is the
// collection status already evaluated for the account.
func Account(customerID string, txs []domain.Transaction, asOf time.Time, status domain.CollectionStatus) (domain.DebtAccount, Result) {
	res := Aggregate(txs, asOf)
	return domain.DebtAccount{
		CustomerID:       customerID,
		Transactions:     domain.SortTransactions(txs),
		Balance:          res.Balance,
		Buckets:          res.Buckets,
		BucketCounts:     res.Counts,
		CollectionStatus: status,
		LastPaymentDate:  res.LastPaymentDate,
		AsOf:             asOf,
	}, res
}
