// Package ledger folds a customer's transactions into a balance and aging
// buckets. All functions are pure and safe to re-run on every render.
package ledger

import (
	"time"

	"github.com/ledgerline/debtsync/internal/domain"
)

// Bucket upper bounds in days, inclusive.
const (
	currentMaxDays = 30
	days60MaxDays  = 60
	days90MaxDays  = 90
)

// Classify maps an age in days to its aging bucket.
// 30 → CURRENT, 31 → DAYS_31_60, 61 → DAYS_61_90, 91 → OVER_90.
func Classify(ageDays int) domain.AgingBucket {
	switch {
	case ageDays <= currentMaxDays:
		return domain.BucketCurrent
	case ageDays <= days60MaxDays:
		return domain.Bucket31To60
	case ageDays <= days90MaxDays:
		return domain.Bucket61To90
	default:
		return domain.BucketOver90
	}
}

// AgeDays is the number of whole UTC calendar days from occurredAt to asOf.
// It is negative when occurredAt is after asOf.
func AgeDays(occurredAt, asOf time.Time) int {
	return int(day(asOf).Sub(day(occurredAt)) / (24 * time.Hour))
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
