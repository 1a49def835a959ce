// Package collection implements the account collection-status machine.
//
//	ACTIVE ──(non-CURRENT bucket occupied)──▶ OVERDUE
//	OVERDUE ──(all non-CURRENT buckets zero)──▶ ACTIVE
//	any ──(Suspend, administrative)──▶ SUSPENDED
//	SUSPENDED ──(Reactivate, administrative)──▶ ACTIVE | OVERDUE
//
// SUSPENDED is never left by balance changes alone.
package collection

import (
	"fmt"

	"github.com/ledgerline/debtsync/internal/domain"
)

// Evaluate returns the status after an aggregation produced buckets.
func Evaluate(current domain.CollectionStatus, buckets domain.BucketTotals) domain.CollectionStatus {
	if current == domain.CollectionSuspended {
		return domain.CollectionSuspended
	}
	return derive(buckets)
}

// Suspend places the account on a manual collections hold.
func Suspend(current domain.CollectionStatus) (domain.CollectionStatus, error) {
	if current == domain.CollectionSuspended {
		return current, domain.ErrAlreadySuspended
	}
	return domain.CollectionSuspended, nil
}

// Reactivate lifts a hold. The resulting status is re-derived from buckets,
// so an account with old debt comes back as OVERDUE.
func Reactivate(current domain.CollectionStatus, buckets domain.BucketTotals) (domain.CollectionStatus, error) {
	if current != domain.CollectionSuspended {
		return current, fmt.Errorf("reactivate from %s: %w", current, domain.ErrNotSuspended)
	}
	return derive(buckets), nil
}

// Apply runs an administrative mutation through the machine. Mutations that
// are not SUSPEND or REACTIVATE only re-evaluate.
func Apply(current domain.CollectionStatus, m domain.MutationType, buckets domain.BucketTotals) (domain.CollectionStatus, error) {
	switch m {
	case domain.MutationSuspend:
		return Suspend(current)
	case domain.MutationReactivate:
		return Reactivate(current, buckets)
	default:
		return Evaluate(current, buckets), nil
	}
}

func derive(buckets domain.BucketTotals) domain.CollectionStatus {
	if buckets.PastDue() {
		return domain.CollectionOverdue
	}
	return domain.CollectionActive
}
