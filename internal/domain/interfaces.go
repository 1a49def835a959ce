package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// LedgerReader abstracts the read endpoints of the remote debt API.
type LedgerReader interface {
	Summary(ctx context.Context) (*DebtSummary, error)
	// Outstanding returns nil, nil when the customer has no debt record.
	Outstanding(ctx context.Context, customerID string) (*Outstanding, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) (*CustomerPage, error)
	CustomerDetail(ctx context.Context, customerID string) (*CustomerDetail, error)
	History(ctx context.Context, customerID string) ([]Transaction, error)
	AgingReport(ctx context.Context, date string) (*AgingReport, error)
	DailyPayments(ctx context.Context, date string) (*DailyPayments, error)
}

// Committer sends one mutation to the server and returns the committed result.
type Committer interface {
	Commit(ctx context.Context, localID string, m Mutation) (*CommitResult, error)
}

// QueueStore abstracts durable sync-queue storage. Entries come back in
// insertion order.
type QueueStore interface {
	AppendEntry(e SyncQueueEntry) (int64, error)
	OldestEntry() (*SyncQueueEntry, error) // nil when empty
	ListEntries() ([]SyncQueueEntry, error)
	DeleteEntry(localID string) error
	BumpAttempt(localID string) error
	PendingForCustomer(customerID string) (int, error)
	QueueDepth() (int, error)
	RecordFailedMutation(f FailedMutation) error
	ListFailedMutations(limit int) ([]FailedMutation, error)
	SetLastDrained(at time.Time) error
	LastDrained() (*time.Time, error) // nil before the first full drain
}

// Notifier tells the user about sync outcomes they must see.
type Notifier interface {
	QueuedMutationFailed(f FailedMutation)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
