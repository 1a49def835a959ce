// Package debts is the read and write facade the API and CLI use.
//
// Reads go through the shared cache under the keys the invalidation graph
// knows about. Derived views (balance, aging, collection status, effective
// prices) are recomputed from cached raw data on every call. Writes are
// handed to the sync coordinator and never touch the cache directly.
package debts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/debtsync/internal/app/collection"
	"github.com/ledgerline/debtsync/internal/app/invalidation"
	"github.com/ledgerline/debtsync/internal/app/ledger"
	"github.com/ledgerline/debtsync/internal/app/pricing"
	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
)

const dateLayout = "2006-01-02"

// Submitter accepts mutations. *syncer.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, m domain.Mutation) (domain.Receipt, error)
}

// Service combines the remote reader, the cache and the coordinator.
type Service struct {
	reader domain.LedgerReader
	cache  *cache.Cache
	sync   Submitter
	now    domain.Clock
}

// NewService creates a Service. now may be nil.
func NewService(reader domain.LedgerReader, c *cache.Cache, sync Submitter, now domain.Clock) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{reader: reader, cache: c, sync: sync, now: now}
}

// ─── Cached reads ───────────────────────────────────────────────────────────

// Summary returns the dashboard aggregates.
func (s *Service) Summary(ctx context.Context) (*domain.DebtSummary, error) {
	return cache.Fetch(ctx, s.cache, invalidation.DebtSummary(), s.reader.Summary)
}

// Outstanding returns the customer's outstanding record, or nil when the
// customer has no debt record.
func (s *Service) Outstanding(ctx context.Context, customerID string) (*domain.Outstanding, error) {
	return cache.Fetch(ctx, s.cache, invalidation.Outstanding(customerID),
		func(ctx context.Context) (*domain.Outstanding, error) {
			return s.reader.Outstanding(ctx, customerID)
		})
}

// Customers returns one page of the debtor list.
func (s *Service) Customers(ctx context.Context, f domain.CustomerFilter) (*domain.CustomerPage, error) {
	return cache.Fetch(ctx, s.cache, invalidation.CustomersPage(f),
		func(ctx context.Context) (*domain.CustomerPage, error) {
			return s.reader.ListCustomers(ctx, f)
		})
}

// Customer returns the customer detail, or nil when it does not exist.
func (s *Service) Customer(ctx context.Context, customerID string) (*domain.CustomerDetail, error) {
	return cache.Fetch(ctx, s.cache, invalidation.CustomerDetail(customerID),
		func(ctx context.Context) (*domain.CustomerDetail, error) {
			return s.reader.CustomerDetail(ctx, customerID)
		})
}

// History returns the customer's transactions in ledger order.
func (s *Service) History(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	txs, err := cache.Fetch(ctx, s.cache, invalidation.CustomerHistory(customerID),
		func(ctx context.Context) ([]domain.Transaction, error) {
			return s.reader.History(ctx, customerID)
		})
	if err != nil && txs == nil {
		return nil, err
	}
	return domain.SortTransactions(txs), err
}

// AgingReport returns the server's aging report for date (YYYY-MM-DD);
// an empty date means today.
func (s *Service) AgingReport(ctx context.Context, date string) (*domain.AgingReport, error) {
	date = s.date(date)
	return cache.Fetch(ctx, s.cache, invalidation.AgingReport(date),
		func(ctx context.Context) (*domain.AgingReport, error) {
			return s.reader.AgingReport(ctx, date)
		})
}

// DailyPayments returns payments received on date; empty means today.
func (s *Service) DailyPayments(ctx context.Context, date string) (*domain.DailyPayments, error) {
	date = s.date(date)
	return cache.Fetch(ctx, s.cache, invalidation.DailyPayments(date),
		func(ctx context.Context) (*domain.DailyPayments, error) {
			return s.reader.DailyPayments(ctx, date)
		})
}

func (s *Service) date(d string) string {
	if d != "" {
		return d
	}
	return s.now().UTC().Format(dateLayout)
}

// ─── Derived account view ───────────────────────────────────────────────────

// AccountView is a customer's ledger folded as of a date, with the
// override-adjusted value of their sales alongside the stored figures.
type AccountView struct {
	domain.DebtAccount
	Open            []ledger.OpenItem    `json:"open"`
	UnappliedCredit decimal.Decimal      `json:"unappliedCredit"`
	TotalPaid       decimal.Decimal      `json:"totalPaid"`
	PaymentStatus   domain.PaymentStatus `json:"paymentStatus"`
	DueDate         *time.Time           `json:"dueDate,omitempty"`
	Sales           []pricing.Resolution `json:"sales,omitempty"`
	EffectiveTotal  decimal.Decimal      `json:"effectiveTotal"`
	StoredTotal     decimal.Decimal      `json:"storedTotal"`
	Discrepancies   int                  `json:"discrepancies"`
}

// Account derives the account as of asOf (zero means now). It returns nil
// when the customer has neither a detail record nor any transactions.
func (s *Service) Account(ctx context.Context, customerID string, asOf time.Time) (*AccountView, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	detail, err := s.Customer(ctx, customerID)
	if err != nil && detail == nil {
		return nil, err
	}
	txs, err := s.History(ctx, customerID)
	if err != nil && txs == nil {
		return nil, err
	}
	if detail == nil && len(txs) == 0 {
		return nil, nil
	}

	current := domain.CollectionActive
	if detail != nil && detail.CollectionStatus != "" {
		current = detail.CollectionStatus
	}
	acct, res := ledger.Account(customerID, txs, asOf, current)
	acct.CollectionStatus = collection.Evaluate(current, res.Buckets)

	paid := decimal.Zero
	for _, tx := range acct.Transactions {
		if tx.Kind == domain.KindPayment && !ledgerDay(tx.OccurredAt).After(ledgerDay(asOf)) {
			paid = paid.Add(tx.Amount.Abs())
		}
	}

	view := &AccountView{
		DebtAccount:     acct,
		Open:            res.Open,
		UnappliedCredit: res.UnappliedCredit,
		TotalPaid:       paid,
		EffectiveTotal:  decimal.Zero,
		StoredTotal:     decimal.Zero,
	}
	if detail != nil {
		view.DueDate = detail.DueDate
		view.Sales, view.EffectiveTotal, view.StoredTotal = pricing.ResolveAll(detail.PriceOverride, detail.BaseUnitPrice, detail.Sales, asOf)
		for _, r := range view.Sales {
			if r.HasDiscrepancy {
				view.Discrepancies++
			}
		}
	}
	view.PaymentStatus = ledger.ProjectPaymentStatus(paid.Add(res.Balance), paid, view.DueDate, asOf)
	return view, nil
}

func ledgerDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// Charge records a new debt against the customer.
func (s *Service) Charge(ctx context.Context, customerID string, amount decimal.Decimal, note string) (domain.Receipt, error) {
	return s.sync.Submit(ctx, domain.Mutation{Type: domain.MutationCharge, CustomerID: customerID, Amount: amount, Note: note})
}

// Pay records a payment.
func (s *Service) Pay(ctx context.Context, customerID string, amount decimal.Decimal, note string) (domain.Receipt, error) {
	return s.sync.Submit(ctx, domain.Mutation{Type: domain.MutationPayment, CustomerID: customerID, Amount: amount, Note: note})
}

// Adjust records a signed correction; negative amounts are credits.
func (s *Service) Adjust(ctx context.Context, customerID string, amount decimal.Decimal, note string) (domain.Receipt, error) {
	return s.sync.Submit(ctx, domain.Mutation{Type: domain.MutationAdjustment, CustomerID: customerID, Amount: amount, Note: note})
}

// MarkPaid settles the customer's outstanding balance in full.
func (s *Service) MarkPaid(ctx context.Context, customerID string) (domain.Receipt, error) {
	return s.sync.Submit(ctx, domain.Mutation{Type: domain.MutationMarkPaid, CustomerID: customerID})
}

// AddReminder records a reminder note.
func (s *Service) AddReminder(ctx context.Context, customerID, note string) (domain.Receipt, error) {
	return s.sync.Submit(ctx, domain.Mutation{Type: domain.MutationReminderNote, CustomerID: customerID, Note: note})
}

// Suspend places the account on hold. The transition is checked against
// the last known detail first; the server has the final say.
func (s *Service) Suspend(ctx context.Context, customerID string) (domain.Receipt, error) {
	return s.submitStatusChange(ctx, customerID, domain.MutationSuspend)
}

// Reactivate lifts a hold.
func (s *Service) Reactivate(ctx context.Context, customerID string) (domain.Receipt, error) {
	return s.submitStatusChange(ctx, customerID, domain.MutationReactivate)
}

func (s *Service) submitStatusChange(ctx context.Context, customerID string, m domain.MutationType) (domain.Receipt, error) {
	if current, ok := s.knownStatus(customerID); ok {
		if _, err := collection.Apply(current, m, nil); err != nil {
			return domain.Receipt{}, err
		}
	}
	return s.sync.Submit(ctx, domain.Mutation{Type: m, CustomerID: customerID})
}

// knownStatus reads the cached detail without fetching, so it works offline.
func (s *Service) knownStatus(customerID string) (domain.CollectionStatus, bool) {
	v, ok := s.cache.Peek(invalidation.CustomerDetail(customerID))
	if !ok {
		return "", false
	}
	detail, _ := v.(*domain.CustomerDetail)
	if detail == nil || detail.CollectionStatus == "" {
		return "", false
	}
	return detail.CollectionStatus, true
}
