// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring: ledger, pricing and sync types that every other
// package depends on.
package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Transactions ───────────────────────────────────────────────────────────

// TransactionKind is the business reason for a ledger movement.
type TransactionKind string

const (
	KindCharge     TransactionKind = "CHARGE"
	KindPayment    TransactionKind = "PAYMENT"
	KindAdjustment TransactionKind = "ADJUSTMENT"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindCharge, KindPayment, KindAdjustment:
		return true
	}
	return false
}

// Transaction is one committed ledger movement. Transactions are never
// updated or deleted client-side; corrections are new ADJUSTMENT rows.
type Transaction struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customerId"`
	Kind        TransactionKind `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Signed returns the amount with the sign it contributes to the balance.
// Charges always add, payments always subtract, adjustments keep the sign
// they were recorded with (a negative adjustment is a credit).
func (t Transaction) Signed() decimal.Decimal {
	switch t.Kind {
	case KindCharge:
		return t.Amount.Abs()
	case KindPayment:
		return t.Amount.Abs().Neg()
	default:
		return t.Amount
	}
}

// Before reports whether t sorts before u in ledger order:
// occurredAt first, createdAt as tie-breaker.
func (t Transaction) Before(u Transaction) bool {
	if !t.OccurredAt.Equal(u.OccurredAt) {
		return t.OccurredAt.Before(u.OccurredAt)
	}
	return t.CreatedAt.Before(u.CreatedAt)
}

// SortTransactions returns a copy of txs in ledger order.
func SortTransactions(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// SignedSum is the balance implied by txs.
func SignedSum(txs []Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Signed())
	}
	return sum
}

// ─── Aging ──────────────────────────────────────────────────────────────────

// AgingBucket classifies an outstanding charge by elapsed age.
type AgingBucket string

const (
	BucketCurrent AgingBucket = "CURRENT"
	Bucket31To60  AgingBucket = "DAYS_31_60"
	Bucket61To90  AgingBucket = "DAYS_61_90"
	BucketOver90  AgingBucket = "OVER_90"
)

// Buckets lists every bucket from youngest to oldest.
var Buckets = []AgingBucket{BucketCurrent, Bucket31To60, Bucket61To90, BucketOver90}

// BucketTotals maps each bucket to an amount. Missing buckets are zero.
type BucketTotals map[AgingBucket]decimal.Decimal

// Get returns the bucket amount, zero if absent.
func (b BucketTotals) Get(bucket AgingBucket) decimal.Decimal {
	if v, ok := b[bucket]; ok {
		return v
	}
	return decimal.Zero
}

// Sum adds every bucket.
func (b BucketTotals) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b {
		sum = sum.Add(v)
	}
	return sum
}

// PastDue reports whether any bucket other than CURRENT is non-zero.
func (b BucketTotals) PastDue() bool {
	for _, bucket := range Buckets[1:] {
		if !b.Get(bucket).IsZero() {
			return true
		}
	}
	return false
}

// ─── Statuses ───────────────────────────────────────────────────────────────

// CollectionStatus is the account-level administrative state.
type CollectionStatus string

const (
	CollectionActive    CollectionStatus = "ACTIVE"
	CollectionOverdue   CollectionStatus = "OVERDUE"
	CollectionSuspended CollectionStatus = "SUSPENDED"
)

// PaymentStatus is the presentation-facing projection of paid vs due for one
// invoice view. It is independent of CollectionStatus.
type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "UNPAID"
	PaymentPartial    PaymentStatus = "PARTIAL"
	PaymentPaid       PaymentStatus = "PAID"
	PaymentOverdue    PaymentStatus = "OVERDUE"
	PaymentCollection PaymentStatus = "COLLECTION"
)

// ─── Accounts ───────────────────────────────────────────────────────────────

// DebtAccount is the derived view of one customer's ledger. Balance is never
// stored independently of Transactions.
type DebtAccount struct {
	CustomerID       string              `json:"customerId"`
	Transactions     []Transaction       `json:"transactions"`
	Balance          decimal.Decimal     `json:"balance"`
	Buckets          BucketTotals        `json:"buckets"`
	BucketCounts     map[AgingBucket]int `json:"bucketCounts"`
	CollectionStatus CollectionStatus    `json:"collectionStatus"`
	LastPaymentDate  *time.Time          `json:"lastPaymentDate,omitempty"`
	AsOf             time.Time           `json:"asOf"`
}

// ─── Pricing ────────────────────────────────────────────────────────────────

// PriceOverride is a per-customer unit price that replaces the stored sale
// price when active. It never rewrites historical transactions.
type PriceOverride struct {
	CustomerID      string           `json:"customerId"`
	CustomUnitPrice *decimal.Decimal `json:"customUnitPrice,omitempty"`
	ActiveFrom      *time.Time       `json:"activeFrom,omitempty"`
	ActiveUntil     *time.Time       `json:"activeUntil,omitempty"`
}

// Sale is a stored sale line as recorded at sale time.
type Sale struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Total      decimal.Decimal `json:"total"`
	SoldAt     time.Time       `json:"soldAt"`
}

// ─── Remote read models ─────────────────────────────────────────────────────

// DebtSummary holds the aggregate dashboard metrics.
type DebtSummary struct {
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	ActiveDebtors    int             `json:"activeDebtors"`
	WeeklyPayments   decimal.Decimal `json:"weeklyPayments"`
}

// Outstanding is a customer's outstanding balance record.
type Outstanding struct {
	CustomerID       string           `json:"customerId"`
	TotalOwed        decimal.Decimal  `json:"totalOwed"`
	CollectionStatus CollectionStatus `json:"collectionStatus"`
	LastPaymentDate  *time.Time       `json:"lastPaymentDate,omitempty"`
}

// CustomerSummary is one row of the paginated debtor list.
type CustomerSummary struct {
	CustomerID       string           `json:"customerId"`
	Name             string           `json:"name"`
	Balance          decimal.Decimal  `json:"balance"`
	CollectionStatus CollectionStatus `json:"collectionStatus"`
	LastPaymentDate  *time.Time       `json:"lastPaymentDate,omitempty"`
}

// CustomerPage is one page of CustomerSummary rows.
type CustomerPage struct {
	Items    []CustomerSummary `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int               `json:"total"`
}

// CustomerFilter narrows the debtor list.
type CustomerFilter struct {
	Status   CollectionStatus `json:"status,omitempty"`
	Search   string           `json:"search,omitempty"`
	Page     int              `json:"page,omitempty"`
	PageSize int              `json:"pageSize,omitempty"`
}

// CustomerDetail is the per-customer debt detail.
type CustomerDetail struct {
	CustomerID       string           `json:"customerId"`
	Name             string           `json:"name"`
	CollectionStatus CollectionStatus `json:"collectionStatus"`
	BaseUnitPrice    decimal.Decimal  `json:"baseUnitPrice"`
	PriceOverride    *PriceOverride   `json:"priceOverride,omitempty"`
	Sales            []Sale           `json:"sales,omitempty"`
	DueDate          *time.Time       `json:"dueDate,omitempty"`
}

// AgingRow is one customer's buckets in an aging report.
type AgingRow struct {
	CustomerID string       `json:"customerId"`
	Name       string       `json:"name,omitempty"`
	Buckets    BucketTotals `json:"buckets"`
}

// AgingReport is the per-customer aging as of a report date.
type AgingReport struct {
	Date string     `json:"date"`
	Rows []AgingRow `json:"rows"`
}

// DailyPayments lists payments received on one day.
type DailyPayments struct {
	Date     string          `json:"date"`
	Total    decimal.Decimal `json:"total"`
	Payments []Transaction   `json:"payments"`
}
