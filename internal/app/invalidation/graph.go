package invalidation

import (
	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
)

// Invalidator is the part of the cache the graph drives.
type Invalidator interface {
	Invalidate(prefix cache.Key) int
}

// Rule returns the prefixes a mutation for customerID makes stale.
type Rule func(customerID string) []cache.Key

// Graph is the static mapping from mutation type to invalidated prefixes.
type Graph struct {
	rules map[domain.MutationType]Rule
}

// ledgerViews covers every view whose contents are a function of the
// customer's transactions.
func ledgerViews(customerID string) []cache.Key {
	return []cache.Key{
		CustomerDetail(customerID),
		CustomersList(),
		DebtSummary(),
		PaymentsList(),
		Outstanding(customerID),
		AgingReports(),
		DailyPaymentsReports(),
	}
}

func reminderViews(customerID string) []cache.Key {
	return []cache.Key{
		ReminderHistory(customerID),
		RemindersNeeding(),
		OutstandingBalance(),
	}
}

// Default returns the production graph.
func Default() *Graph {
	return &Graph{rules: map[domain.MutationType]Rule{
		domain.MutationCharge:       ledgerViews,
		domain.MutationPayment:      ledgerViews,
		domain.MutationAdjustment:   ledgerViews,
		domain.MutationMarkPaid:     ledgerViews,
		domain.MutationSuspend:      ledgerViews,
		domain.MutationReactivate:   ledgerViews,
		domain.MutationReminderNote: reminderViews,
	}}
}

// Keys returns the prefixes to invalidate after m commits. Unknown mutation
// types invalidate nothing.
func (g *Graph) Keys(m domain.Mutation) []cache.Key {
	rule, ok := g.rules[m.Type]
	if !ok {
		return nil
	}
	return rule(m.CustomerID)
}

// Apply invalidates every prefix for m and returns how many entries were
// newly marked stale. Call only after the server confirmed the commit.
func (g *Graph) Apply(c Invalidator, m domain.Mutation) int {
	n := 0
	for _, prefix := range g.Keys(m) {
		n += c.Invalidate(prefix)
	}
	return n
}
