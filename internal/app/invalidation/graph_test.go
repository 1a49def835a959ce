package invalidation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
)

type recorder struct{ prefixes []string }

func (r *recorder) Invalidate(prefix cache.Key) int {
	r.prefixes = append(r.prefixes, prefix.String())
	return 1
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestGraph_LedgerMutations(t *testing.T) {
	g := Default()
	types := []domain.MutationType{
		domain.MutationCharge,
		domain.MutationPayment,
		domain.MutationAdjustment,
		domain.MutationMarkPaid,
		domain.MutationSuspend,
		domain.MutationReactivate,
	}
	want := []string{
		"debts/customer/c1",
		"debts/customers",
		"debts/summary",
		"payments/list",
		"debts/outstanding/c1",
		"reports/aging",
		"reports/daily-payments",
	}
	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			r := &recorder{}
			g.Apply(r, domain.Mutation{Type: typ, CustomerID: "c1"})
			for _, w := range want {
				if !contains(r.prefixes, w) {
					t.Errorf("%s did not invalidate %s (got %v)", typ, w, r.prefixes)
				}
			}
			if contains(r.prefixes, "reminders/needing") {
				t.Errorf("%s should not touch reminder views", typ)
			}
		})
	}
}

func TestGraph_ReminderNote(t *testing.T) {
	r := &recorder{}
	Default().Apply(r, domain.Mutation{Type: domain.MutationReminderNote, CustomerID: "c7"})

	want := []string{"reminders/history/c7", "reminders/needing", "reminders/outstanding-balance"}
	if len(r.prefixes) != len(want) {
		t.Fatalf("got %v, want %v", r.prefixes, want)
	}
	for _, w := range want {
		if !contains(r.prefixes, w) {
			t.Errorf("missing %s", w)
		}
	}
}

func TestGraph_UnknownTypeInvalidatesNothing(t *testing.T) {
	if keys := Default().Keys(domain.Mutation{Type: "REFUND", CustomerID: "c1"}); len(keys) != 0 {
		t.Errorf("Keys() = %v, want none", keys)
	}
}

// A payment must stale every filtered list page and the customer's history
// without enumerating them.
func TestGraph_PrefixReachesParameterizedViews(t *testing.T) {
	c := cache.New(cache.Options{ActiveWindow: time.Nanosecond}, cache.Hooks{})
	var calls atomic.Int32
	load := func(context.Context) (any, error) { return int(calls.Add(1)), nil }
	ctx := context.Background()

	views := []cache.Key{
		CustomersPage(domain.CustomerFilter{Page: 1, PageSize: 20}),
		CustomersPage(domain.CustomerFilter{Status: domain.CollectionOverdue, Page: 2, PageSize: 20}),
		CustomerHistory("c1"),
		AgingReport("2026-10-15"),
		DailyPayments("2026-10-15"),
	}
	for _, k := range views {
		_, _ = c.Get(ctx, k, load)
	}
	untouched := CustomerHistory("c2")
	_, _ = c.Get(ctx, untouched, load)

	time.Sleep(time.Millisecond)
	n := Default().Apply(c, domain.Mutation{Type: domain.MutationPayment, CustomerID: "c1"})
	if n != len(views) {
		t.Errorf("Apply() marked %d entries, want %d", n, len(views))
	}
	for _, s := range c.Snapshot() {
		if s.Key == untouched.String() && s.Stale {
			t.Errorf("%s should not be stale", s.Key)
		}
	}
}

func TestKeys_HistoryUnderCustomerDetail(t *testing.T) {
	if !CustomerHistory("c1").HasPrefix(CustomerDetail("c1")) {
		t.Error("history key must sit under the customer detail prefix")
	}
	if CustomerHistory("c10").HasPrefix(CustomerDetail("c1")) {
		t.Error("prefix match must be per segment")
	}
}
