package sqlite

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/debtsync/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func entry(localID, customerID string, typ domain.MutationType) domain.SyncQueueEntry {
	payload, _ := json.Marshal(domain.Mutation{Type: typ, CustomerID: customerID})
	return domain.SyncQueueEntry{
		LocalID:      localID,
		CustomerID:   customerID,
		MutationType: typ,
		Payload:      payload,
		EnqueuedAt:   time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC),
	}
}

// ─── Sync Queue ─────────────────────────────────────────────────────────────

func TestQueue_FIFOOrder(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := db.AppendEntry(entry(id, "c1", domain.MutationCharge)); err != nil {
			t.Fatalf("AppendEntry(%s) error: %v", id, err)
		}
	}

	entries, err := db.ListEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListEntries() returned %d, want 3", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].LocalID != want {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].LocalID, want)
		}
	}
	if entries[0].Seq >= entries[1].Seq {
		t.Error("seq must increase with submission order")
	}

	head, err := db.OldestEntry()
	if err != nil || head == nil || head.LocalID != "a" {
		t.Fatalf("OldestEntry() = %+v, %v; want a", head, err)
	}
	if err := db.DeleteEntry("a"); err != nil {
		t.Fatal(err)
	}
	head, _ = db.OldestEntry()
	if head.LocalID != "b" {
		t.Errorf("head after delete = %s, want b", head.LocalID)
	}
}

func TestQueue_EmptyHeadIsNil(t *testing.T) {
	db := newTestDB(t)
	head, err := db.OldestEntry()
	if err != nil {
		t.Fatalf("OldestEntry() error: %v", err)
	}
	if head != nil {
		t.Errorf("OldestEntry() = %+v, want nil", head)
	}
}

func TestQueue_PayloadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	e := entry("p1", "c9", domain.MutationPayment)
	db.AppendEntry(e)

	head, _ := db.OldestEntry()
	m, err := head.Mutation()
	if err != nil {
		t.Fatalf("Mutation() error: %v", err)
	}
	if m.Type != domain.MutationPayment || m.CustomerID != "c9" {
		t.Errorf("decoded %+v", m)
	}
	if !head.EnqueuedAt.Equal(e.EnqueuedAt) {
		t.Errorf("EnqueuedAt = %v, want %v", head.EnqueuedAt, e.EnqueuedAt)
	}
}

func TestQueue_DuplicateLocalIDRejected(t *testing.T) {
	db := newTestDB(t)
	db.AppendEntry(entry("dup", "c1", domain.MutationCharge))
	if _, err := db.AppendEntry(entry("dup", "c1", domain.MutationCharge)); err == nil {
		t.Error("expected unique violation for repeated local id")
	}
}

func TestQueue_BumpAttempt(t *testing.T) {
	db := newTestDB(t)
	db.AppendEntry(entry("x", "c1", domain.MutationCharge))
	db.BumpAttempt("x")
	db.BumpAttempt("x")

	head, _ := db.OldestEntry()
	if head.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", head.Attempt)
	}
	if err := db.BumpAttempt("missing"); !errors.Is(err, domain.ErrQueueEntryNotFound) {
		t.Errorf("BumpAttempt(missing) = %v, want ErrQueueEntryNotFound", err)
	}
}

func TestQueue_DeleteMissing(t *testing.T) {
	db := newTestDB(t)
	if err := db.DeleteEntry("nope"); !errors.Is(err, domain.ErrQueueEntryNotFound) {
		t.Errorf("DeleteEntry() = %v, want ErrQueueEntryNotFound", err)
	}
}

func TestQueue_Counts(t *testing.T) {
	db := newTestDB(t)
	db.AppendEntry(entry("1", "c1", domain.MutationCharge))
	db.AppendEntry(entry("2", "c1", domain.MutationPayment))
	db.AppendEntry(entry("3", "c2", domain.MutationCharge))

	if n, _ := db.PendingForCustomer("c1"); n != 2 {
		t.Errorf("PendingForCustomer(c1) = %d, want 2", n)
	}
	if n, _ := db.PendingForCustomer("c3"); n != 0 {
		t.Errorf("PendingForCustomer(c3) = %d, want 0", n)
	}
	if n, _ := db.QueueDepth(); n != 3 {
		t.Errorf("QueueDepth() = %d, want 3", n)
	}
}

func TestQueue_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	db.AppendEntry(entry("first", "c1", domain.MutationCharge))
	db.AppendEntry(entry("second", "c1", domain.MutationPayment))
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	entries, _ := db.ListEntries()
	if len(entries) != 2 || entries[0].LocalID != "first" || entries[1].LocalID != "second" {
		t.Errorf("after reopen got %+v", entries)
	}
}

// ─── Failed Mutations ───────────────────────────────────────────────────────

func TestFailedMutations_RecordAndList(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"f1", "f2"} {
		err := db.RecordFailedMutation(domain.FailedMutation{
			LocalID:      id,
			CustomerID:   "c1",
			MutationType: domain.MutationPayment,
			Payload:      []byte(`{}`),
			Reason:       "validation (status 422): charge already settled",
			FailedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordFailedMutation(%s) error: %v", id, err)
		}
	}
	// Repeated record is ignored.
	db.RecordFailedMutation(domain.FailedMutation{LocalID: "f1", CustomerID: "c1", Reason: "again", Payload: []byte(`{}`)})

	got, err := db.ListFailedMutations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListFailedMutations() returned %d, want 2", len(got))
	}
	if got[0].LocalID != "f2" {
		t.Errorf("most recent first: got %s", got[0].LocalID)
	}
	if got[1].Reason == "again" {
		t.Error("duplicate record must not overwrite the first")
	}
}

// ─── Sync State ─────────────────────────────────────────────────────────────

func TestLastDrained(t *testing.T) {
	db := newTestDB(t)
	if at, err := db.LastDrained(); err != nil || at != nil {
		t.Fatalf("LastDrained() = %v, %v; want nil before first drain", at, err)
	}

	when := time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)
	db.SetLastDrained(when)
	db.SetLastDrained(when.Add(time.Hour))

	at, err := db.LastDrained()
	if err != nil || at == nil || !at.Equal(when.Add(time.Hour)) {
		t.Errorf("LastDrained() = %v, %v", at, err)
	}
}
