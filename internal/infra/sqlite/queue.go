package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/debtsync/internal/domain"
)

// Compile-time interface check.
var _ domain.QueueStore = (*DB)(nil)

// ─── Sync Queue Operations ──────────────────────────────────────────────────

// AppendEntry adds an entry at the tail of the queue and returns its seq.
func (db *DB) AppendEntry(e domain.SyncQueueEntry) (int64, error) {
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	res, err := db.db.Exec(`
		INSERT INTO sync_queue (local_id, customer_id, mutation_type, payload, enqueued_at, attempt)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.LocalID, e.CustomerID, string(e.MutationType), string(e.Payload), formatTime(e.EnqueuedAt), e.Attempt)
	if err != nil {
		return 0, fmt.Errorf("append queue entry %s: %w", e.LocalID, err)
	}
	return res.LastInsertId()
}

// OldestEntry returns the head of the queue, or nil when it is empty.
func (db *DB) OldestEntry() (*domain.SyncQueueEntry, error) {
	row := db.db.QueryRow(`
		SELECT seq, local_id, customer_id, mutation_type, payload, enqueued_at, attempt
		FROM sync_queue ORDER BY seq ASC LIMIT 1
	`)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns every queued entry in submission order.
func (db *DB) ListEntries() ([]domain.SyncQueueEntry, error) {
	rows, err := db.db.Query(`
		SELECT seq, local_id, customer_id, mutation_type, payload, enqueued_at, attempt
		FROM sync_queue ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SyncQueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntry removes an entry after commit or terminal failure.
func (db *DB) DeleteEntry(localID string) error {
	res, err := db.db.Exec(`DELETE FROM sync_queue WHERE local_id = ?`, localID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQueueEntryNotFound, localID)
	}
	return nil
}

// BumpAttempt records one more failed replay of an entry.
func (db *DB) BumpAttempt(localID string) error {
	res, err := db.db.Exec(`UPDATE sync_queue SET attempt = attempt + 1 WHERE local_id = ?`, localID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQueueEntryNotFound, localID)
	}
	return nil
}

// PendingForCustomer counts queued entries for one customer.
func (db *DB) PendingForCustomer(customerID string) (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM sync_queue WHERE customer_id = ?`, customerID).Scan(&n)
	return n, err
}

// QueueDepth counts every queued entry.
func (db *DB) QueueDepth() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

// ─── Failed Mutation Operations ─────────────────────────────────────────────

// RecordFailedMutation stores a rejected replay. Recording the same local id
// twice keeps the first record.
func (db *DB) RecordFailedMutation(f domain.FailedMutation) error {
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now()
	}
	_, err := db.db.Exec(`
		INSERT INTO failed_mutations (local_id, customer_id, mutation_type, payload, reason, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO NOTHING
	`, f.LocalID, f.CustomerID, string(f.MutationType), string(f.Payload), f.Reason, formatTime(f.FailedAt))
	return err
}

// ListFailedMutations returns the most recent failures first.
func (db *DB) ListFailedMutations(limit int) ([]domain.FailedMutation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT local_id, customer_id, mutation_type, payload, reason, failed_at
		FROM failed_mutations ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FailedMutation
	for rows.Next() {
		var f domain.FailedMutation
		var typ, payload, failedAt string
		if err := rows.Scan(&f.LocalID, &f.CustomerID, &typ, &payload, &f.Reason, &failedAt); err != nil {
			return nil, err
		}
		f.MutationType = domain.MutationType(typ)
		f.Payload = []byte(payload)
		f.FailedAt = parseTime(failedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ─── Sync State Operations ──────────────────────────────────────────────────

const lastDrainedKey = "last_drained_at"

// SetLastDrained records when the queue last drained completely.
func (db *DB) SetLastDrained(at time.Time) error {
	_, err := db.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = datetime('now')
	`, lastDrainedKey, formatTime(at))
	return err
}

// LastDrained returns when the queue last drained, nil if never.
func (db *DB) LastDrained() (*time.Time, error) {
	var v string
	err := db.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, lastDrainedKey).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := parseTime(v)
	return &t, nil
}

// ─── Scanning ───────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (domain.SyncQueueEntry, error) {
	var e domain.SyncQueueEntry
	var typ, payload, enqueuedAt string
	if err := s.Scan(&e.Seq, &e.LocalID, &e.CustomerID, &typ, &payload, &enqueuedAt, &e.Attempt); err != nil {
		return e, err
	}
	e.MutationType = domain.MutationType(typ)
	e.Payload = []byte(payload)
	e.EnqueuedAt = parseTime(enqueuedAt)
	return e, nil
}
