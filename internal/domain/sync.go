package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Mutations ──────────────────────────────────────────────────────────────

// MutationType identifies a balance- or account-affecting write.
type MutationType string

const (
	MutationCharge       MutationType = "CHARGE"
	MutationPayment      MutationType = "PAYMENT"
	MutationAdjustment   MutationType = "ADJUSTMENT"
	MutationMarkPaid     MutationType = "MARK_PAID"
	MutationReminderNote MutationType = "REMINDER_NOTE"
	MutationSuspend      MutationType = "SUSPEND"
	MutationReactivate   MutationType = "REACTIVATE"
)

// Mutation is a write against one customer's account.
type Mutation struct {
	Type       MutationType    `json:"type"`
	CustomerID string          `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	OccurredAt *time.Time      `json:"occurredAt,omitempty"`
}

// Validate checks the mutation shape before it is sent or queued.
func (m Mutation) Validate() error {
	if m.CustomerID == "" {
		return fmt.Errorf("%w: customer id required", ErrInvalidMutation)
	}
	switch m.Type {
	case MutationCharge, MutationPayment:
		if !m.Amount.IsPositive() {
			return fmt.Errorf("%w: %s amount must be positive", ErrInvalidMutation, m.Type)
		}
	case MutationAdjustment:
		if m.Amount.IsZero() {
			return fmt.Errorf("%w: adjustment amount must be non-zero", ErrInvalidMutation)
		}
	case MutationReminderNote:
		if m.Note == "" {
			return fmt.Errorf("%w: reminder note is empty", ErrInvalidMutation)
		}
	case MutationMarkPaid, MutationSuspend, MutationReactivate:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMutation, m.Type)
	}
	return nil
}

// CommitResult is what the server returns for a committed mutation: the
// committed transaction, an account snapshot, or both.
type CommitResult struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	Account     *Outstanding `json:"account,omitempty"`
}

// Receipt tells the caller what happened to a submitted mutation.
type Receipt struct {
	LocalID   string        `json:"localId"`
	Queued    bool          `json:"queued"`
	Committed bool          `json:"committed"`
	Result    *CommitResult `json:"result,omitempty"`
}

// ─── Sync Queue ─────────────────────────────────────────────────────────────

// SyncQueueEntry is a mutation waiting for the network. It is owned
// exclusively by the sync coordinator.
type SyncQueueEntry struct {
	Seq          int64           `json:"seq"`
	LocalID      string          `json:"localId"`
	MutationType MutationType    `json:"mutationType"`
	CustomerID   string          `json:"customerId"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   time.Time       `json:"enqueuedAt"`
	Attempt      int             `json:"attempt"`
}

// Mutation decodes the queued payload.
func (e SyncQueueEntry) Mutation() (Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return Mutation{}, fmt.Errorf("decode queued mutation %s: %w", e.LocalID, err)
	}
	return m, nil
}

// FailedMutation records a queued mutation the server rejected on replay.
type FailedMutation struct {
	LocalID      string          `json:"localId"`
	CustomerID   string          `json:"customerId"`
	MutationType MutationType    `json:"mutationType"`
	Payload      json.RawMessage `json:"payload"`
	Reason       string          `json:"reason"`
	FailedAt     time.Time       `json:"failedAt"`
}

// ─── Connectivity ───────────────────────────────────────────────────────────

// Connectivity is the two-state network view feeding the sync coordinator.
type Connectivity int

const (
	Offline Connectivity = iota
	Online
)

// String returns a human-readable connectivity state.
func (c Connectivity) String() string {
	if c == Online {
		return "online"
	}
	return "offline"
}
