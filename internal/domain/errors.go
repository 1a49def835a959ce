package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Mutation errors
	ErrInvalidMutation  = errors.New("invalid mutation")
	ErrAlreadySuspended = errors.New("account already suspended")
	ErrNotSuspended     = errors.New("account is not suspended")

	// Transport errors
	ErrOffline         = errors.New("no network connection available")
	ErrRemoteMalformed = errors.New("remote returned malformed payload")

	// Queue errors
	ErrQueueEntryNotFound = errors.New("sync queue entry not found")
)

// ─── API Error Union ────────────────────────────────────────────────────────
// Every failure of a remote call is classified exactly once, at the
// transport boundary, into one of these kinds. Downstream code switches on
// Kind and never inspects raw payloads.

// ErrorKind is the closed set of remote failure classes.
type ErrorKind int

const (
	// KindAbsence is a 404 on a per-customer resource: no record, not an error.
	KindAbsence ErrorKind = iota + 1
	// KindTransient covers 5xx, 429, timeouts and transport failures.
	KindTransient
	// KindAuth covers 401 and 403.
	KindAuth
	// KindValidation covers every other 4xx.
	KindValidation
)

// String returns the kind label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindAbsence:
		return "absence"
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// APIError is a classified remote failure.
type APIError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 for transport failures
	Message string // server-provided message, if any
	Err     error  // underlying transport error, if any
}

func (e *APIError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status to an ErrorKind. Callers only invoke it
// for non-2xx responses.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindAbsence
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return KindTransient
	default:
		return KindValidation
	}
}

// KindOf returns the ErrorKind carried by err, or 0 if err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsAbsence reports whether err means "no record".
func IsAbsence(err error) bool { return KindOf(err) == KindAbsence }

// ─── Sync Errors ────────────────────────────────────────────────────────────

// SyncConflictError is raised when the server rejects a replayed mutation.
// The entry is dropped from the queue and the user is told.
type SyncConflictError struct {
	Entry SyncQueueEntry
	Cause error
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("queued %s for customer %s rejected: %v", e.Entry.MutationType, e.Entry.CustomerID, e.Cause)
}

func (e *SyncConflictError) Unwrap() error { return e.Cause }
