// Package syncer routes every mutation through one coordinator that either
// commits it now or queues it durably until the network returns.
//
// Lifecycle of a mutation:
//  1. Submit validates it and takes the customer's lock
//  2. OFFLINE, or the customer already has queued entries: append to the queue
//  3. Otherwise commit now and invalidate dependent views on success
//  4. On the next ONLINE transition the queue replays oldest first
//  5. After a full drain every cached view is invalidated (reconciliation)
//
// Replay policy when an entry fails:
//   - Terminal (auth, validation, absence): the entry is a sync conflict. It is
//     dropped, recorded as a FailedMutation, the user is notified, and replay
//     continues with the next entry.
//   - Transient (after the transport's retries): the entry stays at the head
//     with its attempt count bumped and replay halts until the next ONLINE
//     transition or a manual Flush.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ledgerline/debtsync/internal/app/invalidation"
	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/logging"
	"github.com/ledgerline/debtsync/internal/infra/observability"
	"github.com/ledgerline/debtsync/internal/infra/retry"
)

// Deps are the coordinator's collaborators. Queue and Committer are required.
type Deps struct {
	Queue     domain.QueueStore
	Committer domain.Committer
	Views     invalidation.Invalidator
	Reconcile func() int // full invalidation after a drain; may be nil
	Graph     *invalidation.Graph
	Notifier  domain.Notifier
	Tracer    *observability.Tracer
	Logger    logging.Logger
	Clock     domain.Clock
	NewID     func() string
}

// Coordinator serializes mutations per customer and owns the sync queue.
type Coordinator struct {
	queue     domain.QueueStore
	committer domain.Committer
	views     invalidation.Invalidator
	reconcile func() int
	graph     *invalidation.Graph
	notifier  domain.Notifier
	tracer    *observability.Tracer
	log       *logrus.Entry
	now       domain.Clock
	newID     func() string

	locks   *keyedMutex
	drainMu sync.Mutex
	bg      sync.WaitGroup

	mu        sync.Mutex
	state     domain.Connectivity
	halted    bool
	lastError string
}

// New creates a coordinator in the OFFLINE state.
func New(d Deps) *Coordinator {
	if d.Graph == nil {
		d.Graph = invalidation.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Notifier == nil {
		d.Notifier = NewLogNotifier(d.Logger)
	}
	c := &Coordinator{
		queue:     d.Queue,
		committer: d.Committer,
		views:     d.Views,
		reconcile: d.Reconcile,
		graph:     d.Graph,
		notifier:  d.Notifier,
		tracer:    d.Tracer,
		log:       logging.Component(d.Logger, "syncer"),
		now:       d.Clock,
		newID:     d.NewID,
		locks:     newKeyedMutex(),
		state:     domain.Offline,
	}
	c.refreshDepth()
	return c
}

// ─── Submit ─────────────────────────────────────────────────────────────────

// Submit commits m now when ONLINE with no backlog for the customer, and
// queues it otherwise. The commit runs to completion even if ctx is
// cancelled. A transient failure of an immediate commit is returned to the
// caller and nothing is queued.
func (c *Coordinator) Submit(ctx context.Context, m domain.Mutation) (domain.Receipt, error) {
	if err := m.Validate(); err != nil {
		return domain.Receipt{}, err
	}
	localID := c.newID()
	log := c.log.WithFields(logrus.Fields{"customer_id": m.CustomerID, "local_id": localID, "mutation": string(m.Type)})

	unlock := c.locks.Lock(m.CustomerID)
	defer unlock()

	pending, err := c.queue.PendingForCustomer(m.CustomerID)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("check backlog: %w", err)
	}

	if c.State() == domain.Offline || pending > 0 {
		if err := c.enqueue(localID, m); err != nil {
			return domain.Receipt{}, err
		}
		observability.SyncMutations.WithLabelValues(string(m.Type), "queued").Inc()
		log.WithField("backlog", pending).Info("mutation queued")
		return domain.Receipt{LocalID: localID, Queued: true}, nil
	}

	res, err := c.commit(context.WithoutCancel(ctx), "commit", localID, m)
	if err != nil {
		observability.SyncMutations.WithLabelValues(string(m.Type), "failed").Inc()
		log.WithError(err).Warn("commit failed")
		return domain.Receipt{LocalID: localID}, err
	}
	observability.SyncMutations.WithLabelValues(string(m.Type), "committed").Inc()
	log.Info("mutation committed")
	return domain.Receipt{LocalID: localID, Committed: true, Result: res}, nil
}

func (c *Coordinator) enqueue(localID string, m domain.Mutation) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation: %w", err)
	}
	_, err = c.queue.AppendEntry(domain.SyncQueueEntry{
		LocalID:      localID,
		MutationType: m.Type,
		CustomerID:   m.CustomerID,
		Payload:      payload,
		EnqueuedAt:   c.now(),
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	c.refreshDepth()
	return nil
}

// commit sends m and, only after the server confirms, invalidates the views
// it affects.
func (c *Coordinator) commit(ctx context.Context, op, localID string, m domain.Mutation) (*domain.CommitResult, error) {
	span := c.tracer.StartSpan(ctx, op, map[string]string{
		"local_id":    localID,
		"customer_id": m.CustomerID,
		"mutation":    string(m.Type),
	})
	res, err := c.committer.Commit(ctx, localID, m)
	c.tracer.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if c.views != nil {
		c.graph.Apply(c.views, m)
	}
	return res, nil
}

// ─── Connectivity ───────────────────────────────────────────────────────────

// SetConnectivity records the new state. Entering ONLINE starts a replay in
// the background; Wait blocks until it finishes.
func (c *Coordinator) SetConnectivity(state domain.Connectivity) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	if state == domain.Online && prev != domain.Online {
		c.halted = false
	}
	c.mu.Unlock()

	if state != domain.Online || prev == domain.Online {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.Drain(context.Background()); err != nil {
			c.log.WithError(err).Error("replay failed")
		}
	}()
}

// State returns the coordinator's view of connectivity.
func (c *Coordinator) State() domain.Connectivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until background replays have finished.
func (c *Coordinator) Wait() {
	c.bg.Wait()
}

// ─── Replay ─────────────────────────────────────────────────────────────────

// DrainReport summarizes one replay pass.
type DrainReport struct {
	Committed  int                     `json:"committed"`
	Failed     []domain.FailedMutation `json:"failed,omitempty"`
	Halted     bool                    `json:"halted"`
	HaltReason string                  `json:"haltReason,omitempty"`
	Remaining  int                     `json:"remaining"`
	Reconciled bool                    `json:"reconciled"`
}

// Flush replays the queue now. It is the manual retry after a halted replay.
func (c *Coordinator) Flush(ctx context.Context) (DrainReport, error) {
	if c.State() != domain.Online {
		return DrainReport{}, domain.ErrOffline
	}
	c.mu.Lock()
	c.halted = false
	c.mu.Unlock()
	return c.Drain(ctx)
}

// Drain replays queued entries oldest first, one at a time, until the queue
// is empty, connectivity drops, a transient failure halts it, or ctx ends
// between entries. Only one drain runs at a time.
func (c *Coordinator) Drain(ctx context.Context) (report DrainReport, err error) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	traceCtx := observability.WithTraceID(ctx, "drain-"+c.newID())
	defer func() {
		report.Remaining, _ = c.queue.QueueDepth()
		c.refreshDepth()
	}()

	for {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if c.State() != domain.Online {
			report.Halted = true
			report.HaltReason = domain.ErrOffline.Error()
			return report, nil
		}

		entry, err := c.queue.OldestEntry()
		if err != nil {
			return report, fmt.Errorf("read queue head: %w", err)
		}
		if entry == nil {
			break
		}

		outcome, err := c.replay(traceCtx, *entry)
		if err != nil {
			return report, err
		}
		switch outcome.kind {
		case replayCommitted:
			report.Committed++
		case replayConflict:
			report.Failed = append(report.Failed, outcome.failure)
		case replayHalted:
			report.Halted = true
			report.HaltReason = outcome.reason
			c.mu.Lock()
			c.halted = true
			c.lastError = outcome.reason
			c.mu.Unlock()
			return report, nil
		}
	}

	c.mu.Lock()
	c.halted = false
	c.lastError = ""
	c.mu.Unlock()

	if c.reconcile != nil {
		n := c.reconcile()
		observability.SyncReconciliations.Inc()
		c.log.WithField("views", n).Info("reconciled cached views")
	}
	report.Reconciled = true
	if err := c.queue.SetLastDrained(c.now()); err != nil {
		c.log.WithError(err).Warn("record drain time")
	}
	return report, nil
}

type replayKind int

const (
	replayCommitted replayKind = iota
	replayConflict
	replayHalted
)

type replayOutcome struct {
	kind    replayKind
	failure domain.FailedMutation
	reason  string
}

func (c *Coordinator) replay(ctx context.Context, entry domain.SyncQueueEntry) (replayOutcome, error) {
	log := c.log.WithFields(logrus.Fields{
		"customer_id": entry.CustomerID,
		"local_id":    entry.LocalID,
		"mutation":    string(entry.MutationType),
		"attempt":     entry.Attempt,
	})

	unlock := c.locks.Lock(entry.CustomerID)
	defer unlock()

	m, err := entry.Mutation()
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidMutation, err)
	} else {
		err = m.Validate()
	}
	if err == nil {
		_, err = c.commit(context.WithoutCancel(ctx), "replay", entry.LocalID, m)
		if err == nil {
			if derr := c.queue.DeleteEntry(entry.LocalID); derr != nil {
				return replayOutcome{}, fmt.Errorf("remove committed entry: %w", derr)
			}
			observability.SyncReplays.WithLabelValues("committed").Inc()
			log.Info("replayed")
			return replayOutcome{kind: replayCommitted}, nil
		}
	}

	if retry.Retryable(err) {
		if berr := c.queue.BumpAttempt(entry.LocalID); berr != nil {
			return replayOutcome{}, fmt.Errorf("bump attempt: %w", berr)
		}
		observability.SyncReplays.WithLabelValues("halted").Inc()
		log.WithError(err).Warn("replay halted, entry kept at head")
		return replayOutcome{kind: replayHalted, reason: err.Error()}, nil
	}

	conflict := &domain.SyncConflictError{Entry: entry, Cause: err}
	failure := domain.FailedMutation{
		LocalID:      entry.LocalID,
		CustomerID:   entry.CustomerID,
		MutationType: entry.MutationType,
		Payload:      entry.Payload,
		Reason:       reason(err),
		FailedAt:     c.now(),
	}
	if rerr := c.queue.RecordFailedMutation(failure); rerr != nil {
		return replayOutcome{}, fmt.Errorf("record failed mutation: %w", rerr)
	}
	if derr := c.queue.DeleteEntry(entry.LocalID); derr != nil && !errors.Is(derr, domain.ErrQueueEntryNotFound) {
		return replayOutcome{}, fmt.Errorf("remove rejected entry: %w", derr)
	}
	observability.SyncReplays.WithLabelValues("conflict").Inc()
	log.WithError(conflict).Warn("queued mutation rejected")
	c.notifier.QueuedMutationFailed(failure)
	return replayOutcome{kind: replayConflict, failure: failure}, nil
}

// reason is the user-facing explanation of a rejected mutation, preferring
// the server's own message.
func reason(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// ─── Inspection ─────────────────────────────────────────────────────────────

// Status is the coordinator's externally visible state.
type Status struct {
	Connectivity string     `json:"connectivity"`
	QueueDepth   int        `json:"queueDepth"`
	Halted       bool       `json:"halted"`
	LastError    string     `json:"lastError,omitempty"`
	LastDrained  *time.Time `json:"lastDrained,omitempty"`
}

// Status reports connectivity, backlog and the last drain.
func (c *Coordinator) Status() (Status, error) {
	depth, err := c.queue.QueueDepth()
	if err != nil {
		return Status{}, err
	}
	last, err := c.queue.LastDrained()
	if err != nil {
		return Status{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connectivity: c.state.String(),
		QueueDepth:   depth,
		Halted:       c.halted,
		LastError:    c.lastError,
		LastDrained:  last,
	}, nil
}

// Queue lists queued entries in replay order.
func (c *Coordinator) Queue() ([]domain.SyncQueueEntry, error) {
	return c.queue.ListEntries()
}

// Failures lists recent rejected replays, newest first.
func (c *Coordinator) Failures(limit int) ([]domain.FailedMutation, error) {
	return c.queue.ListFailedMutations(limit)
}

func (c *Coordinator) refreshDepth() {
	if n, err := c.queue.QueueDepth(); err == nil {
		observability.SyncQueueDepth.Set(float64(n))
	}
}
