package syncer

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/logging"
)

// LogNotifier tells the user about rejected queued mutations through the
// log and keeps the most recent ones for the local API to surface.
type LogNotifier struct {
	log *logrus.Entry

	mu     sync.Mutex
	recent []domain.FailedMutation
	max    int
}

// NewLogNotifier creates a notifier keeping the last 100 failures.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{log: logging.Component(logger, "notify"), max: 100}
}

// QueuedMutationFailed implements domain.Notifier.
func (n *LogNotifier) QueuedMutationFailed(f domain.FailedMutation) {
	n.log.WithFields(logrus.Fields{
		"customer_id": f.CustomerID,
		"local_id":    f.LocalID,
		"mutation":    string(f.MutationType),
	}).Errorf("queued action failed: %s", f.Reason)

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.recent) >= n.max {
		n.recent = n.recent[1:]
	}
	n.recent = append(n.recent, f)
}

// Drain returns and clears the pending notifications, oldest first.
func (n *LogNotifier) Drain() []domain.FailedMutation {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.recent
	n.recent = nil
	return out
}
