// Package connectivity tracks whether the remote API is reachable.
//
// The Monitor is a two-state machine (OFFLINE, ONLINE) that starts OFFLINE.
// Host events and the probe loop both feed Set; the single subscriber is
// told about real transitions only, in order.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/logging"
	"github.com/ledgerline/debtsync/internal/infra/observability"
)

// Prober checks reachability once.
type Prober interface {
	Ping(ctx context.Context) error
}

// Listener receives state transitions.
type Listener func(state domain.Connectivity)

// Monitor is the connectivity state machine.
type Monitor struct {
	mu       sync.Mutex
	state    domain.Connectivity
	listener Listener
	changed  time.Time

	prober   Prober
	interval time.Duration
	timeout  time.Duration
	log      *logrus.Entry

	notifyMu sync.Mutex // keeps listener calls in transition order
}

// Config configures the probe loop.
type Config struct {
	Interval time.Duration // default 15s
	Timeout  time.Duration // per probe, default 5s
}

// NewMonitor creates a monitor in the OFFLINE state. prober may be nil when
// the host drives Set itself.
func NewMonitor(prober Prober, cfg Config, logger logging.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	observability.SyncConnectivity.Set(0)
	return &Monitor{
		state:    domain.Offline,
		prober:   prober,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		log:      logging.Component(logger, "connectivity"),
	}
}

// Subscribe installs the single listener, replacing any previous one.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// State returns the current state.
func (m *Monitor) State() domain.Connectivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Since returns when the current state was entered (zero before any change).
func (m *Monitor) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// Set moves the machine to state. It reports whether this was a transition;
// the listener runs synchronously only for transitions.
func (m *Monitor) Set(state domain.Connectivity) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return false
	}
	m.state = state
	m.changed = time.Now()
	l := m.listener
	m.mu.Unlock()

	if state == domain.Online {
		observability.SyncConnectivity.Set(1)
	} else {
		observability.SyncConnectivity.Set(0)
	}
	m.log.WithField("state", state.String()).Info("connectivity changed")

	if l != nil {
		l(state)
	}
	return true
}

// Probe runs the prober once and feeds the result to Set. Any HTTP answer
// other than a transient one proves the remote is reachable: a 401 or 403
// is logged as an auth failure and still counts as ONLINE, so writes reach
// the server and fail there instead of queueing forever.
func (m *Monitor) Probe(ctx context.Context) domain.Connectivity {
	if m.prober == nil {
		return m.State()
	}
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	state := domain.Online
	if err := m.prober.Ping(pctx); err != nil {
		if ctx.Err() != nil {
			return m.State()
		}
		state = probeState(err)
		switch {
		case state == domain.Offline:
			m.log.WithError(err).Debug("probe failed")
		case domain.KindOf(err) == domain.KindAuth:
			m.log.WithError(err).Error("remote rejected credentials")
		default:
			m.log.WithError(err).Debug("probe answered with an error status")
		}
	}
	m.Set(state)
	return state
}

// probeState maps a failed probe to a state. Only transient failures and
// errors that never produced a response mean OFFLINE.
func probeState(err error) domain.Connectivity {
	switch domain.KindOf(err) {
	case domain.KindAbsence, domain.KindAuth, domain.KindValidation:
		return domain.Online
	default:
		return domain.Offline
	}
}

// Run probes immediately and then on every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil {
		<-ctx.Done()
		return
	}
	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
