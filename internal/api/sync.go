package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ledgerline/debtsync/internal/domain"
)

// ─── Sync and inspection ────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sync.Status()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sync":        st,
		"cachedViews": s.cache.Len(),
		"spans":       s.tracer.SpanCount(),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sync.Queue()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.SyncQueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	failures, err := s.sync.Failures(limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if failures == nil {
		failures = []domain.FailedMutation{}
	}
	writeJSON(w, http.StatusOK, failures)
}

// handleNotifications hands pending "queued action failed" notices to the
// host UI once each.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	pending := []domain.FailedMutation{}
	if s.notifier != nil {
		if n := s.notifier.Drain(); n != nil {
			pending = n
		}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	report, err := s.sync.Flush(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type connectivityRequest struct {
	State string `json:"state"`
}

// handleConnectivity lets the host report network changes it observes.
func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var state domain.Connectivity
	switch strings.ToLower(req.State) {
	case "online":
		state = domain.Online
	case "offline":
		state = domain.Offline
	default:
		writeError(w, http.StatusBadRequest, `state must be "online" or "offline"`)
		return
	}
	changed := s.connectivity.Set(state)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":   state.String(),
		"changed": changed,
	})
}

func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, s.tracer.Spans(limit))
}

func (s *Server) handleCacheSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Snapshot())
}
