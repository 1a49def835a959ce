// Package api provides the local HTTP server a host UI talks to.
// Every route reads through the debts service or inspects the sync
// coordinator; nothing here talks to the remote API directly.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ledgerline/debtsync/internal/app/debts"
	"github.com/ledgerline/debtsync/internal/app/syncer"
	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
	"github.com/ledgerline/debtsync/internal/infra/logging"
	"github.com/ledgerline/debtsync/internal/infra/observability"
)

// ConnectivitySetter accepts host-reported connectivity changes.
// *connectivity.Monitor implements it.
type ConnectivitySetter interface {
	Set(state domain.Connectivity) bool
}

// Server is the debtsync local HTTP API.
type Server struct {
	debts          *debts.Service
	sync           *syncer.Coordinator
	connectivity   ConnectivitySetter
	cache          *cache.Cache
	tracer         *observability.Tracer
	notifier       *syncer.LogNotifier
	log            *logrus.Entry
	metricsEnabled bool
	requestTimeout time.Duration
}

// Deps are the collaborators the server exposes.
type Deps struct {
	Debts        *debts.Service
	Sync         *syncer.Coordinator
	Connectivity ConnectivitySetter
	Cache        *cache.Cache
	Tracer       *observability.Tracer
	Notifier     *syncer.LogNotifier // optional
	Logger       logging.Logger
}

// NewServer creates a new API server.
func NewServer(d Deps) *Server {
	return &Server{
		debts:          d.Debts,
		sync:           d.Sync,
		connectivity:   d.Connectivity,
		cache:          d.Cache,
		tracer:         d.Tracer,
		notifier:       d.Notifier,
		log:            logging.Component(d.Logger, "api"),
		requestTimeout: time.Minute,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/summary", s.handleSummary)

		r.Get("/customers", s.handleCustomers)
		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/", s.handleCustomer)
			r.Get("/history", s.handleHistory)
			r.Get("/account", s.handleAccount)
			r.Get("/outstanding", s.handleOutstanding)

			r.Post("/charge", s.handleAmountMutation(s.debts.Charge))
			r.Post("/payment", s.handleAmountMutation(s.debts.Pay))
			r.Post("/adjustment", s.handleAmountMutation(s.debts.Adjust))
			r.Post("/mark-paid", s.handleMarkPaid)
			r.Post("/reminders", s.handleReminder)
			r.Post("/suspend", s.handleSuspend)
			r.Post("/reactivate", s.handleReactivate)
		})

		r.Get("/reports/aging", s.handleAgingReport)
		r.Get("/reports/daily-payments", s.handleDailyPayments)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/queue", s.handleQueue)
			r.Get("/failures", s.handleFailures)
			r.Get("/notifications", s.handleNotifications)
			r.Post("/flush", s.handleFlush)
			r.Post("/connectivity", s.handleConnectivity)
		})

		r.Get("/debug/spans", s.handleSpans)
		r.Get("/debug/cache", s.handleCacheSnapshot)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Error mapping ──────────────────────────────────────────────────────────

// writeDomainError maps a classified failure to an HTTP status. Absence is
// not an error for callers: it renders as an empty (null) view.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *domain.APIError
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Kind {
		case domain.KindAbsence:
			writeJSON(w, http.StatusOK, nil)
			return
		case domain.KindAuth:
			status := http.StatusUnauthorized
			if apiErr.Status == http.StatusForbidden {
				status = http.StatusForbidden
			}
			writeError(w, status, apiErr.Error())
		case domain.KindValidation:
			writeError(w, http.StatusUnprocessableEntity, apiErr.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, apiErr.Error())
		}
	case errors.Is(err, domain.ErrInvalidMutation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrAlreadySuspended), errors.Is(err, domain.ErrNotSuspended):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    http.StatusText(status),
		},
	})
}

// corsMiddleware adds CORS headers for a local host UI.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
