package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/debtsync/internal/domain"
)

// ─── Reads ──────────────────────────────────────────────────────────────────

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	v, err := s.debts.Summary(r.Context())
	s.respond(w, r, v, err)
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.CustomerFilter{
		Status: domain.CollectionStatus(q.Get("status")),
		Search: q.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	v, err := s.debts.Customers(r.Context(), filter)
	s.respond(w, r, v, err)
}

func (s *Server) handleCustomer(w http.ResponseWriter, r *http.Request) {
	v, err := s.debts.Customer(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, r, v, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	v, err := s.debts.History(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, r, v, err)
}

func (s *Server) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	v, err := s.debts.Outstanding(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, r, v, err)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD or RFC 3339")
		return
	}
	v, err := s.debts.Account(r.Context(), chi.URLParam(r, "id"), asOf)
	s.respond(w, r, v, err)
}

func (s *Server) handleAgingReport(w http.ResponseWriter, r *http.Request) {
	v, err := s.debts.AgingReport(r.Context(), r.URL.Query().Get("date"))
	s.respond(w, r, v, err)
}

func (s *Server) handleDailyPayments(w http.ResponseWriter, r *http.Request) {
	v, err := s.debts.DailyPayments(r.Context(), r.URL.Query().Get("date"))
	s.respond(w, r, v, err)
}

// respond writes v, or the mapped error. A refresh failure that still has a
// previous value serves the stale value.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil && !hasValue(v) {
		s.writeDomainError(w, r, err)
		return
	}
	if err != nil {
		w.Header().Set("X-Debtsync-Stale", "true")
	}
	writeJSON(w, http.StatusOK, v)
}

func hasValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case *domain.DebtSummary:
		return t != nil
	case *domain.CustomerPage:
		return t != nil
	case *domain.CustomerDetail:
		return t != nil
	case *domain.Outstanding:
		return t != nil
	case *domain.AgingReport:
		return t != nil
	case *domain.DailyPayments:
		return t != nil
	case []domain.Transaction:
		return len(t) > 0
	default:
		return false
	}
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	return time.Parse(time.RFC3339, s)
}

// ─── Mutations ──────────────────────────────────────────────────────────────

type mutationRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func decodeMutation(r *http.Request) (mutationRequest, error) {
	var req mutationRequest
	if r.ContentLength == 0 {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

type amountFunc func(ctx context.Context, customerID string, amount decimal.Decimal, note string) (domain.Receipt, error)

func (s *Server) handleAmountMutation(fn amountFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeMutation(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		receipt, err := fn(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Note)
		s.writeReceipt(w, r, receipt, err)
	}
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.debts.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	s.writeReceipt(w, r, receipt, err)
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeMutation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	receipt, err := s.debts.AddReminder(r.Context(), chi.URLParam(r, "id"), req.Note)
	s.writeReceipt(w, r, receipt, err)
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.debts.Suspend(r.Context(), chi.URLParam(r, "id"))
	s.writeReceipt(w, r, receipt, err)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.debts.Reactivate(r.Context(), chi.URLParam(r, "id"))
	s.writeReceipt(w, r, receipt, err)
}

// writeReceipt answers 200 for a committed mutation and 202 for a queued one.
func (s *Server) writeReceipt(w http.ResponseWriter, r *http.Request, receipt domain.Receipt, err error) {
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == domain.KindAbsence {
			writeError(w, http.StatusNotFound, apiErr.Error())
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if receipt.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, receipt)
}
