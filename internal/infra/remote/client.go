// Package remote is the HTTP client for the debt-ledger REST API, the single
// source of truth for committed state.
//
// Every failure is classified here, once, into a domain.APIError. Code above
// this package switches on the error kind and never looks at status codes
// or payloads.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/logging"
	"github.com/ledgerline/debtsync/internal/infra/observability"
	"github.com/ledgerline/debtsync/internal/infra/retry"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20

	healthPath         = "/health"
	summaryPath        = "/debts/summary"
	customersPath      = "/debts/customers"
	outstandingPathFmt = "/customers/%s/outstanding"
	agingPath          = "/reports/aging"
	dailyPaymentsPath  = "/reports/daily-payments"
)

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   retry.Config
}

// Client handles communication with the remote debt API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retry      retry.Config
	log        *logrus.Entry
}

// Ensure Client implements the domain boundaries.
var (
	_ domain.LedgerReader = (*Client)(nil)
	_ domain.Committer    = (*Client)(nil)
)

// New creates a client. A nil logger discards output.
func New(cfg Config, logger logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		retry:      cfg.Retry,
		log:        logging.Component(logger, "remote"),
	}
}

// ErrorResponse is the error body the API returns on non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Ping probes GET /health once, without retries. It feeds the connectivity
// monitor, so it must fail fast.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, healthPath, nil, nil, "")
	return err
}

// Summary fetches the aggregate dashboard metrics.
func (c *Client) Summary(ctx context.Context) (*domain.DebtSummary, error) {
	return getJSON[domain.DebtSummary](ctx, c, "summary", summaryPath, nil)
}

// Outstanding fetches a customer's outstanding balance. A 404 means the
// customer has no debt record and resolves to nil, nil without retrying.
func (c *Client) Outstanding(ctx context.Context, customerID string) (*domain.Outstanding, error) {
	out, err := getJSON[domain.Outstanding](ctx, c, "outstanding", fmt.Sprintf(outstandingPathFmt, url.PathEscape(customerID)), nil)
	if domain.IsAbsence(err) {
		return nil, nil
	}
	return out, err
}

// ListCustomers fetches one page of per-customer summaries.
func (c *Client) ListCustomers(ctx context.Context, f domain.CustomerFilter) (*domain.CustomerPage, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", fmt.Sprint(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("pageSize", fmt.Sprint(f.PageSize))
	}
	return getJSON[domain.CustomerPage](ctx, c, "customers", customersPath, q)
}

// CustomerDetail fetches one customer's debt detail; nil, nil on 404.
func (c *Client) CustomerDetail(ctx context.Context, customerID string) (*domain.CustomerDetail, error) {
	out, err := getJSON[domain.CustomerDetail](ctx, c, "customer", customerPath(customerID), nil)
	if domain.IsAbsence(err) {
		return nil, nil
	}
	return out, err
}

// History fetches one customer's transactions; empty on 404.
func (c *Client) History(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	out, err := getJSON[[]domain.Transaction](ctx, c, "history", customerPath(customerID)+"/history", nil)
	if domain.IsAbsence(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, 0, len(*out))
	for _, tx := range *out {
		if !tx.Kind.Valid() {
			c.log.WithFields(logrus.Fields{"customer": customerID, "transaction": tx.ID, "kind": tx.Kind}).Warn("skipping transaction of unknown kind")
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// AgingReport fetches the per-customer aging as of date (YYYY-MM-DD).
func (c *Client) AgingReport(ctx context.Context, date string) (*domain.AgingReport, error) {
	return getJSON[domain.AgingReport](ctx, c, "aging", agingPath, url.Values{"date": {date}})
}

// DailyPayments fetches the payments received on date (YYYY-MM-DD).
func (c *Client) DailyPayments(ctx context.Context, date string) (*domain.DailyPayments, error) {
	return getJSON[domain.DailyPayments](ctx, c, "daily-payments", dailyPaymentsPath, url.Values{"date": {date}})
}

// ─── Mutations ──────────────────────────────────────────────────────────────

type mutationRequest struct {
	Amount      *string    `json:"amount,omitempty"`
	Description string     `json:"description,omitempty"`
	Note        string     `json:"note,omitempty"`
	Status      string     `json:"status,omitempty"`
	OccurredAt  *time.Time `json:"occurredAt,omitempty"`
}

// Commit sends m and returns what the server committed. localID is sent as
// the Idempotency-Key so a replay after an ambiguous failure is safe.
func (c *Client) Commit(ctx context.Context, localID string, m domain.Mutation) (*domain.CommitResult, error) {
	path, req, err := route(m)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}

	endpoint := "commit-" + strings.ToLower(string(m.Type))
	raw, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, endpoint, http.MethodPost, path, nil, body, localID)
	})
	if err != nil {
		return nil, err
	}
	return decodeCommit(raw)
}

func route(m domain.Mutation) (string, mutationRequest, error) {
	base := customerPath(m.CustomerID)
	req := mutationRequest{OccurredAt: m.OccurredAt}
	amount := m.Amount.String()

	switch m.Type {
	case domain.MutationCharge:
		req.Amount, req.Description = &amount, m.Note
		return base + "/charge", req, nil
	case domain.MutationPayment:
		req.Amount, req.Description = &amount, m.Note
		return base + "/payment", req, nil
	case domain.MutationAdjustment:
		req.Amount, req.Description = &amount, m.Note
		return base + "/adjustment", req, nil
	case domain.MutationMarkPaid:
		return base + "/mark-paid", req, nil
	case domain.MutationReminderNote:
		req.Note = m.Note
		return base + "/reminders", req, nil
	case domain.MutationSuspend:
		req.Status = string(domain.CollectionSuspended)
		return base + "/collection-status", req, nil
	case domain.MutationReactivate:
		req.Status = string(domain.CollectionActive)
		return base + "/collection-status", req, nil
	}
	return "", req, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidMutation, m.Type)
}

// decodeCommit accepts {transaction, account}, a bare transaction, a bare
// account snapshot, or an empty body.
func decodeCommit(raw []byte) (*domain.CommitResult, error) {
	res := &domain.CommitResult{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return res, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteMalformed, err)
	}
	_, hasTx := probe["transaction"]
	_, hasAccount := probe["account"]
	_, hasKind := probe["kind"]
	_, hasOwed := probe["totalOwed"]

	var err error
	switch {
	case hasTx || hasAccount:
		err = json.Unmarshal(raw, res)
	case hasKind:
		res.Transaction = &domain.Transaction{}
		err = json.Unmarshal(raw, res.Transaction)
	case hasOwed:
		res.Account = &domain.Outstanding{}
		err = json.Unmarshal(raw, res.Account)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteMalformed, err)
	}
	return res, nil
}

// ─── Transport ──────────────────────────────────────────────────────────────

func customerPath(customerID string) string {
	return customersPath + "/" + url.PathEscape(customerID)
}

func getJSON[T any](ctx context.Context, c *Client, endpoint, path string, query url.Values) (*T, error) {
	raw, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, endpoint, http.MethodGet, path, query, nil, "")
	})
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrRemoteMalformed, endpoint, err)
	}
	return &out, nil
}

// do performs one request and classifies any failure into a *domain.APIError.
// Caller cancellation is returned as ctx.Err().
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body []byte, idempotencyKey string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observability.RemoteLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, c.fail(endpoint, &domain.APIError{Kind: domain.KindTransient, Err: err})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(endpoint, &domain.APIError{Kind: domain.KindTransient, Status: resp.StatusCode, Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &domain.APIError{Kind: domain.ClassifyStatus(resp.StatusCode), Status: resp.StatusCode}
		var errResp ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil {
			apiErr.Message = errResp.Message
			if apiErr.Message == "" {
				apiErr.Message = errResp.Error
			}
		} else if len(raw) > 0 && len(raw) < 512 {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, c.fail(endpoint, apiErr)
	}

	c.log.WithFields(logrus.Fields{"endpoint": endpoint, "status": resp.StatusCode}).Debug("request ok")
	return raw, nil
}

func (c *Client) fail(endpoint string, err *domain.APIError) error {
	observability.RemoteErrors.WithLabelValues(err.Kind.String()).Inc()
	if err.Kind != domain.KindAbsence {
		c.log.WithFields(logrus.Fields{"endpoint": endpoint, "kind": err.Kind.String(), "status": err.Status}).Warn(err.Error())
	}
	return err
}
