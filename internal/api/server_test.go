package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/debtsync/internal/app/debts"
	"github.com/ledgerline/debtsync/internal/app/syncer"
	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/cache"
	"github.com/ledgerline/debtsync/internal/infra/connectivity"
	"github.com/ledgerline/debtsync/internal/infra/logging"
	"github.com/ledgerline/debtsync/internal/infra/observability"
	"github.com/ledgerline/debtsync/internal/infra/remote"
	"github.com/ledgerline/debtsync/internal/infra/retry"
	"github.com/ledgerline/debtsync/internal/infra/sqlite"
)

// ─── Fake remote ────────────────────────────────────────────────────────────

type fakeRemote struct {
	summaryStatus atomic.Int32
	commitStatus  atomic.Int32
	commits       atomic.Int32
}

func (f *fakeRemote) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/debts/summary", func(w http.ResponseWriter, r *http.Request) {
		if code := f.summaryStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			w.Write([]byte(`{"error":"denied","message":"token expired"}`))
			return
		}
		w.Write([]byte(`{"totalOutstanding":"120.50","activeDebtors":2,"weeklyPayments":"30"}`))
	})
	r.Get("/customers/{id}/outstanding", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "c1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"customerId":"c1","totalOwed":"45.00","collectionStatus":"ACTIVE"}`))
	})
	r.Get("/debts/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "c1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"customerId":"c1","name":"Ana","collectionStatus":"ACTIVE"}`))
	})
	r.Get("/debts/customers/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		old := time.Now().AddDate(0, 0, -100).UTC().Format(time.RFC3339)
		w.Write([]byte(`[{"id":"t1","customerId":"c1","kind":"CHARGE","amount":"40","occurredAt":"` + old + `","createdAt":"` + old + `"}]`))
	})
	r.Post("/debts/customers/{id}/charge", func(w http.ResponseWriter, r *http.Request) {
		f.commits.Add(1)
		if code := f.commitStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			w.Write([]byte(`{"error":"invalid","message":"amount exceeds credit limit"}`))
			return
		}
		w.Write([]byte(`{"transaction":{"id":"srv-1","customerId":"c1","kind":"CHARGE","amount":"10"}}`))
	})
	return r
}

type testStack struct {
	handler http.Handler
	remote  *fakeRemote
	coord   *syncer.Coordinator
	cache   *cache.Cache
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	fr := &fakeRemote{}
	srv := httptest.NewServer(fr.router())
	t.Cleanup(srv.Close)

	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	client := remote.New(remote.Config{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxRetries: 2, BackoffUnit: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, logger)
	c := cache.New(cache.DefaultOptions(), cache.Hooks{})
	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	notifier := syncer.NewLogNotifier(logger)
	coord := syncer.New(syncer.Deps{
		Queue:     db,
		Committer: client,
		Views:     c,
		Reconcile: c.InvalidateAll,
		Notifier:  notifier,
		Tracer:    tracer,
		Logger:    logger,
	})
	monitor := connectivity.NewMonitor(client, connectivity.Config{}, logger)
	monitor.Subscribe(coord.SetConnectivity)

	s := NewServer(Deps{
		Debts:        debts.NewService(client, c, coord, nil),
		Sync:         coord,
		Connectivity: monitor,
		Cache:        c,
		Tracer:       tracer,
		Notifier:     notifier,
		Logger:       logger,
	})
	s.EnableMetrics()

	st := &testStack{handler: s.Handler(), remote: fr, coord: coord, cache: c}
	t.Cleanup(func() {
		coord.Wait()
		c.Wait()
	})
	return st
}

func (st *testStack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	st.handler.ServeHTTP(w, req)
	return w
}

func (st *testStack) goOnline(t *testing.T) {
	t.Helper()
	if w := st.do(t, http.MethodPost, "/api/sync/connectivity", `{"state":"online"}`); w.Code != http.StatusOK {
		t.Fatalf("connectivity: %d %s", w.Code, w.Body)
	}
	st.coord.Wait()
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestServer_Health(t *testing.T) {
	st := newTestStack(t)
	if w := st.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestServer_Outstanding(t *testing.T) {
	st := newTestStack(t)

	w := st.do(t, http.MethodGet, "/api/customers/c1/outstanding", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got domain.Outstanding
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalOwed.String() != "45" {
		t.Errorf("totalOwed = %s, want 45", got.TotalOwed)
	}
}

func TestServer_AbsenceRendersNull(t *testing.T) {
	st := newTestStack(t)

	w := st.do(t, http.MethodGet, "/api/customers/ghost/outstanding", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "null" {
		t.Errorf("body = %q, want null", body)
	}
}

func TestServer_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		remote int
		want   int
	}{
		{"auth", http.StatusUnauthorized, http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden, http.StatusForbidden},
		{"transient", http.StatusServiceUnavailable, http.StatusServiceUnavailable},
		{"validation", http.StatusBadRequest, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newTestStack(t)
			st.remote.summaryStatus.Store(int32(tc.remote))

			w := st.do(t, http.MethodGet, "/api/summary", "")
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d (%s)", tc.want, w.Code, w.Body)
			}
		})
	}
}

func TestServer_OfflineChargeQueuesThenReplays(t *testing.T) {
	st := newTestStack(t)

	w := st.do(t, http.MethodPost, "/api/customers/c1/charge", `{"amount":"10","note":"bread"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", w.Code, w.Body)
	}
	var receipt domain.Receipt
	json.Unmarshal(w.Body.Bytes(), &receipt)
	if !receipt.Queued || receipt.LocalID == "" {
		t.Errorf("receipt = %+v", receipt)
	}
	if st.remote.commits.Load() != 0 {
		t.Fatal("queued charge reached the server while offline")
	}

	st.goOnline(t)

	if st.remote.commits.Load() != 1 {
		t.Errorf("commits = %d, want 1 after replay", st.remote.commits.Load())
	}
	w = st.do(t, http.MethodGet, "/api/sync/queue", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("queue = %s, want empty", w.Body)
	}
}

func TestServer_OnlineChargeRejected(t *testing.T) {
	st := newTestStack(t)
	st.goOnline(t)
	st.remote.commitStatus.Store(http.StatusUnprocessableEntity)

	w := st.do(t, http.MethodPost, "/api/customers/c1/charge", `{"amount":"10"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "amount exceeds credit limit") {
		t.Errorf("body = %s, want server message", w.Body)
	}
	if st.remote.commits.Load() != 1 {
		t.Errorf("commits = %d, validation failures must not retry", st.remote.commits.Load())
	}
}

func TestServer_ReplayConflictNotifies(t *testing.T) {
	st := newTestStack(t)
	st.remote.commitStatus.Store(http.StatusConflict)

	st.do(t, http.MethodPost, "/api/customers/c1/charge", `{"amount":"10"}`)
	st.goOnline(t)

	w := st.do(t, http.MethodGet, "/api/sync/failures", "")
	var failures []domain.FailedMutation
	json.Unmarshal(w.Body.Bytes(), &failures)
	if len(failures) != 1 || failures[0].Reason != "amount exceeds credit limit" {
		t.Fatalf("failures = %s", w.Body)
	}

	w = st.do(t, http.MethodGet, "/api/sync/notifications", "")
	var notes []domain.FailedMutation
	json.Unmarshal(w.Body.Bytes(), &notes)
	if len(notes) != 1 {
		t.Errorf("notifications = %s, want one", w.Body)
	}
	w = st.do(t, http.MethodGet, "/api/sync/notifications", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("notifications should be delivered once, got %s", w.Body)
	}
}

func TestServer_InvalidMutation(t *testing.T) {
	st := newTestStack(t)
	w := st.do(t, http.MethodPost, "/api/customers/c1/payment", `{"amount":"-3"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
	w = st.do(t, http.MethodPost, "/api/customers/c1/payment", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestServer_FlushOffline(t *testing.T) {
	st := newTestStack(t)
	if w := st.do(t, http.MethodPost, "/api/sync/flush", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestServer_ConnectivityValidation(t *testing.T) {
	st := newTestStack(t)
	if w := st.do(t, http.MethodPost, "/api/sync/connectivity", `{"state":"maybe"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestServer_Account(t *testing.T) {
	st := newTestStack(t)

	w := st.do(t, http.MethodGet, "/api/customers/c1/account", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body)
	}
	var view struct {
		Balance          string         `json:"balance"`
		CollectionStatus string         `json:"collectionStatus"`
		BucketCounts     map[string]int `json:"bucketCounts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Balance != "40" || view.CollectionStatus != "OVERDUE" {
		t.Errorf("view = %+v", view)
	}
	if view.BucketCounts[string(domain.BucketOver90)] != 1 {
		t.Errorf("bucketCounts = %v", view.BucketCounts)
	}

	if w := st.do(t, http.MethodGet, "/api/customers/c1/account?as_of=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad as_of: expected 400, got %d", w.Code)
	}
}

func TestServer_StatusAndDebug(t *testing.T) {
	st := newTestStack(t)
	st.goOnline(t)
	st.do(t, http.MethodPost, "/api/customers/c1/charge", `{"amount":"10"}`)

	w := st.do(t, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"connectivity":"online"`) {
		t.Errorf("status = %d %s", w.Code, w.Body)
	}
	w = st.do(t, http.MethodGet, "/api/debug/spans", "")
	if !strings.Contains(w.Body.String(), `"commit"`) {
		t.Errorf("spans = %s, want the commit span", w.Body)
	}
	if w := st.do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
}
