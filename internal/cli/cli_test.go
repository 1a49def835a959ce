package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1234.5", "USD", "$1,234.50"},
		{"0", "USD", "$0.00"},
		{"-12.345", "USD", "-$12.35"},
		{"500", "JPY", "¥500"},
		{"10", "ZZZ", "10.00 ZZZ"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			got := formatMoney(decimal.RequireFromString(tt.amount), tt.currency)
			if got != tt.want {
				t.Errorf("formatMoney(%s, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "status", "sync", "queue", "failures", "balance", "account", "charge", "pay", "adjust", "mark-paid", "aging"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

// ─── End to end against a fake ledger ───────────────────────────────────────

type ledgerStub struct {
	healthy atomic.Bool
	commits atomic.Int32
}

func (l *ledgerStub) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if !l.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/customers/{id}/outstanding", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "c1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"customerId":"c1","totalOwed":"45.5","collectionStatus":"ACTIVE"}`))
	})
	r.Post("/debts/customers/{id}/charge", func(w http.ResponseWriter, r *http.Request) {
		l.commits.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func setupCLI(t *testing.T) *ledgerStub {
	t.Helper()
	stub := &ledgerStub{}
	srv := httptest.NewServer(stub.router())
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("DEBTSYNC_HOME", home)
	cfg := `
[remote]
base_url = "` + srv.URL + `"

[retry]
backoff_unit = "1ms"
max_delay = "5ms"

[log]
level = "error"
`
	path := filepath.Join(home, "config.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { configPath = "" })
	return stub
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("debtsync %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestCLI_Balance(t *testing.T) {
	stub := setupCLI(t)
	stub.healthy.Store(true)

	if out := run(t, "balance", "c1"); !strings.Contains(out, "c1 owes $45.50 (ACTIVE)") {
		t.Errorf("balance output = %q", out)
	}
	if out := run(t, "balance", "c2"); !strings.Contains(out, "no debt record") {
		t.Errorf("balance output = %q", out)
	}
}

func TestCLI_OfflineChargeThenSync(t *testing.T) {
	stub := setupCLI(t)

	out := run(t, "charge", "c1", "12.50")
	if !strings.Contains(out, "Queued offline") {
		t.Fatalf("charge output = %q", out)
	}
	if out := run(t, "queue"); !strings.Contains(out, "CHARGE") {
		t.Errorf("queue output = %q", out)
	}
	if stub.commits.Load() != 0 {
		t.Fatal("charge reached the ledger while offline")
	}

	stub.healthy.Store(true)
	if out := run(t, "sync"); !strings.Contains(out, "Processed 1 of 1") {
		t.Errorf("sync output = %q", out)
	}
	if stub.commits.Load() != 1 {
		t.Errorf("commits = %d, want 1", stub.commits.Load())
	}
	if out := run(t, "status"); !strings.Contains(out, "Queued:       0") {
		t.Errorf("status output = %q", out)
	}
}
