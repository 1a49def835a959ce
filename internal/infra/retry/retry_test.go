package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ledgerline/debtsync/internal/domain"
)

func testConfig() Config {
	return Config{MaxRetries: 2, BackoffUnit: time.Millisecond, MaxDelay: 30 * time.Millisecond}
}

// ─── Backoff ────────────────────────────────────────────────────────────────

func TestBackoff_Doubles(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.attempt), func(t *testing.T) {
			if got := Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
			}
		})
	}
}

// ─── Decide ─────────────────────────────────────────────────────────────────

func TestDecide(t *testing.T) {
	transient := &domain.APIError{Kind: domain.KindTransient, Status: 503}
	tests := []struct {
		name      string
		err       error
		attempt   int
		wantRetry bool
		wantDelay time.Duration
	}{
		{"transient first failure", transient, 0, true, 2 * time.Second},
		{"transient second failure", transient, 1, true, 4 * time.Second},
		{"transient exhausted", transient, 2, false, 0},
		{"transport error", errors.New("connection reset"), 0, true, 2 * time.Second},
		{"auth", &domain.APIError{Kind: domain.KindAuth, Status: 401}, 0, false, 0},
		{"validation", &domain.APIError{Kind: domain.KindValidation, Status: 422}, 0, false, 0},
		{"absence", &domain.APIError{Kind: domain.KindAbsence, Status: 404}, 0, false, 0},
		{"caller cancelled", context.Canceled, 0, false, 0},
		{"invalid mutation", fmt.Errorf("%w: bad amount", domain.ErrInvalidMutation), 0, false, 0},
		{"nil", nil, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.err, tt.attempt)
			if got.Retry != tt.wantRetry || got.Delay != tt.wantDelay {
				t.Errorf("Decide() = %+v, want retry=%v delay=%s", got, tt.wantRetry, tt.wantDelay)
			}
		})
	}
}

// ─── Do ─────────────────────────────────────────────────────────────────────

func TestDo_TransientRetriedTwice(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), testConfig(), func(context.Context) (int, error) {
		attempts++
		return 0, &domain.APIError{Kind: domain.KindTransient, Status: 503}
	})
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 + 2 retries)", attempts)
	}
	if domain.KindOf(err) != domain.KindTransient {
		t.Errorf("err = %v, want last transient failure", err)
	}
}

func TestDo_AuthNotRetried(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), testConfig(), func(context.Context) (string, error) {
		attempts++
		return "", &domain.APIError{Kind: domain.KindAuth, Status: 401}
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if domain.KindOf(err) != domain.KindAuth {
		t.Errorf("err = %v, want auth", err)
	}
}

func TestDo_EventualSuccess(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), testConfig(), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("dns lag")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Errorf("got %q after %d attempts", got, attempts)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	attempts := 0
	_, _ = Do(context.Background(), cfg, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("timeout")
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
