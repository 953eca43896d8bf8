package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestRetryPolicy_SucceedsAfterRetries(t *testing.T) {
	rec := &recordingSleep{}
	policy := &RetryPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: time.Minute, Sleep: rec.sleep}

	calls := 0
	outcome, err := policy.Do(context.Background(), "search", func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return &FetchError{Endpoint: "search", StatusCode: 503}
		}
		return nil
	})

	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s: %v", outcome, err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{30 * time.Second, time.Minute, time.Minute}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("sleep %d: got %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	rec := &recordingSleep{}
	policy := &RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: rec.sleep}

	calls := 0
	outcome, err := policy.Do(context.Background(), "search", func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})

	if outcome != OutcomeRetryable || err == nil {
		t.Fatalf("expected exhausted retryable outcome, got %s: %v", outcome, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 sleeps between 3 attempts, got %d", len(rec.delays))
	}
}

func TestRetryPolicy_FatalStopsImmediately(t *testing.T) {
	rec := &recordingSleep{}
	policy := &RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Sleep: rec.sleep}

	calls := 0
	outcome, err := policy.Do(context.Background(), "search", func(ctx context.Context) error {
		calls++
		return &FetchError{Endpoint: "search", StatusCode: 403, Body: "forbidden"}
	})

	if outcome != OutcomeFatal || err == nil {
		t.Fatalf("expected fatal outcome, got %s: %v", outcome, err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("fatal error must not retry: %d calls, %d sleeps", calls, len(rec.delays))
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 403 {
		t.Fatalf("expected wrapped FetchError, got %v", err)
	}
}

func TestRetryPolicy_UnlimitedRetriesClientErrors(t *testing.T) {
	body := loadFixture(t, "search_page.json")
	blocked := 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if blocked > 0 {
			blocked--
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	client := NewSearchClient(testSearchConfig(srv.URL), srv.Client())
	rec := &recordingSleep{}
	policy := &RetryPolicy{MaxAttempts: 0, BaseDelay: 30 * time.Second, Sleep: rec.sleep}

	var page *SearchPage
	outcome, err := policy.Do(context.Background(), "page 1", func(ctx context.Context) error {
		p, err := client.FetchPage(ctx, 1)
		page = p
		return err
	})

	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("expected success after 403s, got %s: %v", outcome, err)
	}
	if page == nil || len(page.URLs) == 0 {
		t.Fatalf("expected results from the final attempt")
	}
	if len(rec.delays) != 3 {
		t.Fatalf("expected 3 back-offs, got %v", rec.delays)
	}
}

func TestRetryPolicy_UnlimitedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := &RetryPolicy{
		MaxAttempts: 0,
		BaseDelay:   30 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if calls >= 10 {
				cancel()
			}
			return ctx.Err()
		},
	}

	outcome, err := policy.Do(ctx, "search", func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})

	if outcome != OutcomeFatal || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %s: %v", outcome, err)
	}
	if calls != 10 {
		t.Fatalf("expected 10 calls before cancel, got %d", calls)
	}
}
