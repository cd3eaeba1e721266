package usage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/tabaret/core"
	"pkt.systems/tabaret/schema"
)

func writeCredentials(t *testing.T, claudeDir, token, subscription string, expiresAt int64) {
	t.Helper()
	body := fmt.Sprintf(`{"claudeAiOauth":{"accessToken":%q,"subscriptionType":%q,"expiresAt":%d}}`,
		token, subscription, expiresAt)
	if err := os.WriteFile(filepath.Join(claudeDir, ".credentials.json"), []byte(body), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
}

func TestFetcherReadsWindows(t *testing.T) {
	claudeDir := t.TempDir()
	writeCredentials(t, claudeDir, "tok-123", "max", time.Now().Add(time.Hour).UnixMilli())

	var gotAuth, gotBeta string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBeta = r.Header.Get("anthropic-beta")
		fmt.Fprint(w, `{"five_hour":{"utilization":42.5,"resets_at":"2026-08-30T12:00:00Z"},"seven_day":{"utilization":10,"resets_at":"2026-09-02T00:00:00Z"}}`)
	}))
	defer srv.Close()

	info, err := NewFetcher(claudeDir).WithEndpoint(srv.URL).Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotBeta != "oauth-2025-04-20" {
		t.Fatalf("beta header = %q", gotBeta)
	}
	if info.Plan != "Max" {
		t.Fatalf("plan = %q", info.Plan)
	}
	if info.FiveHour == nil || info.FiveHour.Utilization != 42.5 {
		t.Fatalf("five hour window: %+v", info.FiveHour)
	}
	if info.FiveHour.ResetsAt.IsZero() {
		t.Fatalf("resets_at not parsed")
	}
	if info.SevenDay == nil || info.SevenDay.Utilization != 10 {
		t.Fatalf("seven day window: %+v", info.SevenDay)
	}
}

func TestFetcherMissingCredentials(t *testing.T) {
	_, err := NewFetcher(t.TempDir()).Usage(context.Background())
	if !errors.Is(err, schema.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestFetcherExpiredToken(t *testing.T) {
	claudeDir := t.TempDir()
	writeCredentials(t, claudeDir, "tok", "pro", time.Now().Add(-time.Hour).UnixMilli())
	_, err := NewFetcher(claudeDir).Usage(context.Background())
	if !errors.Is(err, schema.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestFetcherHTTPError(t *testing.T) {
	claudeDir := t.TempDir()
	writeCredentials(t, claudeDir, "tok", "pro", 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	info, err := NewFetcher(claudeDir).WithEndpoint(srv.URL).Usage(context.Background())
	if err == nil {
		t.Fatalf("expected error on 403")
	}
	if info.Plan != "Pro" {
		t.Fatalf("plan should survive a fetch failure: %q", info.Plan)
	}
}

func TestPlanFromSubscription(t *testing.T) {
	cases := map[string]string{
		"max":        "Max",
		"Pro":        "Pro",
		"team":       "Team",
		"enterprise": "Enterprise",
		"api":        "",
		"":           "",
	}
	for in, want := range cases {
		if got := planFromSubscription(in); got != want {
			t.Fatalf("planFromSubscription(%q) = %q, want %q", in, got, want)
		}
	}
}

type countingReader struct {
	calls atomic.Int64
	info  core.UsageInfo
	err   error
}

func (c *countingReader) Usage(context.Context) (core.UsageInfo, error) {
	c.calls.Add(1)
	return c.info, c.err
}

func TestCachedServesWithinTTL(t *testing.T) {
	inner := &countingReader{info: core.UsageInfo{Plan: "Max"}}
	cached := NewCached(inner, time.Hour)
	for i := 0; i < 5; i++ {
		info, err := cached.Usage(context.Background())
		if err != nil {
			t.Fatalf("Usage: %v", err)
		}
		if info.Plan != "Max" {
			t.Fatalf("plan = %q", info.Plan)
		}
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("inner called %d times, want 1", got)
	}
}

func TestCachedServesStaleOnError(t *testing.T) {
	inner := &countingReader{info: core.UsageInfo{Plan: "Pro"}}
	cached := NewCached(inner, time.Nanosecond)
	if _, err := cached.Usage(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	time.Sleep(time.Millisecond)

	inner.err = errors.New("endpoint down")
	info, err := cached.Usage(context.Background())
	if err != nil {
		t.Fatalf("stale value should suppress the error, got %v", err)
	}
	if info.Plan != "Pro" {
		t.Fatalf("plan = %q", info.Plan)
	}
}

func TestCachedErrorWithoutValue(t *testing.T) {
	inner := &countingReader{err: errors.New("endpoint down")}
	cached := NewCached(inner, time.Hour)
	if _, err := cached.Usage(context.Background()); err == nil {
		t.Fatalf("expected error when no cached value exists")
	}
}
