// Package usage fetches subscription rate-limit windows from the agent
// account's OAuth endpoint. Everything here degrades silently: a missing
// credentials file or an unreachable endpoint leaves the dashboard
// without a usage gauge, never without sessions.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/core"
	"pkt.systems/tabaret/schema"
)

const (
	defaultEndpoint = "https://api.anthropic.com/api/oauth/usage"
	oauthBetaHeader = "oauth-2025-04-20"
	requestTimeout  = 15 * time.Second
)

type credentialsFile struct {
	ClaudeAiOauth *oauthCredentials `json:"claudeAiOauth"`
}

type oauthCredentials struct {
	AccessToken      string `json:"accessToken"`
	SubscriptionType string `json:"subscriptionType"`
	ExpiresAt        int64  `json:"expiresAt"`
}

type usagePayload struct {
	FiveHour *usageWindow `json:"five_hour"`
	SevenDay *usageWindow `json:"seven_day"`
}

type usageWindow struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

// Fetcher reads OAuth usage windows, implementing core.UsageReader.
type Fetcher struct {
	claudeDir string
	endpoint  string
	client    *http.Client
}

func NewFetcher(claudeDir string) *Fetcher {
	return &Fetcher{
		claudeDir: claudeDir,
		endpoint:  defaultEndpoint,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// WithEndpoint overrides the usage endpoint, for tests.
func (f *Fetcher) WithEndpoint(endpoint string) *Fetcher {
	f.endpoint = endpoint
	return f
}

// Usage loads the credentials file and queries the usage endpoint.
func (f *Fetcher) Usage(ctx context.Context) (core.UsageInfo, error) {
	log := pslog.Ctx(ctx)
	creds, err := loadCredentials(filepath.Join(f.claudeDir, ".credentials.json"))
	if err != nil {
		log.Debug("usage fetch skipped", "err", err)
		return core.UsageInfo{}, err
	}
	info := core.UsageInfo{Plan: planFromSubscription(creds.SubscriptionType)}

	started := time.Now()
	payload, err := f.fetchUsage(ctx, creds.AccessToken)
	if err != nil {
		log.Warn("usage fetch failed", "err", err,
			"duration_ms", time.Since(started).Milliseconds())
		return info, err
	}
	info.FiveHour = toUsageWindow(payload.FiveHour)
	info.SevenDay = toUsageWindow(payload.SevenDay)
	log.Debug("usage fetch completed",
		"has_five_hour", info.FiveHour != nil,
		"has_seven_day", info.SevenDay != nil,
		"duration_ms", time.Since(started).Milliseconds())
	return info, nil
}

func loadCredentials(path string) (oauthCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return oauthCredentials{}, schema.ErrNoCredentials
		}
		return oauthCredentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	var parsed credentialsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return oauthCredentials{}, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	creds := parsed.ClaudeAiOauth
	if creds == nil || strings.TrimSpace(creds.AccessToken) == "" {
		return oauthCredentials{}, schema.ErrNoCredentials
	}
	if creds.ExpiresAt > 0 && time.UnixMilli(creds.ExpiresAt).Before(time.Now()) {
		return oauthCredentials{}, schema.ErrTokenExpired
	}
	return *creds, nil
}

func (f *Fetcher) fetchUsage(ctx context.Context, token string) (*usagePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("anthropic-beta", oauthBetaHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", f.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("request %s failed: %s; body=%s",
			f.endpoint, resp.Status, strings.TrimSpace(string(body)))
	}

	var payload usagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &payload, nil
}

func toUsageWindow(window *usageWindow) *core.UsageWindow {
	if window == nil {
		return nil
	}
	out := &core.UsageWindow{Utilization: window.Utilization}
	if ts, err := time.Parse(time.RFC3339, window.ResetsAt); err == nil {
		out.ResetsAt = ts
	}
	return out
}

func planFromSubscription(subscription string) string {
	switch strings.ToLower(strings.TrimSpace(subscription)) {
	case "max":
		return "Max"
	case "pro":
		return "Pro"
	case "team":
		return "Team"
	case "enterprise":
		return "Enterprise"
	default:
		return ""
	}
}

// Cached wraps a core.UsageReader with a TTL so the dashboard's refresh
// ticker does not hammer the endpoint. Errors are cached for the same
// TTL; the last good value keeps being served meanwhile.
type Cached struct {
	inner core.UsageReader
	ttl   time.Duration

	mu        sync.Mutex
	info      core.UsageInfo
	fetchedAt time.Time
	haveValue bool
}

func NewCached(inner core.UsageReader, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{inner: inner, ttl: ttl}
}

func (c *Cached) Usage(ctx context.Context) (core.UsageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.info, nil
	}
	info, err := c.inner.Usage(ctx)
	c.fetchedAt = time.Now()
	if err != nil {
		if c.haveValue {
			return c.info, nil
		}
		return core.UsageInfo{}, err
	}
	c.info = info
	c.haveValue = true
	return info, nil
}
