package core

import (
	"context"
	"time"
)

// UsageWindow captures account usage for a single rate-limit window.
type UsageWindow struct {
	Utilization float64
	ResetsAt    time.Time
}

// UsageInfo captures subscription usage for the account backing the agent.
type UsageInfo struct {
	Plan     string
	FiveHour *UsageWindow
	SevenDay *UsageWindow
}

// UsageReader fetches account usage information.
type UsageReader interface {
	Usage(ctx context.Context) (UsageInfo, error)
}
