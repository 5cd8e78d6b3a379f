// Package ratelimit caps how often a client may hit a route.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

var errInvalidQuota = errors.New("rate limiter requires positive limit and window")

// Limiter decides whether one more request for key fits the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	// Window is the period a rejected client should wait at most.
	Window() time.Duration
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
