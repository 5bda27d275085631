// Package cache provides the time-bounded balance cache consulted before any
// ledger read. Entries have last-writer-wins semantics, acceptable because
// the TTL is short and the source data idempotent.
package cache

import (
	"context"
	"time"
)

// Balance is a cached ledger balance read.
type Balance struct {
	Identity  string
	Amount    float64
	FetchedAt time.Time
}

// Store is the cache port. Get returns ok=false for both missing and expired
// entries; callers cannot distinguish the two and should not need to.
type Store interface {
	Get(ctx context.Context, identity string) (Balance, bool, error)
	Set(ctx context.Context, b Balance) error
	// Clear drops every entry. Explicit operator action, never automatic.
	Clear(ctx context.Context) error
}
