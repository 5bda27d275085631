package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pact/internal/notify"
)

// Balance subscriptions are polling loops, not push subscriptions: push
// delivery over the ledger's native subscription transport is unreliable, so
// each (identity, subscriber) pair owns a ticker that reads through the pool
// and fans updates out via the notifier. A subscriber's disconnection must
// tear its subscriptions down explicitly.

type subKey struct {
	identity   string
	subscriber string
}

// SubscriptionManager tracks active balance subscriptions.
type SubscriptionManager struct {
	pool     *Pool
	notifier notify.Notifier
	logger   *slog.Logger
	interval time.Duration

	mu   sync.Mutex
	subs map[subKey]context.CancelFunc
}

func NewSubscriptionManager(p *Pool, notifier notify.Notifier, logger *slog.Logger, interval time.Duration) *SubscriptionManager {
	return &SubscriptionManager{
		pool:     p,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		subs:     make(map[subKey]context.CancelFunc),
	}
}

// Subscribe starts polling identity's balance on behalf of subscriber.
// Subscribing twice for the same pair is a no-op.
func (m *SubscriptionManager) Subscribe(identity, subscriber string) {
	key := subKey{identity: identity, subscriber: subscriber}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.subs[key]; exists {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.subs[key] = cancel
	go m.poll(ctx, identity, subscriber)
}

func (m *SubscriptionManager) poll(ctx context.Context, identity, subscriber string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			balance, err := m.pool.GetBalance(ctx, identity)
			if err != nil {
				m.logger.WarnContext(ctx, "balance poll failed",
					"identity", identity,
					"error", err.Error(),
				)
				continue
			}
			if err := m.notifier.Publish(ctx, notify.Message{
				Event:     notify.EventBalanceUpdated,
				Actor:     subscriber,
				Timestamp: time.Now(),
				Details: map[string]any{
					"identity": identity,
					"balance":  balance,
				},
			}); err != nil {
				m.logger.WarnContext(ctx, "balance update publish failed", "error", err.Error())
			}
		}
	}
}

// Unsubscribe stops polling for one (identity, subscriber) pair.
func (m *SubscriptionManager) Unsubscribe(identity, subscriber string) {
	key := subKey{identity: identity, subscriber: subscriber}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.subs[key]; ok {
		cancel()
		delete(m.subs, key)
	}
}

// UnsubscribeAll tears down every subscription owned by subscriber. Called
// on subscriber disconnection.
func (m *SubscriptionManager) UnsubscribeAll(subscriber string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.subs {
		if key.subscriber == subscriber {
			cancel()
			delete(m.subs, key)
		}
	}
}

// Count returns the number of active subscriptions.
func (m *SubscriptionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close cancels every subscription.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.subs {
		cancel()
		delete(m.subs, key)
	}
}
