// Package pool maintains redundant RPC connections to the ledger network and
// exposes a single best-available-connection abstraction. Endpoint health is
// advisory state owned by this package: request failures mark endpoints
// unhealthy, and only the periodic health check can restore them.
package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pact/internal/chain/cache"
	"pact/internal/chain/rpc"
	"pact/internal/platform/metrics"
	dErrors "pact/pkg/domain-errors"
)

// Conn is one endpoint handle. *rpc.Client satisfies it; tests substitute
// scripted fakes.
type Conn interface {
	Endpoint() string
	Probe(ctx context.Context) error
	GetBalance(ctx context.Context, identity string) (float64, error)
	GetTransaction(ctx context.Context, signature string) (json.RawMessage, error)
	GetLatestBlockhash(ctx context.Context) (string, error)
	Submit(ctx context.Context, instruction string) (string, error)
}

// Operation is a single call executed against a selected connection.
type Operation func(ctx context.Context, conn Conn) error

type endpointState struct {
	conn              Conn
	healthy           bool
	consecutiveErrors int
	lastCheck         time.Time
	latency           time.Duration
}

// EndpointStatus is the operator-facing health snapshot of one endpoint.
type EndpointStatus struct {
	Endpoint          string        `json:"endpoint"`
	Healthy           bool          `json:"healthy"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastCheck         time.Time     `json:"last_check"`
	Latency           time.Duration `json:"latency"`
}

// Pool owns the endpoint set, the retry policy, and the balance cache. One
// Pool per process, constructed in main and passed down; never a package
// global.
type Pool struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   cache.Store
	tracer  trace.Tracer

	maxAttempts    int
	baseDelay      time.Duration
	callBudget     time.Duration
	healthInterval time.Duration

	mu        sync.Mutex
	endpoints []*endpointState
}

// Option configures the Pool.
type Option func(*Pool)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func WithCache(c cache.Store) Option {
	return func(p *Pool) { p.cache = c }
}

// WithRetry sets the attempt count and the exponential backoff base delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pool) {
		p.maxAttempts = maxAttempts
		p.baseDelay = baseDelay
	}
}

// WithCallBudget bounds how long one logical call (all attempts plus
// backoff) may take before the caller gets a Timeout.
func WithCallBudget(d time.Duration) Option {
	return func(p *Pool) { p.callBudget = d }
}

func WithHealthInterval(d time.Duration) Option {
	return func(p *Pool) { p.healthInterval = d }
}

// New creates a Pool over the given connections. All endpoints start
// healthy; the first health check corrects that if needed.
func New(conns []Conn, logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		logger:         logger,
		cache:          cache.NewMemory(30 * time.Second),
		tracer:         otel.Tracer("pact/chain/pool"),
		maxAttempts:    3,
		baseDelay:      time.Second,
		callBudget:     45 * time.Second,
		healthInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, conn := range conns {
		p.endpoints = append(p.endpoints, &endpointState{conn: conn, healthy: true})
	}
	return p
}

// selectHealthy returns the healthy endpoint with the fewest consecutive
// errors. It never degrades to an unhealthy endpoint: with none healthy the
// caller gets a hard NoHealthyEndpoint failure.
func (p *Pool) selectHealthy() (*endpointState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *endpointState
	for _, ep := range p.endpoints {
		if !ep.healthy {
			continue
		}
		if best == nil || ep.consecutiveErrors < best.consecutiveErrors {
			best = ep
		}
	}
	if best == nil {
		return nil, dErrors.New(dErrors.CodeNoHealthyEndpoint, "no healthy RPC connections available")
	}
	return best, nil
}

func (p *Pool) markFailure(ep *endpointState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.healthy = false
	ep.consecutiveErrors++
	if p.metrics != nil {
		p.metrics.RPCErrors.WithLabelValues(ep.conn.Endpoint()).Inc()
	}
	p.updateHealthGaugeLocked()
}

// ExecuteWithRetry runs op against the best available connection, retrying
// network-classified failures with exponential backoff. Non-network errors
// fail fast: retrying would not change the outcome. Backoff waits hold no
// locks, so other contracts' processing is never blocked by them.
func (p *Pool) ExecuteWithRetry(ctx context.Context, op Operation) error {
	ctx, cancel := context.WithTimeout(ctx, p.callBudget)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "chain.execute")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return dErrors.Wrap(dErrors.CodeTimeout, "call budget exhausted", lastErr)
			case <-time.After(delay):
			}
		}

		ep, err := p.selectHealthy()
		if err != nil {
			return err
		}
		endpoint := ep.conn.Endpoint()
		if p.metrics != nil {
			p.metrics.RPCAttempts.WithLabelValues(endpoint).Inc()
		}
		span.SetAttributes(
			attribute.String("chain.endpoint", endpoint),
			attribute.Int("chain.attempt", attempt+1),
		)

		err = op(ctx, ep.conn)
		if err == nil {
			return nil
		}
		lastErr = err

		// A call cut short by the pool's own budget says nothing about
		// the endpoint, so it carries no health penalty.
		if ctx.Err() != nil {
			return dErrors.Wrap(dErrors.CodeTimeout, "call budget exhausted", lastErr)
		}
		if !rpc.IsNetworkError(err) {
			return err
		}

		p.markFailure(ep)
		p.logger.WarnContext(ctx, "chain operation attempt failed",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"error", err.Error(),
		)
	}

	if ctx.Err() != nil {
		return dErrors.Wrap(dErrors.CodeTimeout, "call budget exhausted", lastErr)
	}
	return lastErr
}

// GetBalance returns the balance for identity, consulting the cache first.
// Cache hits bypass the network entirely; cache writes happen only on
// successful reads.
func (p *Pool) GetBalance(ctx context.Context, identity string) (float64, error) {
	if entry, ok, err := p.cache.Get(ctx, identity); err == nil && ok {
		if p.metrics != nil {
			p.metrics.BalanceCacheHits.Inc()
		}
		return entry.Amount, nil
	} else if err != nil {
		// A broken cache backend must not take balance reads down with it.
		p.logger.WarnContext(ctx, "balance cache read failed", "error", err.Error())
	}
	if p.metrics != nil {
		p.metrics.BalanceCacheMiss.Inc()
	}

	var balance float64
	err := p.ExecuteWithRetry(ctx, func(ctx context.Context, conn Conn) error {
		var opErr error
		balance, opErr = conn.GetBalance(ctx, identity)
		return opErr
	})
	if err != nil {
		return 0, err
	}

	if err := p.cache.Set(ctx, cache.Balance{Identity: identity, Amount: balance, FetchedAt: time.Now()}); err != nil {
		p.logger.WarnContext(ctx, "balance cache write failed", "error", err.Error())
	}
	return balance, nil
}

// GetTransaction fetches a transaction record by signature.
func (p *Pool) GetTransaction(ctx context.Context, signature string) (json.RawMessage, error) {
	var tx json.RawMessage
	err := p.ExecuteWithRetry(ctx, func(ctx context.Context, conn Conn) error {
		var opErr error
		tx, opErr = conn.GetTransaction(ctx, signature)
		return opErr
	})
	return tx, err
}

// GetLatestBlockhash fetches the most recent blockhash.
func (p *Pool) GetLatestBlockhash(ctx context.Context) (string, error) {
	var blockhash string
	err := p.ExecuteWithRetry(ctx, func(ctx context.Context, conn Conn) error {
		var opErr error
		blockhash, opErr = conn.GetLatestBlockhash(ctx)
		return opErr
	})
	return blockhash, err
}

// Submit sends a signed instruction to the ledger and returns its tx ID.
func (p *Pool) Submit(ctx context.Context, instruction string) (string, error) {
	var txID string
	err := p.ExecuteWithRetry(ctx, func(ctx context.Context, conn Conn) error {
		var opErr error
		txID, opErr = conn.Submit(ctx, instruction)
		return opErr
	})
	return txID, err
}

// ClearCache drops all cached balances. Operator action.
func (p *Pool) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// Run drives the periodic health check until ctx is cancelled. It runs on
// its own schedule, independent of request traffic; request-path activity
// never cancels it.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()

	// One immediate pass so a cold process does not serve stale "healthy"
	// defaults for a full interval.
	p.HealthCheck(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.HealthCheck(ctx)
		}
	}
}

// HealthCheck probes every endpoint concurrently with a cheap read. Success
// restores health and decrements the error counter (never below zero);
// failure marks unhealthy and increments it. This is the only path that can
// bring an endpoint back from unhealthy.
func (p *Pool) HealthCheck(ctx context.Context) {
	p.mu.Lock()
	endpoints := append([]*endpointState{}, p.endpoints...)
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		g.Go(func() error {
			start := time.Now()
			err := ep.conn.Probe(ctx)
			elapsed := time.Since(start)

			p.mu.Lock()
			defer p.mu.Unlock()
			ep.lastCheck = time.Now()
			if err != nil {
				ep.healthy = false
				ep.consecutiveErrors++
				p.logger.WarnContext(ctx, "health check failed",
					"endpoint", ep.conn.Endpoint(),
					"error", err.Error(),
				)
			} else {
				ep.healthy = true
				ep.latency = elapsed
				if ep.consecutiveErrors > 0 {
					ep.consecutiveErrors--
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.updateHealthGaugeLocked()
	p.mu.Unlock()
}

// Status returns a snapshot of all endpoint health records.
func (p *Pool) Status() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]EndpointStatus, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, EndpointStatus{
			Endpoint:          ep.conn.Endpoint(),
			Healthy:           ep.healthy,
			ConsecutiveErrors: ep.consecutiveErrors,
			LastCheck:         ep.lastCheck,
			Latency:           ep.latency,
		})
	}
	return out
}

func (p *Pool) updateHealthGaugeLocked() {
	if p.metrics == nil {
		return
	}
	healthy := 0
	for _, ep := range p.endpoints {
		if ep.healthy {
			healthy++
		}
	}
	p.metrics.HealthyEndpoints.Set(float64(healthy))
}
