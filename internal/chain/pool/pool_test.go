package pool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pact/internal/chain/cache"
	"pact/internal/notify/memory"
	dErrors "pact/pkg/domain-errors"
)

// fakeConn is a scripted endpoint. Errors returned from script are
// classified by the pool exactly like real client errors.
type fakeConn struct {
	endpoint string
	balance  float64
	calls    atomic.Int64
	probeErr error
	// script returns the error for the nth call (0-based); nil past the end.
	script []error
}

var errNetwork = errors.New("dial tcp: connection refused")

func (f *fakeConn) Endpoint() string                  { return f.endpoint }
func (f *fakeConn) Probe(context.Context) error       { return f.probeErr }
func (f *fakeConn) GetLatestBlockhash(context.Context) (string, error) {
	return "blockhash", f.next()
}
func (f *fakeConn) GetTransaction(context.Context, string) (json.RawMessage, error) {
	return nil, f.next()
}
func (f *fakeConn) Submit(context.Context, string) (string, error) {
	return "tx", f.next()
}
func (f *fakeConn) GetBalance(context.Context, string) (float64, error) {
	if err := f.next(); err != nil {
		return 0, err
	}
	return f.balance, nil
}

func (f *fakeConn) next() error {
	n := f.calls.Add(1) - 1
	if int(n) < len(f.script) {
		return f.script[n]
	}
	return nil
}

func newTestPool(t *testing.T, conns []Conn, opts ...Option) *Pool {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	base := []Option{WithRetry(3, time.Millisecond), WithCallBudget(5 * time.Second)}
	return New(conns, logger, append(base, opts...)...)
}

func TestPool_AllUnhealthyFailsFastWithoutAttempting(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a"}
	p := newTestPool(t, []Conn{conn})

	// Drive the endpoint unhealthy through the request path.
	err := p.ExecuteWithRetry(context.Background(), func(context.Context, Conn) error {
		return errNetwork
	})
	require.Error(t, err)

	attempted := false
	err = p.ExecuteWithRetry(context.Background(), func(context.Context, Conn) error {
		attempted = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoHealthyEndpoint))
	assert.False(t, attempted, "no operation may run when no endpoint is healthy")
}

func TestPool_TransientFailureRecoversOnRetry(t *testing.T) {
	flaky := &fakeConn{endpoint: "https://rpc-a", balance: 3, script: []error{errNetwork}}
	backup := &fakeConn{endpoint: "https://rpc-b", balance: 3}
	p := newTestPool(t, []Conn{flaky, backup})

	balance, err := p.GetBalance(context.Background(), "identity-1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, balance)

	var flakyStatus EndpointStatus
	for _, s := range p.Status() {
		if s.Endpoint == "https://rpc-a" {
			flakyStatus = s
		}
	}
	assert.False(t, flakyStatus.Healthy)
	assert.Equal(t, 1, flakyStatus.ConsecutiveErrors)

	// Health check is the only path back to healthy, and it decrements the
	// error counter.
	p.HealthCheck(context.Background())
	for _, s := range p.Status() {
		if s.Endpoint == "https://rpc-a" {
			assert.True(t, s.Healthy)
			assert.Equal(t, 0, s.ConsecutiveErrors)
		}
	}
}

func TestPool_NonNetworkErrorFailsFast(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a"}
	p := newTestPool(t, []Conn{conn})

	calls := 0
	rejection := errors.New("invalid params")
	err := p.ExecuteWithRetry(context.Background(), func(context.Context, Conn) error {
		calls++
		return rejection
	})
	require.ErrorIs(t, err, rejection)
	assert.Equal(t, 1, calls, "non-network errors are not retried")

	// The endpoint stays healthy: the request was wrong, not the network.
	assert.True(t, p.Status()[0].Healthy)
}

func TestPool_BudgetExpiryLeavesEndpointHealthy(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a"}
	p := newTestPool(t, []Conn{conn}, WithCallBudget(10*time.Millisecond))

	err := p.ExecuteWithRetry(context.Background(), func(ctx context.Context, _ Conn) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))

	// Exhausting our own budget is not the endpoint's fault.
	status := p.Status()[0]
	assert.True(t, status.Healthy)
	assert.Zero(t, status.ConsecutiveErrors)
}

func TestPool_SelectsFewestErrors(t *testing.T) {
	a := &fakeConn{endpoint: "https://rpc-a"}
	b := &fakeConn{endpoint: "https://rpc-b"}
	p := newTestPool(t, []Conn{a, b})

	// Leave a unhealthy with one error, then restore both via health check;
	// a keeps a residual error count of zero after decrement, so force two
	// errors to keep the ordering visible.
	p.mu.Lock()
	p.endpoints[0].consecutiveErrors = 2
	p.mu.Unlock()

	ep, err := p.selectHealthy()
	require.NoError(t, err)
	assert.Equal(t, "https://rpc-b", ep.conn.Endpoint())
}

func TestPool_ExhaustsAttemptsAndSurfacesLastError(t *testing.T) {
	// Three endpoints so a healthy one is always available per attempt.
	conns := []Conn{
		&fakeConn{endpoint: "https://rpc-a"},
		&fakeConn{endpoint: "https://rpc-b"},
		&fakeConn{endpoint: "https://rpc-c"},
	}
	p := newTestPool(t, conns)

	calls := 0
	err := p.ExecuteWithRetry(context.Background(), func(context.Context, Conn) error {
		calls++
		return errNetwork
	})
	require.ErrorIs(t, err, errNetwork)
	assert.Equal(t, 3, calls)
}

func TestPool_BalanceCacheBoundsNetworkCalls(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a", balance: 7}
	p := newTestPool(t, []Conn{conn}, WithCache(cache.NewMemory(30*time.Second)))

	for range 5 {
		balance, err := p.GetBalance(context.Background(), "identity-1")
		require.NoError(t, err)
		assert.Equal(t, 7.0, balance)
	}
	assert.Equal(t, int64(1), conn.calls.Load(), "reads within the TTL must hit the network at most once")
}

func TestPool_ClearCacheForcesRefetch(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a", balance: 7}
	p := newTestPool(t, []Conn{conn}, WithCache(cache.NewMemory(30*time.Second)))

	_, err := p.GetBalance(context.Background(), "identity-1")
	require.NoError(t, err)
	require.NoError(t, p.ClearCache(context.Background()))
	_, err = p.GetBalance(context.Background(), "identity-1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), conn.calls.Load())
}

func TestPool_HealthCheckMarksProbeFailures(t *testing.T) {
	bad := &fakeConn{endpoint: "https://rpc-a", probeErr: errNetwork}
	good := &fakeConn{endpoint: "https://rpc-b"}
	p := newTestPool(t, []Conn{bad, good})

	p.HealthCheck(context.Background())

	for _, s := range p.Status() {
		switch s.Endpoint {
		case "https://rpc-a":
			assert.False(t, s.Healthy)
			assert.Equal(t, 1, s.ConsecutiveErrors)
		case "https://rpc-b":
			assert.True(t, s.Healthy)
			assert.Equal(t, 0, s.ConsecutiveErrors)
		}
		assert.False(t, s.LastCheck.IsZero())
	}
}

func TestPool_CallBudgetReturnsTimeout(t *testing.T) {
	conns := []Conn{
		&fakeConn{endpoint: "https://rpc-a"},
		&fakeConn{endpoint: "https://rpc-b"},
		&fakeConn{endpoint: "https://rpc-c"},
	}
	logger := slog.New(slog.DiscardHandler)
	p := New(conns, logger,
		WithRetry(3, 200*time.Millisecond),
		WithCallBudget(50*time.Millisecond),
	)

	err := p.ExecuteWithRetry(context.Background(), func(context.Context, Conn) error {
		return errNetwork
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestSubscriptionManager_PollsAndTearsDown(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a", balance: 1.25}
	p := newTestPool(t, []Conn{conn}, WithCache(cache.NewMemory(time.Nanosecond)))
	recorder := memory.NewRecorder()
	m := NewSubscriptionManager(p, recorder, slog.New(slog.DiscardHandler), 10*time.Millisecond)
	defer m.Close()

	m.Subscribe("identity-1", "socket-1")
	m.Subscribe("identity-1", "socket-1") // duplicate is a no-op
	assert.Equal(t, 1, m.Count())

	assert.Eventually(t, func() bool {
		return len(recorder.Messages()) > 0
	}, time.Second, 5*time.Millisecond)

	m.UnsubscribeAll("socket-1")
	assert.Equal(t, 0, m.Count())

	// No further updates after teardown settles.
	time.Sleep(20 * time.Millisecond)
	n := len(recorder.Messages())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(recorder.Messages()))
}

func TestSubscriptionManager_PerSubscriberTeardownLeavesOthers(t *testing.T) {
	conn := &fakeConn{endpoint: "https://rpc-a", balance: 1}
	p := newTestPool(t, []Conn{conn})
	m := NewSubscriptionManager(p, memory.NewRecorder(), slog.New(slog.DiscardHandler), time.Hour)
	defer m.Close()

	m.Subscribe("identity-1", "socket-1")
	m.Subscribe("identity-1", "socket-2")
	m.Subscribe("identity-2", "socket-2")

	m.UnsubscribeAll("socket-2")
	assert.Equal(t, 1, m.Count())

	m.Unsubscribe("identity-1", "socket-1")
	assert.Equal(t, 0, m.Count())
}
