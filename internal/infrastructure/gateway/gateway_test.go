package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func scripted(statuses ...int) (Operation, *int32) {
	var calls int32
	return Operation{
		Name: "directory.get_teams",
		Do: func(ctx context.Context) (*Result, error) {
			n := atomic.AddInt32(&calls, 1)
			status := statuses[len(statuses)-1]
			if int(n) <= len(statuses) {
				status = statuses[n-1]
			}
			return &Result{StatusCode: status, Body: []byte(`{"ok":true}`)}, nil
		},
	}, &calls
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, JitterMax: 250 * time.Millisecond, PerCallTimeout: time.Second}
}

func TestInvoke_RetriesTransientThenSucceeds(t *testing.T) {
	rec := logger.NewRecorder()
	sleeper := &recordingSleeper{}
	g := New(testPolicy(), rec, WithSleeper(sleeper.sleep))

	op, calls := scripted(http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	res, err := g.Invoke(context.Background(), op)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 3, *calls)

	retries := rec.Messages("retrying external call")
	require.Len(t, retries, 2)
	assert.Equal(t, 1, retries[0].Fields["attempt"])
	assert.Equal(t, 2, retries[1].Fields["attempt"])
	assert.Equal(t, "directory.get_teams", retries[0].Fields["operation"])

	require.Len(t, sleeper.delays, 2)
	assert.GreaterOrEqual(t, sleeper.delays[1], sleeper.delays[0])
	assert.GreaterOrEqual(t, sleeper.delays[0], time.Second)
	assert.LessOrEqual(t, sleeper.delays[0], time.Second+250*time.Millisecond)
}

func TestInvoke_RejectedIsNotRetried(t *testing.T) {
	g := New(NoDelayPolicy(3), logger.NewNoopLogger())
	op, calls := scripted(http.StatusForbidden)

	_, err := g.Invoke(context.Background(), op)
	require.Error(t, err)
	assert.Equal(t, errors.KindTerminal, errors.KindOf(err))
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUpstreamRejected, appErr.Code())
	assert.EqualValues(t, 1, *calls)
}

func TestInvoke_ExhaustsRetries(t *testing.T) {
	rec := logger.NewRecorder()
	g := New(NoDelayPolicy(3), rec)
	op, calls := scripted(http.StatusTooManyRequests)

	_, err := g.Invoke(context.Background(), op)
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUpstreamExhausted, appErr.Code())
	assert.True(t, errors.IsRetryable(appErr.Unwrap()))
	assert.EqualValues(t, 3, *calls)
	assert.Len(t, rec.Messages("retrying external call"), 2)
}

func TestInvoke_TransportErrorsAreRetried(t *testing.T) {
	var calls int32
	op := Operation{Name: "permissions.resolve", Do: func(ctx context.Context) (*Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &net503{}
		}
		return &Result{StatusCode: http.StatusOK}, nil
	}}
	g := New(NoDelayPolicy(2), logger.NewNoopLogger())

	res, err := g.Invoke(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 2, calls)
}

type net503 struct{}

func (*net503) Error() string { return "dial tcp: connection refused" }

func TestInvoke_HonoursRetryAfterCappedAtMaxDelay(t *testing.T) {
	sleeper := &recordingSleeper{}
	g := New(testPolicy(), logger.NewNoopLogger(), WithSleeper(sleeper.sleep))

	var calls int32
	op := Operation{Name: "directory.get_department", Do: func(ctx context.Context) (*Result, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return &Result{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"3"}}}, nil
		case 2:
			return &Result{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Retry-After": []string{"120"}}}, nil
		}
		return &Result{StatusCode: http.StatusOK}, nil
	}}

	_, err := g.Invoke(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 10 * time.Second}, sleeper.delays)
}

func TestRetryAfter_HTTPDate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(testPolicy(), logger.NewNoopLogger(), WithClock(func() time.Time { return now }))

	h := http.Header{}
	h.Set("Retry-After", now.Add(4*time.Second).Format(http.TimeFormat))
	assert.Equal(t, 4*time.Second, g.retryAfter(h))

	h.Set("Retry-After", now.Add(-time.Minute).Format(http.TimeFormat))
	assert.Zero(t, g.retryAfter(h))

	h.Set("Retry-After", "soon")
	assert.Zero(t, g.retryAfter(h))
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	g := New(testPolicy(), logger.NewNoopLogger(), WithJitter(func(time.Duration) time.Duration { return 0 }))
	assert.Equal(t, time.Second, g.backoff(0, 0))
	assert.Equal(t, 2*time.Second, g.backoff(1, 0))
	assert.Equal(t, 8*time.Second, g.backoff(3, 0))
	assert.Equal(t, 10*time.Second, g.backoff(4, 0))
	assert.Equal(t, 10*time.Second, g.backoff(62, 0))
}

func TestBackoff_JitterAboveBaseStaysMonotonic(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, JitterMax: time.Second, PerCallTimeout: time.Second}
	draws := []bool{true, false}
	jitter := func(max time.Duration) time.Duration {
		full := draws[0]
		draws = draws[1:]
		if full {
			return max
		}
		return 0
	}
	sleeper := &recordingSleeper{}
	g := New(policy, logger.NewNoopLogger(), WithJitter(jitter), WithSleeper(sleeper.sleep))
	assert.Equal(t, 100*time.Millisecond, g.Policy().JitterMax)

	op, _ := scripted(http.StatusServiceUnavailable)
	_, err := g.Invoke(context.Background(), op)
	require.Error(t, err)

	require.Len(t, sleeper.delays, 2)
	assert.Equal(t, 200*time.Millisecond, sleeper.delays[0])
	assert.Equal(t, 200*time.Millisecond, sleeper.delays[1])
	assert.LessOrEqual(t, sleeper.delays[0], sleeper.delays[1])
}

func TestInvoke_ParentCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	op := Operation{Name: "permissions.resolve", Do: func(ctx context.Context) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return &Result{StatusCode: http.StatusBadGateway}, nil
	}}
	g := New(NoDelayPolicy(5), logger.NewNoopLogger())

	_, err := g.Invoke(ctx, op)
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUpstreamTimeout, appErr.Code())
	assert.EqualValues(t, 1, calls)
}

func TestInvoke_PerCallTimeoutIsRetried(t *testing.T) {
	var calls int32
	op := Operation{Name: "directory.get_teams", Do: func(ctx context.Context) (*Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &Result{StatusCode: http.StatusOK}, nil
	}}
	p := NoDelayPolicy(2)
	p.PerCallTimeout = 10 * time.Millisecond
	g := New(p, logger.NewNoopLogger())

	_, err := g.Invoke(context.Background(), op)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestInvokeJSON_AgainstServer(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"teams":[{"id":"t1"}]}`))
	}))
	defer srv.Close()

	g := New(NoDelayPolicy(3), logger.NewNoopLogger())
	var out struct {
		Teams []struct {
			ID string `json:"id"`
		} `json:"teams"`
	}
	err := g.InvokeJSON(context.Background(), HTTPOperation(srv.Client(), "directory.get_teams", JSONRequest(http.MethodGet, srv.URL, nil, nil)), &out)
	require.NoError(t, err)
	require.Len(t, out.Teams, 1)
	assert.Equal(t, "t1", out.Teams[0].ID)
	assert.EqualValues(t, 2, hits)
}

func TestInvokeJSON_MalformedBodyIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"teams":`))
	}))
	defer srv.Close()

	g := New(NoDelayPolicy(3), logger.NewNoopLogger())
	var out map[string]interface{}
	err := g.InvokeJSON(context.Background(), HTTPOperation(srv.Client(), "directory.get_teams", JSONRequest(http.MethodGet, srv.URL, nil, nil)), &out)
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeMalformedResponse, appErr.Code())
	assert.EqualValues(t, 1, hits)
}
