package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/queue"
	"github.com/dukex/conduit/pkg/ratelimit"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	handler auth.Handler
	err     error
}

func (r *staticResolver) Handler(context.Context, *models.ConnectionDefinition) (auth.Handler, error) {
	return r.handler, r.err
}

type failingHandler struct{}

func (failingHandler) Scheme() string { return "oauth2" }

func (failingHandler) Apply(context.Context, *auth.Request) (*auth.Request, error) {
	return nil, &auth.AuthenticationError{Scheme: "oauth2", Reason: "refresh rejected: invalid_grant"}
}

type attemptRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *attemptRecorder) observe(_ context.Context, attempt Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = append(r.attempts, attempt)
}

func (r *attemptRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.attempts)
}

func testOptions() Options {
	return Options{
		MaxAttempts:    3,
		Timeout:        2 * time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RatePolicy:     WaitPolicy,
	}
}

func newTestClient(resolver AuthResolver, opts ...Option) *Client {
	logger := slog.Default()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())

	return NewClient(logger, limiter, queue.New(logger, 1), resolver, append([]Option{WithOptions(testOptions())}, opts...)...)
}

func testConnection() *models.ConnectionDefinition {
	return &models.ConnectionDefinition{ID: "conn-1", Status: models.ConnectionStatusConnected, Config: map[string]any{}}
}

func newRequest(t *testing.T, url string) *auth.Request {
	t.Helper()

	req, err := auth.NewRequest(http.MethodPost, url+"/items", []byte(`{"name":"x"}`))
	require.NoError(t, err)

	return req
}

func TestClient_CallAppliesAuth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":7}`)
	}))
	defer server.Close()

	client := newTestClient(&staticResolver{handler: &auth.BearerTokenHandler{Token: "secret"}})
	recorder := &attemptRecorder{}
	req := newRequest(t, server.URL)

	resp, err := client.Call(context.Background(), testConnection(), req, WithAttemptObserver(recorder.observe))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, resp.JSON(&body))
	assert.InDelta(t, 7, body["id"], 0)

	require.Equal(t, 1, recorder.count())
	assert.Empty(t, recorder.attempts[0].Request.Header.Get("Authorization"), "observers see the request before credentials")
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(nil)
	recorder := &attemptRecorder{}

	resp, err := client.Call(context.Background(), testConnection(), newRequest(t, server.URL), WithAttemptObserver(recorder.observe))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())

	require.Equal(t, 2, recorder.count())
	assert.Equal(t, 1, recorder.attempts[0].Number)
	assert.True(t, IsExternalAPIError(recorder.attempts[0].Err))
	assert.NoError(t, recorder.attempts[1].Err)
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, "down")
	}))
	defer server.Close()

	_, err := newTestClient(nil).Call(context.Background(), testConnection(), newRequest(t, server.URL))

	var apiErr *ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "down", apiErr.Body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = fmt.Fprint(w, `{"message":"title is required"}`)
	}))
	defer server.Close()

	_, err := newTestClient(nil).Call(context.Background(), testConnection(), newRequest(t, server.URL))

	var apiErr *ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, `{"items":["first","second","third"]}`)
	}))
	defer server.Close()

	opts := testOptions()
	opts.MaxBodyBytes = 16

	_, err := newTestClient(nil, WithOptions(opts)).Call(context.Background(), testConnection(), newRequest(t, server.URL))
	require.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Equal(t, int32(1), hits.Load())

	opts.MaxBodyBytes = int64(len(`{"items":["first","second","third"]}`))

	resp, err := newTestClient(nil, WithOptions(opts)).Call(context.Background(), testConnection(), newRequest(t, server.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_HonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	client := newTestClient(nil, WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		_, err := client.Call(ctx, testConnection(), newRequest(t, server.URL))
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(time.Second)
	assert.Equal(t, int32(1), hits.Load(), "retry waits for the full Retry-After delay")

	clock.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("call did not complete after Retry-After elapsed")
	}

	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_AuthFailureSendsNothing(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	recorder := &attemptRecorder{}
	client := newTestClient(&staticResolver{handler: failingHandler{}})

	_, err := client.Call(context.Background(), testConnection(), newRequest(t, server.URL), WithAttemptObserver(recorder.observe))
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, 0, recorder.count())
}

func TestClient_ResolverErrorIsAuthenticationError(t *testing.T) {
	t.Parallel()

	client := newTestClient(&staticResolver{err: errors.New("cannot decrypt secrets")})

	_, err := client.Call(context.Background(), testConnection(), newRequest(t, "http://127.0.0.1:1"))
	assert.True(t, auth.IsAuthenticationError(err))
}

func TestClient_ConnectionInErrorState(t *testing.T) {
	t.Parallel()

	conn := testConnection()
	conn.Status = models.ConnectionStatusError
	conn.LastError = "token revoked"

	_, err := newTestClient(nil).Call(context.Background(), conn, newRequest(t, "http://127.0.0.1:1"))
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.ErrorContains(t, err, "token revoked")
}

func TestClient_FailFastRateLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	opts := testOptions()
	opts.RatePolicy = FailFastPolicy

	client := newTestClient(nil, WithOptions(opts), WithRules(func(*models.ConnectionDefinition) []ratelimit.Rule {
		return []ratelimit.Rule{{Key: "tight", Capacity: 1, Rate: 1, Period: time.Hour}}
	}))

	_, err := client.Call(context.Background(), testConnection(), newRequest(t, server.URL))
	require.NoError(t, err)

	_, err = client.Call(context.Background(), testConnection(), newRequest(t, server.URL))
	require.Error(t, err)
	assert.True(t, ratelimit.IsRateLimited(err))
}

func TestClient_RetriesTransportErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	recorder := &attemptRecorder{}

	_, err := newTestClient(nil).Call(context.Background(), testConnection(), newRequest(t, url), WithAttemptObserver(recorder.observe))
	require.Error(t, err)
	assert.False(t, IsExternalAPIError(err))
	assert.Equal(t, 3, recorder.count())
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	rules := DefaultRules(nil)
	require.Len(t, rules, 1)
	assert.Equal(t, "connection:anonymous", rules[0].Key)

	conn := testConnection()
	conn.Config["rate_limit"] = map[string]any{"capacity": float64(5), "rate": float64(1), "period_seconds": float64(2)}

	rules = DefaultRules(conn)
	require.Len(t, rules, 1)
	assert.Equal(t, "connection:conn-1", rules[0].Key)
	assert.InDelta(t, 5, rules[0].Capacity, 0)
	assert.InDelta(t, 1, rules[0].Rate, 0)
	assert.Equal(t, 2*time.Second, rules[0].Period)
}

func TestEnhancedClient(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	opts := testOptions()
	opts.RatePolicy = FailFastPolicy

	enhanced := ratelimit.NewEnhancedLimiter(ratelimit.NewLimiter(ratelimit.NewMemoryStore()), ratelimit.DefaultAllowance)
	client := NewEnhancedClient(newTestClient(nil, WithOptions(opts)), enhanced)

	conn := testConnection()
	conn.Config["rate_limit"] = map[string]any{"burst": float64(1), "sustained_per_hour": float64(100)}

	_, err := client.Call(context.Background(), conn, newRequest(t, server.URL))
	require.NoError(t, err)

	_, err = client.Call(context.Background(), conn, newRequest(t, server.URL))

	var rateErr *ratelimit.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "connection:conn-1:burst", rateErr.Key)
	assert.Equal(t, int32(1), hits.Load())
}
