// Package apiclient performs outbound API calls on behalf of connections,
// composing rate limiting, per-connection queueing, authentication and retry.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/queue"
	"github.com/dukex/conduit/pkg/ratelimit"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const anonymousKey = "anonymous"

// RatePolicy decides what happens when the limiter rejects a call.
type RatePolicy int

const (
	// WaitPolicy blocks until the bucket refills.
	WaitPolicy RatePolicy = iota
	// FailFastPolicy returns a RateLimitError immediately.
	FailFastPolicy
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	err := json.Unmarshal(r.Body, v)
	if err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}

// AuthResolver returns the credential handler for a connection.
type AuthResolver interface {
	Handler(ctx context.Context, conn *models.ConnectionDefinition) (auth.Handler, error)
}

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	LimitAll(ctx context.Context, rules ...ratelimit.Rule) (ratelimit.Result, error)
	Wait(ctx context.Context, rules ...ratelimit.Rule) error
}

// RuleFunc returns the rate limit rules a call through conn must pass.
type RuleFunc func(conn *models.ConnectionDefinition) []ratelimit.Rule

// Options tune retries, timeouts and limiter behaviour.
type Options struct {
	MaxAttempts    int
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64
	RatePolicy     RatePolicy
	MaxBodyBytes   int64
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		Timeout:        30 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Jitter:         0.2,
		RatePolicy:     WaitPolicy,
		MaxBodyBytes:   10 << 20,
	}
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithRules(rules RuleFunc) Option {
	return func(c *Client) { c.rules = rules }
}

func WithOptions(opts Options) Option {
	return func(c *Client) { c.opts = opts }
}

// Attempt describes one HTTP attempt for observers. Request is captured
// before credentials are applied.
type Attempt struct {
	Number    int
	Request   *auth.Request
	Response  *Response
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type callOptions struct {
	observer func(ctx context.Context, attempt Attempt)
}

type CallOption func(*callOptions)

// WithAttemptObserver reports every attempt of a call.
func WithAttemptObserver(observer func(ctx context.Context, attempt Attempt)) CallOption {
	return func(o *callOptions) { o.observer = observer }
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    Limiter
	queue      *queue.Queue
	resolver   AuthResolver
	rules      RuleFunc
	opts       Options
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger, limiter Limiter, q *queue.Queue, resolver AuthResolver, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter:    limiter,
		queue:      q,
		resolver:   resolver,
		rules:      DefaultRules,
		opts:       DefaultOptions(),
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Call sends req through conn. Credentials are applied per attempt, so a
// token refreshed during a retry is picked up. Authentication failures are
// returned without sending anything.
func (c *Client) Call(ctx context.Context, conn *models.ConnectionDefinition, req *auth.Request, opts ...CallOption) (*Response, error) {
	options := callOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	key := anonymousKey
	if conn != nil {
		key = conn.ID

		if conn.Status == models.ConnectionStatusError {
			return nil, fmt.Errorf("%w: %s: %s", ErrConnectionUnavailable, conn.ID, conn.LastError)
		}
	}

	handler, err := c.handler(ctx, conn)
	if err != nil {
		return nil, err
	}

	retry := c.newBackOff()

	for attempt := 1; ; attempt++ {
		started := c.clock.Now()

		value, err := c.queue.Do(ctx, key, func(ctx context.Context) (any, error) {
			err := c.admit(ctx, conn)
			if err != nil {
				return nil, err
			}

			return c.send(ctx, handler, req)
		})

		resp, _ := value.(*Response)

		if options.observer != nil && !errors.Is(err, errNotSent) && !auth.IsAuthenticationError(err) && !ratelimit.IsRateLimited(err) {
			options.observer(ctx, Attempt{
				Number:    attempt,
				Request:   req,
				Response:  resp,
				Err:       err,
				StartedAt: started,
				Duration:  c.clock.Since(started),
			})
		}

		if err == nil {
			return resp, nil
		}

		delay, retryable := c.classify(err)
		if !retryable || attempt >= c.opts.MaxAttempts || ctx.Err() != nil {
			return nil, unwrapNotSent(err)
		}

		if next := retry.NextBackOff(); next != backoff.Stop && next > delay {
			delay = next
		}

		c.logger.WarnContext(ctx, "retrying api call",
			"key", key, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(delay):
		}
	}
}

func (c *Client) handler(ctx context.Context, conn *models.ConnectionDefinition) (auth.Handler, error) {
	if conn == nil || c.resolver == nil {
		return auth.NoAuthHandler{}, nil
	}

	handler, err := c.resolver.Handler(ctx, conn)
	if err != nil {
		if auth.IsAuthenticationError(err) {
			return nil, err
		}

		return nil, &auth.AuthenticationError{Scheme: "connection", Reason: "credentials unavailable", Err: err}
	}

	return handler, nil
}

func (c *Client) admit(ctx context.Context, conn *models.ConnectionDefinition) error {
	if c.limiter == nil {
		return nil
	}

	rules := c.rules(conn)
	if len(rules) == 0 {
		return nil
	}

	if c.opts.RatePolicy == WaitPolicy {
		return c.limiter.Wait(ctx, rules...)
	}

	result, err := c.limiter.LimitAll(ctx, rules...)
	if err != nil {
		return err
	}

	if !result.OK {
		return &ratelimit.RateLimitError{Key: result.Key, RetryAt: result.RetryAt}
	}

	return nil
}

var errNotSent = errors.New("request not sent")

type notSentError struct {
	err error
}

func (e *notSentError) Error() string { return e.err.Error() }
func (e *notSentError) Unwrap() []error {
	return []error{errNotSent, e.err}
}

func unwrapNotSent(err error) error {
	var notSent *notSentError
	if errors.As(err, &notSent) {
		return notSent.err
	}

	return err
}

func (c *Client) send(ctx context.Context, handler auth.Handler, req *auth.Request) (*Response, error) {
	signed, err := handler.Apply(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	httpReq, err := signed.HTTPRequest(ctx)
	if err != nil {
		return nil, &notSentError{err: err}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api call to %s failed: %w", req.URL.Host, err)
	}

	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	limit := c.opts.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultOptions().MaxBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL.Host, err)
	}

	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %s returned more than %d bytes", ErrResponseTooLarge, req.URL.Host, limit)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return resp, &ExternalAPIError{
			StatusCode: httpResp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After"), c.clock.Now()),
		}
	}

	return resp, nil
}

// classify returns the minimum delay before a retry and whether one is allowed.
func (c *Client) classify(err error) (time.Duration, bool) {
	if errors.Is(err, errNotSent) || errors.Is(err, ErrResponseTooLarge) || auth.IsAuthenticationError(err) || ratelimit.IsRateLimited(err) {
		return 0, false
	}

	if errors.Is(err, context.Canceled) {
		return 0, false
	}

	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter, apiErr.Retryable()
	}

	// Transport failures, including per-attempt timeouts.
	return 0, true
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.RandomizationFactor = c.opts.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}
