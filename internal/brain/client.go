package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"brain-alpha-lab/internal/observability"
)

const (
	defaultBaseURL      = "https://api.worldquantbrain.com"
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryDelay   = 2 * time.Second
	defaultRetryAfter   = 5 * time.Second
	defaultAuthRetries  = 3
	defaultRequestsRate = 4.0
	defaultRequestBurst = 8
)

// Credentials identify a platform account.
type Credentials struct {
	Username string
	Password string
}

// Client is a session-scoped HTTP client for the simulation platform.
// It owns authentication, rate limiting and retry policy; all request
// paths go through Do. A single Client is safe for concurrent use.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries int
	retryDelay time.Duration
	retryAfter time.Duration

	// authGen increments on every successful login. A worker that hits
	// a 401 presents the generation it authenticated under; if another
	// worker already advanced it, the session is fresh and no second
	// login happens.
	authMu  sync.Mutex
	authGen atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// installed if the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets the transient retry budget per request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base delay for exponential backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithRetryAfterFallback sets the wait used when a 429 response
// carries no parseable Retry-After header.
func WithRetryAfterFallback(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryAfter = d
		}
	}
}

// WithRateLimit caps outbound request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithBaseURL points the client at a different endpoint, mainly for
// tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient builds an unauthenticated client. Call Authenticate before
// issuing requests, or let the first 401 trigger a login.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("brain: username and password are required")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		creds:      creds,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		retryAfter: defaultRetryAfter,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsRate), defaultRequestBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	return c, nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Authenticate logs in and establishes a session cookie. It retries
// with exponential backoff on transport errors and 5xx responses;
// a 401 from the login endpoint itself is final.
func (c *Client) Authenticate(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < defaultAuthRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(c.retryDelay, attempt-1)); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authentication", nil)
		if err != nil {
			return fmt.Errorf("build login request: %w", err)
		}
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusCreated:
			c.authGen.Add(1)
			observability.RecordAuth("ok")
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			observability.RecordAuth("rejected")
			return &AuthError{Message: "credentials rejected", Err: nil}
		default:
			lastErr = fmt.Errorf("login status %d: %s", resp.StatusCode, truncateBody(body))
		}
	}
	observability.RecordAuth("error")
	return &AuthError{Message: "login retries exhausted", Err: lastErr}
}

// reauth re-establishes the session after a 401. observedGen is the
// generation the caller was authenticated under; if the session was
// already refreshed by another goroutine the call is a no-op.
func (c *Client) reauth(ctx context.Context, observedGen uint64) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authGen.Load() != observedGen {
		return nil
	}
	log.Printf("[brain] session expired, re-authenticating")
	return c.loginLocked(ctx)
}

// Do issues a request with retry, re-auth and rate-limit handling.
//
// Transport errors back off exponentially and count against the retry
// budget. A 401 triggers a single re-authentication and replays the
// request without consuming budget; a second 401 is fatal. When
// honorRetryAfter is set, a 429 waits the server-indicated interval
// and replays, also without consuming budget; otherwise the 429 is
// returned to the caller. Every other status is returned as-is.
func (c *Client) Do(ctx context.Context, method, path string, body any, params url.Values, honorRetryAfter bool) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var (
		lastErr  error
		reauthed bool
	)
	attempt := 0
	for attempt < c.maxRetries {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		authedGen := c.authGen.Load()
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			observability.RecordRetry(method)
			attempt++
			if attempt < c.maxRetries {
				if serr := sleepCtx(ctx, backoffDelay(c.retryDelay, attempt-1)); serr != nil {
					return nil, serr
				}
			}
			continue
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if readErr != nil {
			// A truncated body is the same failure mode as a dropped
			// connection: back off before retrying.
			lastErr = readErr
			observability.RecordRetry(method)
			attempt++
			if attempt < c.maxRetries {
				if serr := sleepCtx(ctx, backoffDelay(c.retryDelay, attempt-1)); serr != nil {
					return nil, serr
				}
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if reauthed {
				return nil, &AuthError{Message: "request unauthorized after re-authentication"}
			}
			reauthed = true
			if err := c.reauth(ctx, authedGen); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests && honorRetryAfter:
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), c.retryAfter)
			observability.RecordRateLimitWait(wait.Seconds())
			log.Printf("[brain] rate limited, waiting %s", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue

		default:
			return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
		}
	}
	return nil, &TransientError{
		Operation: method + " " + path,
		Err:       lastErr,
	}
}

// parseRetryAfter reads a Retry-After header. The platform sends
// fractional seconds ("2.5"), which the HTTP-date form does not allow,
// so it is parsed as a float first.
func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
