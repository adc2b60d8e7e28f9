package brain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(serverURL),
		WithRetryDelay(time.Millisecond),
		WithRetryAfterFallback(time.Millisecond),
		WithRateLimit(10000, 10000),
	}
	c, err := NewClient(Credentials{Username: "user@example.com", Password: "secret"}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestAuthenticate(t *testing.T) {
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authentication" {
			t.Errorf("expected /authentication, got %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user@example.com" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if logins.Load() != 1 {
		t.Errorf("expected 1 login, got %d", logins.Load())
	}
}

func TestAuthenticateRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	err := client.Authenticate(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
}

func TestDoRetriesTransportErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, WithMaxRetries(3))
	resp, err := client.Do(context.Background(), http.MethodGet, "/thing", nil, nil, true)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if requests.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", requests.Load())
	}
}

func TestDoRetriesTruncatedBodyWithBackoff(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			// Advertise more body than is sent so the client's read fails.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\npartial"))
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	const delay = 30 * time.Millisecond
	client := testClient(t, server.URL, WithMaxRetries(3), WithRetryDelay(delay))

	start := time.Now()
	resp, err := client.Do(context.Background(), http.MethodGet, "/thing", nil, nil, true)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("expected a backoff of at least %v between attempts, got %v", delay, elapsed)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer server.Close()

	client := testClient(t, server.URL, WithMaxRetries(2))
	_, err := client.Do(context.Background(), http.MethodGet, "/thing", nil, nil, true)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected *TransientError, got %v", err)
	}
}

func TestDoSingleFlightReauth(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/authentication", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		// The session from the first login is "expired": every worker
		// sees a 401 until one of them re-authenticates.
		if logins.Load() < 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server.URL)
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Do(context.Background(), http.MethodGet, "/data", nil, nil, true)
			if err != nil {
				errs[i] = err
				return
			}
			if resp.StatusCode != http.StatusOK {
				errs[i] = errors.New("non-200 after reauth")
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if got := logins.Load(); got != 2 {
		t.Errorf("expected exactly 2 logins (initial + one reauth), got %d", got)
	}
}

func TestDoSecondUnauthorizedIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/authentication", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/data", nil, nil, true)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
}

func TestDoHonorsRetryAfter(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.05")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// maxRetries=1: the rate-limit replay must not consume the budget.
	client := testClient(t, server.URL, WithMaxRetries(1))
	start := time.Now()
	resp, err := client.Do(context.Background(), http.MethodGet, "/thing", nil, nil, true)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected to wait at least 50ms, waited %s", elapsed)
	}
}

func TestDoReturnsRateLimitWhenNotHonoring(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Do(context.Background(), http.MethodGet, "/thing", nil, nil, false)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 passed through, got %d", resp.StatusCode)
	}
}

func TestDoReturnsErrorStatusesToCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"no such alpha"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Do(context.Background(), http.MethodGet, "/alphas/missing", nil, nil, true)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestParseRetryAfter(t *testing.T) {
	fallback := 5 * time.Second
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"2.5", 2500 * time.Millisecond},
		{"10", 10 * time.Second},
		{"0", 0},
		{"", fallback},
		{"soon", fallback},
		{"-3", fallback},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header, fallback); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}
