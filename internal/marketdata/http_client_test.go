package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func failingClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           5 * time.Second,
		MaxRetries:        0,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      time.Millisecond,
		RateLimit:         1000,
		CircuitBreakerMax: 3,
	}
}

func TestClientCircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(failingClientConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Get(ctx, server.URL); err == nil {
			t.Fatal("expected an error from the failing server")
		}
	}

	_, err := client.Get(ctx, server.URL)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("expected the breaker to be open after 3 consecutive failures, got %v", err)
	}
}

func TestClientSuccessResetsFailureCount(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Two failures, one success, then failures again.
		if calls == 3 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(failingClientConfig(), nil)
	ctx := context.Background()

	_, _ = client.Get(ctx, server.URL)
	_, _ = client.Get(ctx, server.URL)
	resp, err := client.Get(ctx, server.URL)
	if err != nil {
		t.Fatalf("expected the third request to succeed, got %v", err)
	}
	resp.Body.Close()

	// Two more failures sit below the threshold because the success reset
	// the count.
	_, _ = client.Get(ctx, server.URL)
	_, err = client.Get(ctx, server.URL)
	if err != nil && strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatal("breaker should not open before 3 consecutive failures")
	}
}

func TestClientConcurrentFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(failingClientConfig(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, _ = client.Get(ctx, server.URL)
			}
		}()
	}
	wg.Wait()

	_, err := client.Get(ctx, server.URL)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("breaker should be open after sustained concurrent failures, got %v", err)
	}
}
