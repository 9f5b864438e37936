package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPIgnoresForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	if ip := clientIP(req); ip != "10.1.2.3" {
		t.Errorf("clientIP = %q, want the connection address", ip)
	}
}

func TestPerIPLimitNotMintedPerHeader(t *testing.T) {
	// Generous global bucket, one request per client. Rotating forwarding
	// headers must not grant fresh buckets.
	rl := NewRateLimiter(1000, 1, 1, 100)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:54321"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}

	if allowed != 1 {
		t.Errorf("allowed = %d requests from one connection, want 1", allowed)
	}
}
