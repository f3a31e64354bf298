package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"burnrouter/native/access"
	"burnrouter/native/assets"
	"burnrouter/native/fees"
	"burnrouter/native/settlement"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&access.UnauthorizedError{}, http.StatusForbidden},
		{settlement.ErrEnforcedPause, http.StatusConflict},
		{settlement.ErrForwarderNotSet, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", assets.ErrUnknownAsset), http.StatusNotFound},
		{&settlement.BatchTooLargeError{Got: 51, Max: 50}, http.StatusUnprocessableEntity},
		{&fees.FeeDivisorTooLowError{Got: 1, Min: 40}, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: timeout", settlement.ErrForwardFailed), http.StatusBadGateway},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Fatalf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	if v, err := parseAmount("value", ""); err != nil || v != nil {
		t.Fatalf("empty amount: %v %v", v, err)
	}
	if _, err := parseAmount("value", "-1"); err == nil {
		t.Fatalf("expected negative amount to fail")
	}
	if _, err := parseAmount("value", "1.5"); err == nil {
		t.Fatalf("expected fractional amount to fail")
	}
	v, err := parseAmount("value", "1000")
	if err != nil || v.Int64() != 1000 {
		t.Fatalf("unexpected parse result %v %v", v, err)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	if !limiter.allow("a") {
		t.Fatalf("first request should pass")
	}
	if limiter.allow("a") {
		t.Fatalf("second request should be throttled")
	}
	now = now.Add(10 * time.Minute)
	limiter.allow("b")
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle visitor was not evicted")
	}
}

func TestClientIDIgnoresHeadersFromUntrustedPeers(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimit{RequestsPerMinute: 1}, nil)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	req.RemoteAddr = "192.0.2.10:7000"
	req.Header.Set("X-Real-IP", "198.51.100.1")
	req.Header.Set("X-Forwarded-For", "198.51.100.2")
	if got := limiter.clientID(req); got != "ip:192.0.2.10" {
		t.Fatalf("spoofed header changed the client: %q", got)
	}
}

func TestClientIDHonorsTrustedProxies(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimit{RequestsPerMinute: 1, TrustedProxies: []string{"10.0.0.0/8", "192.0.2.1"}}, nil)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	req.RemoteAddr = "10.0.0.5:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7, 192.0.2.1")
	if got := limiter.clientID(req); got != "ip:198.51.100.7" {
		t.Fatalf("expected nearest untrusted hop, got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.8")
	if got := limiter.clientID(req); got != "ip:198.51.100.8" {
		t.Fatalf("expected X-Real-IP from trusted proxy, got %q", got)
	}

	if _, err := NewRateLimiter(RateLimit{TrustedProxies: []string{"not-an-ip"}}, nil); err == nil {
		t.Fatalf("expected invalid proxy to be rejected")
	}
}

func TestExtractBearer(t *testing.T) {
	if got := extractBearer("Bearer abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := extractBearer("bearer  abc "); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := extractBearer("Basic abc"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestRequestIDReplacesMalformed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "" || seen == "not-a-uuid" {
		t.Fatalf("expected generated request id, got %q", seen)
	}
	if rec.Header().Get(requestIDHeader) != seen {
		t.Fatalf("response header does not match context id")
	}
}
