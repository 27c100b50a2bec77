package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

func newTestServer(allowed []string) *Server {
	return NewServer(New(), ":9090", "/metrics", allowed, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewServerAllowedIPs(t *testing.T) {
	tests := []struct {
		name       string
		allowedIPs []string
		wantCount  int
	}{
		{"empty list", nil, 0},
		{"single IP", []string{"192.168.1.1"}, 1},
		{"CIDR notation", []string{"192.168.0.0/16", "10.0.0.0/8"}, 2},
		{"with whitespace", []string{"  192.168.1.1 ", ""}, 1},
		{"with invalid", []string{"192.168.1.1", "invalid", "10.0.0.0/33"}, 1},
		{"IPv6", []string{"::1", "fe80::/10"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.allowedIPs)
			if len(s.allowed) != tt.wantCount {
				t.Errorf("expected %d allowed networks, got %d", tt.wantCount, len(s.allowed))
			}
		})
	}
}

func TestIsAllowed(t *testing.T) {
	s := newTestServer([]string{"192.168.1.100", "10.0.0.0/8", "::1", "fe80::/10"})

	tests := []struct {
		ip      string
		allowed bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"::1", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := s.isAllowed(netip.MustParseAddr(tt.ip)); got != tt.allowed {
				t.Errorf("isAllowed(%s) = %v, want %v", tt.ip, got, tt.allowed)
			}
		})
	}
}

func TestHandlerFiltering(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		remoteAddr string
		headers    map[string]string
		path       string
		wantStatus int
	}{
		{"no filtering when empty", nil, "1.2.3.4:1234", nil, "/metrics", http.StatusOK},
		{"allowed IP", []string{"192.168.1.0/24"}, "192.168.1.100:1234", nil, "/metrics", http.StatusOK},
		{"denied IP", []string{"192.168.1.0/24"}, "10.0.0.1:1234", nil, "/metrics", http.StatusForbidden},
		{"forwarded IP allowed", []string{"10.0.0.0/8"}, "127.0.0.1:1234", map[string]string{"X-Forwarded-For": "10.0.0.1"}, "/metrics", http.StatusOK},
		{"real IP denied", []string{"10.0.0.0/8"}, "10.0.0.1:1234", map[string]string{"X-Real-IP": "172.16.0.1"}, "/metrics", http.StatusForbidden},
		{"health is never filtered", []string{"192.168.1.0/24"}, "10.0.0.1:1234", nil, "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(tt.allowed).Handler()

			req := httptest.NewRequest("GET", tt.path, nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	s := newTestServer(nil)
	s.metrics.RunsTotal.WithLabelValues("exhausted").Inc()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "sendry_campaign_runs_total") {
		t.Error("metrics output missing sendry_campaign_runs_total")
	}
}
