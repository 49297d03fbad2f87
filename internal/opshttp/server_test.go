package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/devint-cl/devint-web/internal/health"
	"github.com/devint-cl/devint-web/internal/log"
)

func serveFrom(h http.Handler, remote, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_Routes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP ratelimit_denied_total\n"))
	})
	h := NewHandler(log.Nop(), &Options{
		Metrics:   metrics,
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "content: no active snapshot"),
	})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/-/healthy", 200, "ok"},
		{"/-/ready", 503, "no active snapshot"},
		{"/metrics", 200, "ratelimit_denied_total"},
		{"/debug/pprof/", 404, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serveFrom(h, "127.0.0.1:40000", tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestNewHandler_NoMetrics(t *testing.T) {
	h := NewHandler(log.Nop(), &Options{})
	if rec := serveFrom(h, "10.0.0.5:1", "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestNewHandler_Pprof(t *testing.T) {
	h := NewHandler(log.Nop(), &Options{EnablePprof: true})
	rec := serveFrom(h, "127.0.0.1:1", "/debug/pprof/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNewHandler_PublicPeerRejected(t *testing.T) {
	h := NewHandler(log.Nop(), &Options{Health: health.Fixed(true, "")})
	if rec := serveFrom(h, "8.8.8.8:5000", "/-/healthy"); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestNewHandler_RecoversPanics(t *testing.T) {
	panics := 0
	h := NewHandler(log.Nop(), &Options{
		Metrics:      http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("collector bug") }),
		UseRecoverMW: true,
		OnPanic:      func() { panics++ },
	})
	rec := serveFrom(h, "127.0.0.1:1", "/metrics")
	if rec.Code != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("status = %d, panics = %d", rec.Code, panics)
	}
}

func TestRequireNonPublicNetwork(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := requireNonPublicNetwork(log.Nop(), &Options{TrustedNets: []netip.Prefix{netip.MustParsePrefix("100.64.0.0/10")}}, ok)

	tests := map[string]int{
		"127.0.0.1:12345":         200,
		"[::1]:12345":             200,
		"10.0.0.1:8080":           200,
		"172.16.0.1:8080":         200,
		"192.168.1.1:8080":        200,
		"169.254.1.1:8080":        200,
		"[fd00::1]:80":            200,
		"[::ffff:10.0.0.1]:12345": 200,
		"8.8.8.8:12345":           403,
		"1.1.1.1:443":             403,
		"203.0.113.1:80":          403,
		"198.51.100.1:9000":       403,
		"[::ffff:8.8.8.8]:12345":  403,
		"[2001:4860::8888]:443":   403,
		"not-an-address":          403,
		"":                        403,
		"999.999.999.999:8080":    403,
		"10.0.0.1":                403,
		"100.100.1.1:443":         200,
		"100.128.0.1:443":         403,
	}
	for addr, want := range tests {
		if rec := serveFrom(h, addr, "/-/healthy"); rec.Code != want {
			t.Errorf("RemoteAddr %q: status = %d, want %d", addr, rec.Code, want)
		}
	}
}

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestStart_Lifecycle(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()

	stop, err := Start(ctx, log.Nop(), &Options{Port: port, Health: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("status = %d body %q", resp.StatusCode, body)
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)); err == nil {
		t.Fatal("server still answering after stop")
	}
}

func TestStart_PortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if _, err := Start(context.Background(), log.Nop(), &Options{Port: port}); err == nil {
		t.Fatal("expected listen error on busy port")
	}
}
