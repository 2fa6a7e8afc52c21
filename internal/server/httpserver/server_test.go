package httpserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/yndnr/geoattend-go/internal/telemetry/logger"
)

func TestNew(t *testing.T) {
	h := okHandler()
	s := New(Options{Addr: ":8080", ReadTimeout: time.Second, Logger: logger.Discard()}, h)
	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.httpServer.Addr != ":8080" {
		t.Errorf("Addr = %q", s.httpServer.Addr)
	}
	if s.httpServer.ReadHeaderTimeout != time.Second {
		t.Errorf("ReadHeaderTimeout = %v, want 1s", s.httpServer.ReadHeaderTimeout)
	}
	if s.Handler() == nil {
		t.Error("handler is nil")
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Options{Logger: logger.Discard()}, okHandler())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()
	if cfg.GlobalRateLimit <= 0 {
		t.Error("GlobalRateLimit should be positive")
	}
	if !cfg.MetricsAuthRequired {
		t.Error("metrics should require auth by default")
	}
	if cfg.MaxBodyBytes <= 0 {
		t.Error("MaxBodyBytes should be positive")
	}
}
