package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/skytrace/copilot/pkg/logger"
)

func newTestWebServer(t *testing.T, addr string, metrics http.Handler) *WebServer {
	t.Helper()
	rpc := NewRPCServer(&RPCConfig{Secret: testSecret}, logger.NewNopLogger(), nil, &fakeScheduler{}, nil)
	t.Cleanup(rpc.Close)
	return NewWebServer(logger.NewNopLogger(), addr, rpc, metrics)
}

func TestWebServerHandler_Health(t *testing.T) {
	ws := newTestWebServer(t, "", nil)
	rec := httptest.NewRecorder()
	ws.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestWebServerHandler_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "copilot_windows_total 3\n")
	})
	ws := newTestWebServer(t, "", metrics)
	rec := httptest.NewRecorder()
	ws.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "copilot_windows_total 3") {
		t.Fatalf("metrics body = %q", rec.Body.String())
	}

	ws = newTestWebServer(t, "", nil)
	rec = httptest.NewRecorder()
	ws.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler = %d", rec.Code)
	}
}

func TestWebServerHandler_RPCRequiresToken(t *testing.T) {
	ws := newTestWebServer(t, "", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jsonrpc",
		strings.NewReader(`{"jsonrpc":"2.0","method":"system.getVersion","id":1}`))
	ws.handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ws.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jsonrpc", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /jsonrpc = %d", rec.Code)
	}
}

func waitServing(t *testing.T, network, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial(network, addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s %s never accepted", network, addr)
}

func TestWebServerServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ws := newTestWebServer(t, "", nil)
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Serve(ln) }()
	waitServing(t, "tcp", ln.Addr().String())

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestWebServerStartUnixSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets")
	}
	sock := filepath.Join(t.TempDir(), "copilot.sock")
	ws := newTestWebServer(t, unixPrefix+sock, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Start() }()
	waitServing(t, "unix", sock)

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}}
	resp, err := client.Get("http://copilot/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestWebServerShutdown_NotStarted(t *testing.T) {
	ws := newTestWebServer(t, "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown before start: %v", err)
	}
}
