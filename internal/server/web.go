package server

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/skytrace/copilot/pkg/logger"
)

// WebServer serves the JSON-RPC endpoints and, when given, /metrics.
//
//	POST /jsonrpc     JSON-RPC over HTTP (Bearer auth)
//	GET  /jsonrpc/ws  JSON-RPC over WebSocket with pushes (Bearer or ?token=)
//	GET  /metrics     Prometheus metrics
//	GET  /healthz     liveness
type WebServer struct {
	addr    string
	l       logger.Logger
	rpc     *RPCServer
	metrics http.Handler
	server  *http.Server
	mu      sync.Mutex
}

// NewWebServer creates a web server listening on addr, a TCP host:port or
// "unix:" followed by a socket path. metrics may be nil.
func NewWebServer(l logger.Logger, addr string, rpc *RPCServer, metrics http.Handler) *WebServer {
	return &WebServer{addr: addr, l: l, rpc: rpc, metrics: metrics}
}

func (s *WebServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /jsonrpc", s.rpc.auth.bearer(s.rpc.bridge))
	mux.Handle("GET /jsonrpc/ws", s.rpc.auth.upgrade(http.HandlerFunc(s.rpc.serveWS)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start listens and serves until Shutdown.
func (s *WebServer) Start() error {
	ln, err := listen(s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *WebServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{Handler: s.handler()}
	srv := s.server
	s.mu.Unlock()

	s.l.Info("rpc: listening on %s", ln.Addr())
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil // Expected during shutdown
	}
	return err
}

// Shutdown gracefully stops the web server.
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
