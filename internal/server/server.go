// Package server constructs, starts and stops the echo service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server is the echo server. It owns its configuration, the WebSocket upgrader,
// the hub tracking live clients and the underlying HTTP server.
type Server struct {
	cfg        Config
	hub        *Hub
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New creates a Server from cfg, or from defaults when cfg is nil. The hub
// starts immediately, so Handler can be served before ListenAndServe is called.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}

	s := &Server{
		cfg: cfg.sanitized(),
		hub: NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if policy := newOriginPolicy(s.cfg.AllowedOrigins); policy != nil {
		s.upgrader.CheckOrigin = policy.checkOrigin
	}
	s.httpServer = CreateServer(s.cfg.Port, s.routes())

	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")

	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// The timeouts only apply until a connection is upgraded.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Config returns a copy of the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Handler returns the HTTP handler serving the echo endpoint, health check and test page.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.Count()
}

// ListenAndServe binds the configured port and serves until ctx is cancelled,
// then shuts down gracefully. A bind failure is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Printf("WebSocket server is running on %s", wsURL(ln.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(s.cfg.ShutdownTimeout)
	}
}

// Shutdown stops accepting new connections, closes every connected client and
// waits up to timeout for their goroutines to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		errs = append(errs, err)
	}

	remaining := time.Until(deadline(ctx, timeout))
	if err := s.hub.Shutdown(remaining); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		log.Println("Server shutdown completed")
	}
	return errors.Join(errs...)
}

func deadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

// wsURL renders the address clients should dial, e.g. ws://localhost:8080.
func wsURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "ws://" + addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "ws://" + net.JoinHostPort(host, port)
}
