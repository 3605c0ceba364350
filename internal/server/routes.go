// Package server wires HTTP handlers into a ServeMux for the echo service.
package server

import "net/http"

// routes configures the ServeMux. Every path that is not otherwise routed is
// treated as the WebSocket endpoint, so ws://host:port/ reaches the echo handler.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
