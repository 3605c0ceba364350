// Package server implements the WebSocket echo server.
//
// Every accepted connection first receives a welcome frame and then gets each
// inbound frame echoed back with a fixed prefix. Connections are independent:
// each has its own read and write goroutine, and the Hub only tracks them so
// they can be closed on shutdown. Configuration, hub management, clients,
// routing and HTTP handlers live in separate files.
package server
