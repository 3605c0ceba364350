// Package testhelpers provides common utilities and helper functions for testing the echo server.
//
// It provides functions for starting test servers, dialing WebSocket clients, and asserting
// response properties to reduce code duplication in test files.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/wsecho/internal/server"
	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every read helper in this package.
const DefaultTimeout = 2 * time.Second

// StartEchoServer starts an echo server behind httptest using cfg, or defaults when cfg is nil.
// Both are shut down when the test finishes.
func StartEchoServer(t *testing.T, cfg *server.Config) (*server.Server, *httptest.Server) {
	t.Helper()

	srv := server.New(cfg)
	testServer := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(DefaultTimeout)
		testServer.Close()
	})
	return srv, testServer
}

// WebSocketURL converts an httptest base URL into the WebSocket URL for path.
func WebSocketURL(baseURL, path string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

// ConnectWebSocket dials url and registers the connection for closing at the end of the test.
func ConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, err := DialWebSocket(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWebSocket creates a WebSocket connection to url with optional request headers.
func DialWebSocket(url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ConnectAndExpectWelcome dials url and consumes the welcome frame.
func ConnectAndExpectWelcome(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn := ConnectWebSocket(t, url)
	if got := ReadText(t, conn); got != server.DefaultWelcomeMessage {
		t.Fatalf("Expected welcome %q, got %q", server.DefaultWelcomeMessage, got)
	}
	return conn
}

// SendText sends a text frame, failing the test on error.
func SendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("Failed to send %q: %v", text, err)
	}
}

// ReadText reads the next frame within DefaultTimeout and requires it to be a text frame.
func ReadText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("Expected text frame, got message type %d", messageType)
	}
	return string(payload)
}

// ExpectNoMessage fails the test if conn receives a data frame within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %q", payload)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls cond until it returns true or timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
