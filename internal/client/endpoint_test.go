package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/wsecho/internal/testhelpers"
	"github.com/gorilla/websocket"
)

func echoURL(t *testing.T) string {
	t.Helper()
	_, ts := testhelpers.StartEchoServer(t, nil)
	return testhelpers.WebSocketURL(ts.URL, "/")
}

func connect(t *testing.T, e *Endpoint, url string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := e.Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect(%s) failed: %v", url, err)
	}
	t.Cleanup(func() { e.Shutdown() })
	return id
}

func waitForMessages(t *testing.T, e *Endpoint, id, n int) Metadata {
	t.Helper()
	var md Metadata
	ok := testhelpers.WaitFor(testhelpers.DefaultTimeout, func() bool {
		md, _ = e.Metadata(id)
		return len(md.Messages) >= n
	})
	if !ok {
		t.Fatalf("Expected at least %d messages, got %v", n, md.Messages)
	}
	return md
}

func waitForStatus(t *testing.T, e *Endpoint, id int, want Status) Metadata {
	t.Helper()
	var md Metadata
	ok := testhelpers.WaitFor(testhelpers.DefaultTimeout, func() bool {
		md, _ = e.Metadata(id)
		return md.Status == want
	})
	if !ok {
		t.Fatalf("Expected status %s, got %s", want, md.Status)
	}
	return md
}

func TestEndpointSendAndHistory(t *testing.T) {
	url := echoURL(t)
	e := NewEndpoint()
	id := connect(t, e, url)

	if id != 0 {
		t.Errorf("Expected first id to be 0, got %d", id)
	}

	waitForMessages(t, e, id, 1)
	if err := e.Send(id, "Hello, WebSocket!"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	md := waitForMessages(t, e, id, 3)
	want := []string{
		"Welcome to the WebSocket server!",
		">> Hello, WebSocket!",
		"Hello, you sent: Hello, WebSocket!",
	}
	if strings.Join(md.Messages, "|") != strings.Join(want, "|") {
		t.Errorf("History = %q, want %q", md.Messages, want)
	}
	if md.Status != StatusOpen {
		t.Errorf("Expected open status, got %s", md.Status)
	}
	if md.URI != url {
		t.Errorf("Expected URI %s, got %s", url, md.URI)
	}
}

func TestEndpointIDsIncrease(t *testing.T) {
	url := echoURL(t)
	e := NewEndpoint()

	for want := 0; want < 3; want++ {
		if got := connect(t, e, url); got != want {
			t.Errorf("Connect returned id %d, want %d", got, want)
		}
	}

	if ids := e.IDs(); len(ids) != 3 || ids[0] != 0 || ids[2] != 2 {
		t.Errorf("Unexpected ids %v", ids)
	}
}

func TestEndpointConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	e := NewEndpoint()
	id, err := e.Connect(context.Background(), "ws://"+addr+"/")
	if err == nil {
		t.Fatal("Expected dial to a closed port to fail")
	}

	md, ok := e.Metadata(id)
	if !ok {
		t.Fatal("Failed connection should still have metadata")
	}
	if md.Status != StatusFailed {
		t.Errorf("Expected status Failed, got %s", md.Status)
	}
	if md.Reason == "" {
		t.Error("Expected a failure reason")
	}

	if err := e.Send(id, "x"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send on failed connection: got %v, want ErrNotOpen", err)
	}
}

func TestEndpointUnknownConnection(t *testing.T) {
	e := NewEndpoint()

	if err := e.Send(42, "x"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("Send: got %v, want ErrUnknownConnection", err)
	}
	if err := e.Close(42, websocket.CloseNormalClosure, ""); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("Close: got %v, want ErrUnknownConnection", err)
	}
	if _, ok := e.Metadata(42); ok {
		t.Error("Metadata should not be found for an unknown id")
	}
}

func TestEndpointCloseRecordsReason(t *testing.T) {
	e := NewEndpoint()
	id := connect(t, e, echoURL(t))
	waitForMessages(t, e, id, 1)

	if err := e.Close(id, websocket.CloseNormalClosure, "bye"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	md := waitForStatus(t, e, id, StatusClosed)
	if !strings.HasPrefix(md.Reason, "close code: 1000 (Normal close)") {
		t.Errorf("Unexpected close reason %q", md.Reason)
	}

	if err := e.Send(id, "late"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send after close: got %v, want ErrNotOpen", err)
	}
}

func TestEndpointCloseRejectsInvalidCode(t *testing.T) {
	e := NewEndpoint()
	id := connect(t, e, echoURL(t))
	waitForMessages(t, e, id, 1)

	for _, code := range []int{0, 999, 1005, 1006, 1015, 5000} {
		if err := e.Close(id, code, ""); !errors.Is(err, ErrInvalidCloseCode) {
			t.Errorf("Close(%d): got %v, want ErrInvalidCloseCode", code, err)
		}
	}

	if md, _ := e.Metadata(id); md.Status != StatusOpen {
		t.Errorf("Rejected close codes must leave the connection open, got %s", md.Status)
	}
}

func TestValidCloseCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{999, false},
		{1000, true},
		{1001, true},
		{1003, true},
		{1004, false},
		{1005, false},
		{1006, false},
		{1007, true},
		{1011, true},
		{1014, true},
		{1015, false},
		{2000, false},
		{3000, true},
		{4999, true},
		{5000, false},
	}

	for _, tt := range tests {
		if got := ValidCloseCode(tt.code); got != tt.want {
			t.Errorf("ValidCloseCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestEndpointHistoryBounded(t *testing.T) {
	var replies atomic.Int32
	e := NewEndpoint(
		WithHistorySize(3),
		WithMessageHandler(func(_ int, msg string) {
			if strings.HasPrefix(msg, "Hello, you sent: ") {
				replies.Add(1)
			}
		}),
	)
	id := connect(t, e, echoURL(t))

	for _, m := range []string{"m0", "m1", "m2", "m3", "m4"} {
		if err := e.Send(id, m); err != nil {
			t.Fatalf("Send(%s) failed: %v", m, err)
		}
	}
	if !testhelpers.WaitFor(testhelpers.DefaultTimeout, func() bool { return replies.Load() == 5 }) {
		t.Fatalf("Expected 5 replies, got %d", replies.Load())
	}

	md, _ := e.Metadata(id)
	if len(md.Messages) != 3 {
		t.Fatalf("Expected history of 3, got %q", md.Messages)
	}
	if last := md.Messages[2]; last != "Hello, you sent: m4" {
		t.Errorf("Expected newest entry last, got %q", last)
	}
}

func TestEndpointRecordsBinaryAsHexAndServerHeader(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, http.Header{"Server": {"test-server/1.0"}})
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad, 0xbe, 0xef})
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)

	e := NewEndpoint()
	id := connect(t, e, testhelpers.WebSocketURL(ts.URL, "/"))

	md := waitForMessages(t, e, id, 1)
	if md.Messages[0] != "deadbeef" {
		t.Errorf("Expected hex-encoded binary frame, got %q", md.Messages[0])
	}
	if md.Server != "test-server/1.0" {
		t.Errorf("Expected remote server header, got %q", md.Server)
	}
}

func TestEndpointShutdown(t *testing.T) {
	url := echoURL(t)
	e := NewEndpoint()
	first := connect(t, e, url)
	second := connect(t, e, url)

	if err := e.Close(first, websocket.CloseNormalClosure, ""); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	waitForStatus(t, e, first, StatusClosed)

	closed := e.Shutdown()
	if len(closed) != 1 || closed[0] != second {
		t.Errorf("Shutdown closed %v, want [%d]", closed, second)
	}

	md, _ := e.Metadata(second)
	if md.Status != StatusClosed {
		t.Errorf("Expected connection %d to be closed, got %s", second, md.Status)
	}
	if !strings.Contains(md.Reason, "1001") {
		t.Errorf("Expected going-away close code in reason, got %q", md.Reason)
	}
}

func TestMetadataString(t *testing.T) {
	md := Metadata{
		ID:       1,
		URI:      "ws://localhost:8080",
		Status:   StatusOpen,
		Messages: []string{"Welcome", ">> hi"},
	}

	want := "> URI: ws://localhost:8080\n" +
		"> Status: Open\n" +
		"> Remote Server: None Specified\n" +
		"> Error/close reason: N/A\n" +
		"> Messages Processed: (2)\n" +
		"Welcome\n" +
		">> hi\n"
	if got := md.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}

func TestCloseCodeName(t *testing.T) {
	if got := closeCodeName(websocket.CloseGoingAway); got != "Going away" {
		t.Errorf("closeCodeName(1001) = %q", got)
	}
	if got := closeCodeName(4321); got != "Unknown" {
		t.Errorf("closeCodeName(4321) = %q", got)
	}
}
