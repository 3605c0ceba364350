// Package client implements an interactive WebSocket client that manages
// several numbered connections and records what each one sends and receives.
package client

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
)

// Status is the lifecycle state of a client connection.
type Status string

// Connection states.
const (
	StatusConnecting Status = "Connecting"
	StatusOpen       Status = "Open"
	StatusFailed     Status = "Failed"
	StatusClosed     Status = "Closed"
)

const (
	// DefaultHistorySize is the number of history entries kept per connection.
	DefaultHistorySize = 256

	writeWait = 10 * time.Second

	sentPrefix = ">> "
)

// Connection is one client connection and its metadata.
type Connection struct {
	id  int
	uri string

	mu          sync.Mutex
	conn        *websocket.Conn
	status      Status
	server      string
	reason      string
	history     *queue.Queue
	historySize int

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
	done    chan struct{}
}

func newConnection(id int, uri string, historySize int) *Connection {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Connection{
		id:          id,
		uri:         uri,
		status:      StatusConnecting,
		history:     queue.New(),
		historySize: historySize,
		done:        make(chan struct{}),
	}
}

// Metadata is a point-in-time copy of a connection's state.
type Metadata struct {
	ID       int
	URI      string
	Status   Status
	Server   string
	Reason   string
	Messages []string
}

// String renders the metadata the way the show command prints it.
func (m Metadata) String() string {
	server := m.Server
	if server == "" {
		server = "None Specified"
	}
	reason := m.Reason
	if reason == "" {
		reason = "N/A"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "> URI: %s\n", m.URI)
	fmt.Fprintf(&b, "> Status: %s\n", m.Status)
	fmt.Fprintf(&b, "> Remote Server: %s\n", server)
	fmt.Fprintf(&b, "> Error/close reason: %s\n", reason)
	fmt.Fprintf(&b, "> Messages Processed: (%d)\n", len(m.Messages))
	for _, msg := range m.Messages {
		b.WriteString(msg)
		b.WriteByte('\n')
	}
	return b.String()
}

func (c *Connection) metadata() Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]string, 0, c.history.Length())
	for i := 0; i < c.history.Length(); i++ {
		messages = append(messages, c.history.Get(i).(string))
	}

	return Metadata{
		ID:       c.id,
		URI:      c.uri,
		Status:   c.status,
		Server:   c.server,
		Reason:   c.reason,
		Messages: messages,
	}
}

// record appends entry to the history, dropping the oldest entry when full.
func (c *Connection) record(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.history.Length() >= c.historySize {
		c.history.Remove()
	}
	c.history.Add(entry)
}

func (c *Connection) opened(conn *websocket.Conn, server string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	c.status = StatusOpen
	c.server = server
}

func (c *Connection) failed(server string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = StatusFailed
	c.server = server
	c.reason = err.Error()
	close(c.done)
}

func (c *Connection) closed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = StatusClosed

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.reason = fmt.Sprintf("close code: %d (%s), close reason: %s",
			closeErr.Code, closeCodeName(closeErr.Code), closeErr.Text)
		return
	}
	if err != nil {
		c.reason = err.Error()
	}
}

func (c *Connection) openConn() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusOpen || c.conn == nil {
		return nil, fmt.Errorf("connection %d is %s: %w", c.id, strings.ToLower(string(c.status)), ErrNotOpen)
	}
	return c.conn, nil
}

// readLoop records inbound frames until the connection ends. Text frames are
// kept verbatim and binary frames as hex. handler, when set, sees every entry.
func (c *Connection) readLoop(conn *websocket.Conn, handler MessageHandler) {
	defer close(c.done)
	defer func() { _ = conn.Close() }()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.closed(err)
			return
		}

		entry := string(payload)
		if messageType == websocket.BinaryMessage {
			entry = hex.EncodeToString(payload)
		}
		c.record(entry)

		if handler != nil {
			handler(c.id, entry)
		}
	}
}

func (c *Connection) send(message string) error {
	conn, err := c.openConn()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Recorded before writing so the entry precedes any reply to it.
	c.record(sentPrefix + message)

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		return fmt.Errorf("send on connection %d: %w", c.id, err)
	}
	return nil
}

// close starts the closing handshake. The read loop finishes it when the peer answers.
func (c *Connection) close(code int, reason string) error {
	conn, err := c.openConn()
	if err != nil {
		return err
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("close connection %d: %w", c.id, err)
	}
	return nil
}

// forceClose drops the socket if the peer never completed the closing handshake.
func (c *Connection) forceClose(wait time.Duration) {
	select {
	case <-c.done:
		return
	case <-time.After(wait):
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.done
}

// ValidCloseCode reports whether a peer accepts code in a close frame: one
// of the registered codes 1000-1003 and 1007-1014, or an application code in
// 3000-4999. 1005, 1006 and 1015 are reserved for reporting and never sent.
func ValidCloseCode(code int) bool {
	switch {
	case code >= websocket.CloseNormalClosure && code <= websocket.CloseUnsupportedData:
		return true
	case code >= websocket.CloseInvalidFramePayloadData && code <= websocket.CloseTryAgainLater:
		return true
	case code == 1014:
		return true
	}
	return code >= 3000 && code <= 4999
}

var closeCodeNames = map[int]string{
	websocket.CloseNormalClosure:           "Normal close",
	websocket.CloseGoingAway:               "Going away",
	websocket.CloseProtocolError:           "Protocol error",
	websocket.CloseUnsupportedData:         "Unsupported data",
	websocket.CloseNoStatusReceived:        "No status set",
	websocket.CloseAbnormalClosure:         "Abnormal close",
	websocket.CloseInvalidFramePayloadData: "Invalid payload",
	websocket.ClosePolicyViolation:         "Policy violation",
	websocket.CloseMessageTooBig:           "Message too big",
	websocket.CloseMandatoryExtension:      "Extension required",
	websocket.CloseInternalServerErr:       "Internal server error",
	websocket.CloseServiceRestart:          "Service restart",
	websocket.CloseTryAgainLater:           "Try again later",
	websocket.CloseTLSHandshake:            "TLS handshake failure",
}

func closeCodeName(code int) string {
	if name, ok := closeCodeNames[code]; ok {
		return name
	}
	return "Unknown"
}
