// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait = 10 * time.Second

	sendBufferSize = 256
)

// Client represents one echo connection. Frames queued on send are written
// by writePump in order, one WebSocket text frame per entry.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	replyPrefix    string
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	pongWait       time.Duration

	// closing is closed when the read side stops; writerDone when writePump returns.
	closing     chan struct{}
	writerDone  chan struct{}
	closingOnce sync.Once
}

// NewClient creates a new Client for conn using the echo and limit settings in cfg.
// The client's send channel is buffered to handle message queuing.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	if conn != nil && cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		replyPrefix:    cfg.ReplyPrefix,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		pongWait:       cfg.PongWait,
		closing:        make(chan struct{}),
		writerDone:     make(chan struct{}),
	}
}

// queue hands message to the write pump. It blocks while the send buffer is
// full and returns false once the write pump has stopped.
func (c *Client) queue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	case <-c.writerDone:
		return false
	}
}

func (c *Client) stopWriting() {
	c.closingOnce.Do(func() {
		close(c.closing)
	})
}

// setupReadConnection configures the read deadline and pong handler when
// keepalive is enabled. Without it a connection lives until the transport closes.
func (c *Client) setupReadConnection() {
	if c.pongWait <= 0 {
		return
	}
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

func (c *Client) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		log.Printf("Error setting read deadline for %s: %v", c.addr, err)
	}
}

// handleReadError logs the read error at the right level for its kind.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return
	}

	if websocket.IsUnexpectedCloseError(err) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
}

// allow reports whether the next message fits in the client's rate budget.
func (c *Client) allow() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// readPump echoes every inbound frame until the connection fails or closes.
// Text and binary frames are treated alike.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.stopWriting()
	}()

	c.setupReadConnection()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		log.Printf("Received: %s", payload)

		if c.pongWait > 0 {
			c.extendReadDeadline()
		}

		if !c.allow() {
			continue
		}

		if !c.queue(Reply(c.replyPrefix, payload)) {
			return
		}
	}
}

func (c *Client) writePump() {
	// A nil channel never fires, so no pings are sent while keepalive is off.
	var pings <-chan time.Time
	if c.pongWait > 0 {
		ticker := time.NewTicker(c.pongWait * 9 / 10)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer func() {
		close(c.writerDone)
		c.closeConnection()
	}()

	for c.processWriteEvent(pings) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(pings <-chan time.Time) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-pings:
		return c.handlePing()
	case <-c.closing:
		return c.writeCloseMessage()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection for %s: %v", c.addr, err)
		}
	}
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) && !errors.Is(err, websocket.ErrCloseSent) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeTextMessage writes message as a single text frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}

// goingAway tells the peer the server is shutting down and closes the socket,
// which unblocks readPump.
func (c *Client) goingAway() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) && !errors.Is(err, websocket.ErrCloseSent) {
			log.Printf("Error writing shutdown close message to %s: %v", c.addr, err)
		}
	}
	c.closeConnection()
}
