package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrUnknownConnection is returned for ids the endpoint never handed out.
	ErrUnknownConnection = errors.New("no connection found")

	// ErrNotOpen is returned when sending on or closing a connection that is not open.
	ErrNotOpen = errors.New("connection is not open")

	// ErrInvalidCloseCode is returned for close codes a peer must reject.
	ErrInvalidCloseCode = errors.New("invalid close code")
)

// closeWait bounds how long Shutdown waits for a peer to answer a close frame.
const closeWait = time.Second

// MessageHandler is called for every frame a connection receives, with the
// entry as recorded in the history.
type MessageHandler func(id int, message string)

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithDialer replaces the default dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(e *Endpoint) {
		e.dialer = d
	}
}

// WithHistorySize bounds the per-connection history.
func WithHistorySize(n int) Option {
	return func(e *Endpoint) {
		e.historySize = n
	}
}

// WithMessageHandler registers a callback for inbound frames.
func WithMessageHandler(h MessageHandler) Option {
	return func(e *Endpoint) {
		e.onMessage = h
	}
}

// Endpoint owns a set of numbered client connections. Ids start at 0 and are
// never reused.
type Endpoint struct {
	dialer      *websocket.Dialer
	historySize int
	onMessage   MessageHandler

	mu     sync.Mutex
	conns  map[int]*Connection
	nextID int
}

// NewEndpoint creates an Endpoint with the given options.
func NewEndpoint(opts ...Option) *Endpoint {
	e := &Endpoint{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		historySize: DefaultHistorySize,
		conns:       make(map[int]*Connection),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connect dials uri and returns the id assigned to the connection. The id is
// valid even when dialing fails; the failure is kept in the connection metadata.
func (e *Endpoint) Connect(ctx context.Context, uri string) (int, error) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	c := newConnection(id, uri, e.historySize)
	e.conns[id] = c
	e.mu.Unlock()

	conn, resp, err := e.dialer.DialContext(ctx, uri, nil)
	server := ""
	if resp != nil {
		server = resp.Header.Get("Server")
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}
	if err != nil {
		c.failed(server, err)
		return id, fmt.Errorf("connect to %s: %w", uri, err)
	}

	c.opened(conn, server)
	go c.readLoop(conn, e.onMessage)
	return id, nil
}

func (e *Endpoint) lookup(id int) (*Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w with id %d", ErrUnknownConnection, id)
	}
	return c, nil
}

// Send sends message as a text frame on connection id and records it in the history.
func (e *Endpoint) Send(id int, message string) error {
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	return c.send(message)
}

// Close starts the closing handshake on connection id with the given close code and reason.
func (e *Endpoint) Close(id int, code int, reason string) error {
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !ValidCloseCode(code) {
		return fmt.Errorf("%w: %d", ErrInvalidCloseCode, code)
	}
	return c.close(code, reason)
}

// Metadata returns a snapshot of connection id.
func (e *Endpoint) Metadata(id int) (Metadata, bool) {
	c, err := e.lookup(id)
	if err != nil {
		return Metadata{}, false
	}
	return c.metadata(), true
}

// IDs returns the ids of every connection created so far, in ascending order.
func (e *Endpoint) IDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]int, 0, len(e.conns))
	for id := range e.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Shutdown closes every open connection with 1001 (going away) and waits for
// their read loops to finish. It returns the ids it closed.
func (e *Endpoint) Shutdown() []int {
	var closed []int
	var wg sync.WaitGroup

	for _, id := range e.IDs() {
		c, err := e.lookup(id)
		if err != nil {
			continue
		}
		if err := c.close(websocket.CloseGoingAway, ""); err != nil {
			if !errors.Is(err, ErrNotOpen) {
				c.forceClose(0)
			}
			continue
		}
		closed = append(closed, id)

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.forceClose(closeWait)
		}()
	}

	wg.Wait()
	return closed
}
