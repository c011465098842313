// Package client is a WebSocket client for the bingo server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/server"
)

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("client closed")

// RequestError is an error reply from the server.
type RequestError struct {
	Code    string
	Kind    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client represents a WebSocket connection to the bingo server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	events    chan *server.Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	nextID    atomic.Uint64

	mu       sync.Mutex
	playerID string
	pending  map[string]chan *server.Message
}

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL: serverURL,
		send:      make(chan *server.Message, 64),
		events:    make(chan *server.Message, 256),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]chan *server.Message),
	}
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Debug("Connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	go c.readPump()
	go c.writePump()

	c.logger.Debug("Connected to server")
	return nil
}

// Close closes the connection. Events is closed once the read loop exits.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Events delivers engine events and any message that is not a reply to a
// request. It is closed when the connection ends.
func (c *Client) Events() <-chan *server.Message { return c.events }

// PlayerID returns the id bound by Hello.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Hello binds the connection to playerID.
func (c *Client) Hello(ctx context.Context, playerID string) (server.WelcomeData, error) {
	var welcome server.WelcomeData
	if err := c.request(ctx, server.MessageTypeHello, server.HelloData{PlayerID: playerID}, &welcome); err != nil {
		return server.WelcomeData{}, err
	}
	c.mu.Lock()
	c.playerID = playerID
	c.mu.Unlock()
	return welcome, nil
}

// Join buys into the current round. A nil cardNumber takes the lowest free
// card.
func (c *Client) Join(ctx context.Context, cardNumber *int, manualMark bool) (engine.JoinResult, error) {
	var res engine.JoinResult
	err := c.request(ctx, server.MessageTypeJoin, server.JoinData{CardNumber: cardNumber, ManualMark: manualMark}, &res)
	return res, err
}

// Leave withdraws from the round during card selection.
func (c *Client) Leave(ctx context.Context) error {
	return c.request(ctx, server.MessageTypeLeave, nil, nil)
}

// Mark marks a drawn number on the player's card.
func (c *Client) Mark(ctx context.Context, number int) (engine.MarkResult, error) {
	var res engine.MarkResult
	err := c.request(ctx, server.MessageTypeMark, server.MarkData{Number: number}, &res)
	return res, err
}

// Claim acknowledges a detected win.
func (c *Client) Claim(ctx context.Context) error {
	return c.request(ctx, server.MessageTypeClaim, nil, nil)
}

// Status fetches the current round summary.
func (c *Client) Status(ctx context.Context) (engine.Status, error) {
	var status engine.Status
	err := c.request(ctx, server.MessageTypeStatus, nil, &status)
	return status, err
}

// request sends a message and waits for the reply carrying its request id.
func (c *Client) request(ctx context.Context, t server.MessageType, data, out any) error {
	msg, err := server.NewMessage(t, data, time.Now())
	if err != nil {
		return err
	}
	msg.RequestID = strconv.FormatUint(c.nextID.Add(1), 10)

	reply := make(chan *server.Message, 1)
	c.mu.Lock()
	c.pending[msg.RequestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	select {
	case c.send <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}

	select {
	case resp := <-reply:
		if resp.Type == server.MessageTypeError {
			var e server.ErrorData
			if err := json.Unmarshal(resp.Data, &e); err != nil {
				return fmt.Errorf("decode error reply: %w", err)
			}
			return &RequestError{Code: e.Code, Kind: e.Kind, Message: e.Message}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode %s reply: %w", t, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		close(c.events)
		_ = c.Close()
	}()

	for {
		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)

		if msg.RequestID != "" {
			c.mu.Lock()
			reply, ok := c.pending[msg.RequestID]
			c.mu.Unlock()
			if ok {
				reply <- &msg
				continue
			}
		}

		select {
		case c.events <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
