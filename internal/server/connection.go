package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/bingohall/internal/engine"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outbound messages buffered per connection before it is dropped
	sendBuffer = 256

	// Upper bound on a join or leave, which wait on the wallet
	intentTimeout = 10 * time.Second
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn     *websocket.Conn
	server   *Server
	send     chan *Message
	playerID string
	logger   *log.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	once     sync.Once
}

func newConnection(conn *websocket.Conn, s *Server) *Connection {
	ctx, cancel := context.WithCancel(s.ctx)

	return &Connection{
		conn:   conn,
		server: s,
		send:   make(chan *Message, sendBuffer),
		logger: s.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection. It is safe to call more than once and from
// an event subscriber.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// SendMessage queues msg without blocking. A connection that cannot keep up
// is closed.
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.PlayerID())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// PlayerID returns the player bound by hello, or "".
func (c *Connection) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Connection) setPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket read error", "error", err)
			}
			var (
				syntax   *json.SyntaxError
				mismatch *json.UnmarshalTypeError
			)
			if errors.As(err, &syntax) || errors.As(err, &mismatch) {
				c.sendError("", ErrorData{Code: CodeInvalidMessage, Message: "Malformed JSON"})
				continue
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.PlayerID())

	switch msg.Type {
	case MessageTypeHello:
		var data HelloData
		if err := decode(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, ErrorData{Code: CodeInvalidMessage, Message: "Failed to parse hello data"})
			return
		}
		c.handleHello(msg.RequestID, data)

	case MessageTypeStatus:
		c.sendReply(MessageTypeAck, msg.RequestID, c.server.rounds.Status())

	case MessageTypeJoin, MessageTypeLeave, MessageTypeMark, MessageTypeClaim:
		playerID := c.PlayerID()
		if playerID == "" {
			c.sendError(msg.RequestID, ErrorData{Code: CodeNotAuthenticated, Message: "Send hello first"})
			return
		}
		c.handleIntent(msg, playerID)

	default:
		c.sendError(msg.RequestID, ErrorData{Code: CodeUnknownType, Message: "Unknown message type: " + msg.Type.String()})
	}
}

func (c *Connection) handleHello(requestID string, data HelloData) {
	if data.PlayerID == "" {
		c.sendError(requestID, ErrorData{Code: CodeInvalidHello, Message: "Player id required"})
		return
	}
	if current := c.PlayerID(); current != "" && current != data.PlayerID {
		c.sendError(requestID, ErrorData{Code: CodeInvalidHello, Message: "Connection already bound to " + current})
		return
	}

	c.setPlayer(data.PlayerID)
	c.logger.Info("Player connected", "player", data.PlayerID)
	c.sendReply(MessageTypeWelcome, requestID, WelcomeData{
		PlayerID: data.PlayerID,
		Status:   c.server.rounds.Status(),
	})
}

func (c *Connection) handleIntent(msg *Message, playerID string) {
	started := c.server.clock.Now()
	result, err := c.runIntent(msg, playerID)
	c.server.recordIntent(msg.Type.String(), err, started)

	if err != nil {
		data := errorData(err)
		c.logger.Debug("Intent rejected", "type", msg.Type, "player", playerID, "code", data.Code)
		c.sendError(msg.RequestID, data)
		return
	}
	c.sendReply(MessageTypeAck, msg.RequestID, result)
}

func (c *Connection) runIntent(msg *Message, playerID string) (any, error) {
	switch msg.Type {
	case MessageTypeJoin:
		var data JoinData
		if err := decode(msg.Data, &data); err != nil {
			return nil, errBadPayload
		}
		ctx, cancel := context.WithTimeout(c.ctx, intentTimeout)
		defer cancel()
		return c.server.rounds.Join(ctx, engine.JoinRequest{
			PlayerID:   playerID,
			CardNumber: data.CardNumber,
			ManualMark: data.ManualMark,
		})

	case MessageTypeLeave:
		ctx, cancel := context.WithTimeout(c.ctx, intentTimeout)
		defer cancel()
		if err := c.server.rounds.Leave(ctx, playerID); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case MessageTypeMark:
		var data MarkData
		if err := decode(msg.Data, &data); err != nil {
			return nil, errBadPayload
		}
		return c.server.rounds.Mark(playerID, data.Number)

	default:
		if err := c.server.rounds.Claim(playerID); err != nil {
			return nil, err
		}
		return struct{}{}, nil
	}
}

var errBadPayload = errors.New(CodeInvalidMessage)

// decode accepts an empty payload as the zero value.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (c *Connection) sendReply(t MessageType, requestID string, data any) {
	msg, err := NewMessage(t, data, c.server.clock.Now())
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg)
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID string, data ErrorData) {
	c.sendReply(MessageTypeError, requestID, data)
}
