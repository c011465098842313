package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/bingohall/internal/engine"
)

// MessageType represents a WebSocket message type with type safety
type MessageType string

const (
	// Client to server messages
	MessageTypeHello  MessageType = "hello"
	MessageTypeJoin   MessageType = "join"
	MessageTypeLeave  MessageType = "leave"
	MessageTypeMark   MessageType = "mark"
	MessageTypeClaim  MessageType = "claim"
	MessageTypeStatus MessageType = "status"

	// Server to client messages
	MessageTypeWelcome MessageType = "welcome"
	MessageTypeAck     MessageType = "ack"
	MessageTypeError   MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Message represents the base WebSocket message structure. Engine events are
// sent with their event type as Type.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message stamped with now.
func NewMessage(messageType MessageType, data any, now time.Time) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: now,
	}, nil
}

// EventMessage wraps an engine event for broadcast.
func EventMessage(event engine.Event) (*Message, error) {
	return NewMessage(MessageType(event.EventType()), event, event.Timestamp())
}

// Client → Server Messages

type HelloData struct {
	PlayerID string `json:"playerId"`
}

type JoinData struct {
	CardNumber *int `json:"cardNumber,omitempty"`
	ManualMark bool `json:"manualMark,omitempty"`
}

type MarkData struct {
	Number int `json:"number"`
}

// Server → Client Messages

type WelcomeData struct {
	PlayerID string        `json:"playerId"`
	Status   engine.Status `json:"status"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Error codes for failures outside the engine.
const (
	CodeInvalidMessage   = "invalid_message"
	CodeUnknownType      = "unknown_message_type"
	CodeNotAuthenticated = "not_authenticated"
	CodeInvalidHello     = "invalid_hello"
	CodeEngineHalted     = "engine_halted"
	CodeInternal         = "internal_error"
)

// errorData maps an engine error onto the wire error payload.
func errorData(err error) ErrorData {
	var ie *engine.IntentError
	if errors.As(err, &ie) {
		return ErrorData{Code: ie.Code.Error(), Kind: ie.Kind.String(), Message: ie.Reason}
	}
	if errors.Is(err, errBadPayload) {
		return ErrorData{Code: CodeInvalidMessage, Message: "Failed to parse message data"}
	}
	if errors.Is(err, engine.ErrEngineHalted) || errors.Is(err, engine.ErrNotStarted) {
		return ErrorData{Code: CodeEngineHalted, Message: err.Error()}
	}
	return ErrorData{Code: CodeInternal, Message: err.Error()}
}
