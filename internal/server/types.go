// Package server defines the event names, frame envelope and payload types
// exchanged with chat clients, plus small helpers shared by the handlers.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Inbound event names.
const (
	EventConnect           = "connect"
	EventDisconnect        = "disconnect"
	EventJoin              = "join"
	EventLeave             = "leave"
	EventSendMessage       = "send_message"
	EventGetMessageHistory = "get_message_history"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventPing              = "ping"
)

// Outbound event names.
const (
	EventAck              = "ack"
	EventConnectionStatus = "connection_status"
	EventJoinConfirmation = "join_confirmation"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventReceiveMessage   = "receive_message"
	EventMessageDelivered = "message_delivered"
	EventUserTyping       = "user_typing"
	EventError            = "error"
)

// Failure reasons reported to the originating client.
const (
	ReasonMissingFields  = "missing username or text"
	ReasonDatabase       = "database error"
	ReasonServer         = "server error"
	ReasonInvalidFrame   = "invalid frame"
	ReasonInvalidPayload = "invalid payload"
	ReasonUnknownEvent   = "unknown event"
	ReasonRateLimited    = "rate limited"
)

// timestampLayout renders instants as ISO-8601 UTC with microsecond precision.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Frame is the envelope of every WebSocket message. Ack is set on inbound
// frames that expect a completion result and echoed on the matching ack frame.
type Frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// UserPayload carries the identity for join, leave and typing events.
type UserPayload struct {
	Username string `json:"username"`
}

// SendMessagePayload is the data of a send_message event.
type SendMessagePayload struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// HistoryRequest is the data of a get_message_history event.
type HistoryRequest struct {
	Limit *int `json:"limit,omitempty"`
}

// ChatMessage is a persisted message as broadcast and returned in history.
type ChatMessage struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	StoreID   string `json:"_id"`
}

// Result is the generic completion result.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SendResult is the completion result of send_message.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	DBID      string `json:"dbId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HistoryResult is the completion result of get_message_history.
type HistoryResult struct {
	Success  bool          `json:"success"`
	Messages []ChatMessage `json:"messages"`
	Count    int           `json:"count"`
	Error    string        `json:"error,omitempty"`
}

// PongResult is the completion result of ping.
type PongResult struct {
	Pong      bool   `json:"pong"`
	Timestamp string `json:"timestamp"`
}

// StatusPayload is sent with connection_status and join_confirmation.
type StatusPayload struct {
	Status string `json:"status"`
}

// TypingPayload is sent with user_typing.
type TypingPayload struct {
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
}

// DeliveredPayload is sent with message_delivered.
type DeliveredPayload struct {
	MessageID string `json:"messageId,omitempty"`
	DBID      string `json:"dbId"`
	Timestamp string `json:"timestamp"`
}

// ErrorPayload is sent with error events.
type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

var errEmptyFrame = errors.New("frame has no event")

// DecodeFrame parses a raw WebSocket message into a Frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	f.Event = strings.TrimSpace(f.Event)
	if f.Event == "" {
		return Frame{}, errEmptyFrame
	}
	return f, nil
}

func encodeFrame(event string, ack *int64, data any) ([]byte, error) {
	b, err := json.Marshal(outboundFrame{Event: event, Ack: ack, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return b, nil
}

// decodeData unmarshals an event payload; a missing or null payload leaves v zero.
func decodeData(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, v)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
