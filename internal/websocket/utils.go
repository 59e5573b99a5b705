package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// Clients ping at least this often while a session is open.
	readWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteEvent wraps data in an Envelope.
func WriteEvent(conn *websocket.Conn, event Event, data any) error {
	return WriteTyped(conn, Envelope{Event: event, Data: data})
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, msg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event:   EventError,
		Code:    code,
		Message: msg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}
