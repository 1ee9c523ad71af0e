package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
)

// Conn serializes writes to an upgraded connection. The underlying
// gorilla connection supports only one concurrent writer, and a stream
// handler has two write sources: the event pusher goroutine and action
// replies on the reader loop.
type Conn struct {
	wmu  sync.Mutex
	conn *websocket.Conn
}

// NewConn wraps an upgraded connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// WriteTyped sends a strongly-typed payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// WriteSuccess sends a typed SuccessResponse over the WebSocket.
func (c *Conn) WriteSuccess(data interface{}) error {
	return c.WriteTyped(SuccessResponse{
		Event: EventSuccess,
		Data:  data,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// Reads stay on the single handler goroutine and need no lock.
func (c *Conn) ReadJSON(v interface{}) error {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	return c.conn.ReadJSON(v)
}
