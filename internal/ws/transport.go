// Package ws abstracts the streaming transport behind a duplex channel
// interface so the book engine's state machine can be tested without a
// real socket.
package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single live duplex connection.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens connections. Exactly one Conn is live at a time; the caller
// owns reconnect policy.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials real websocket connections with ping/pong keepalive.
type GorillaDialer struct {
	PongWait time.Duration
}

// NewGorillaDialer returns a Dialer with the default keepalive window.
func NewGorillaDialer() *GorillaDialer {
	return &GorillaDialer{PongWait: 60 * time.Second}
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	pongWait := d.PongWait
	if pongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	return &gorillaConn{conn: conn}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (c *gorillaConn) WriteJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	_, message, err := c.conn.ReadMessage()
	return message, err
}

func (c *gorillaConn) Close() error {
	return c.conn.Close()
}
