// Package ws provides the default WebSocket transport, built on gorilla/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/chatstream/internal/transport"
)

const closeGracePeriod = time.Second

// Conn adapts gorilla/websocket to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closeErr   error
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements transport.Conn.
// Text and binary frames are both returned as text. Cancelling ctx closes the connection.
func (c *Conn) Read(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if isNormalClosure(err) {
			return "", fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		return "", err
	}
	return string(data), nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Close implements transport.Conn.
// Sends a normal close frame before closing the underlying connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func isNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

// Dialer opens gorilla/websocket connections.
type Dialer struct {
	// HandshakeTimeout bounds the opening handshake. Zero means no timeout.
	HandshakeTimeout time.Duration
	// Header is sent with the opening handshake.
	Header http.Header
}

// NewDialer creates a Dialer.
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	return &Dialer{HandshakeTimeout: handshakeTimeout}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, address string) (transport.Conn, error) {
	// gorilla only honors deadlines during the handshake, so cancellation
	// closes the raw connection until the upgrade completes.
	var stop func() bool
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		NetDialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			var nd net.Dialer
			c, err := nd.DialContext(dialCtx, network, addr)
			if err != nil {
				return nil, err
			}
			stop = context.AfterFunc(ctx, func() { _ = c.Close() })
			return c, nil
		},
	}

	conn, resp, err := dialer.DialContext(ctx, address, d.Header)
	if stop != nil {
		stop()
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return NewConnWithAddr(conn, conn.RemoteAddr().String()), nil
}
