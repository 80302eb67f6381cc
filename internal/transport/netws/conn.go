// Package netws provides a low-level WebSocket transport built on gobwas/ws.
// It works directly on net.Conn without an intermediate message buffer.
package netws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/chatstream/internal/transport"
)

// Conn adapts a gobwas/ws client connection to transport.Conn.
type Conn struct {
	conn      net.Conn
	reader    io.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established client connection. br is the reader returned
// by the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn, reader: conn}
	if br != nil {
		c.reader = br
	}
	return c
}

// Read implements transport.Conn.
// Control frames are answered inline; text and binary frames are returned as text.
func (c *Conn) Read(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	rw := struct {
		io.Reader
		io.Writer
	}{c.reader, lockedWriter{c}}

	data, _, err := wsutil.ReadServerData(rw)
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
	return wsutil.WriteClientText(c.conn, []byte(frame))
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serializes control-frame replies with regular writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

func isNormalClosure(err error) bool {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code == ws.StatusNormalClosure || closed.Code == ws.StatusGoingAway
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}

// Dialer opens gobwas/ws connections.
type Dialer struct {
	// HandshakeTimeout bounds the opening handshake. Zero means no timeout.
	HandshakeTimeout time.Duration
}

// NewDialer creates a Dialer.
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	return &Dialer{HandshakeTimeout: handshakeTimeout}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, address string) (transport.Conn, error) {
	dialer := ws.Dialer{Timeout: d.HandshakeTimeout}

	conn, br, _, err := dialer.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, br), nil
}
