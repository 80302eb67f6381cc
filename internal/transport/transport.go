// Package transport defines the frame-level connection used by the chat client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrClosed is returned by Read when the connection was closed normally,
	// either by the peer or locally.
	ErrClosed = errors.New("transport closed")

	// ErrInvalidAddress is returned when an address cannot name a WebSocket endpoint.
	ErrInvalidAddress = errors.New("invalid address")
)

// Conn abstracts one WebSocket connection carrying text frames.
type Conn interface {
	// Read blocks until the next frame arrives.
	// Returns ErrClosed (possibly wrapped) on normal closure.
	Read(ctx context.Context) (string, error)

	// Write sends a single text frame.
	Write(ctx context.Context, frame string) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// ParseAddress validates a WebSocket address before any dial is attempted.
func ParseAddress(address string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: scheme %q is not ws or wss", ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, address)
	}
	if u.Fragment != "" {
		return nil, fmt.Errorf("%w: fragment not allowed in %q", ErrInvalidAddress, address)
	}
	return u, nil
}
