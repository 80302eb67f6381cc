// Package client manages the single WebSocket connection of a chat session.
package client

// Client is the connection surface used by a chat session.
// *Manager satisfies it.
type Client interface {
	Connect(address string)
	SetAddress(address string)
	Send(payload any) error
	Close()
	Reconnect()
	Shutdown()
	Snapshot() Snapshot
	IsConnected() bool
	LastError() string
	Address() string
}

var _ Client = (*Manager)(nil)
