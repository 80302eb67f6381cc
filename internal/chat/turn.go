// Package chat holds the chat turns shown to the user.
package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a turn.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

// String returns the string representation of Role
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Turn is one message bubble. Assistant turns grow while their stream is open.
type Turn struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// NewID returns a new opaque, lexicographically sortable turn id.
func NewID() string {
	return ulid.Make().String()
}
