// Package stream turns classified frames into append-or-new-turn decisions.
package stream

import (
	"github.com/omochice/chatstream/internal/chat"
	"github.com/omochice/chatstream/pkg/protocol"
)

// Store is where streamed turns live. *chat.Transcript satisfies it.
type Store interface {
	Add(role chat.Role, text string) chat.Turn
	AppendText(id, chunk string) (chat.Turn, bool)
}

// EventKind describes what a frame did to the turn list.
type EventKind int

const (
	// EventStart means a new assistant turn was created with the chunk as its text.
	EventStart EventKind = iota
	// EventAppend means the chunk was appended to the open turn.
	EventAppend
	// EventEnd means the stream was closed. Turn is zero if none was open.
	EventEnd
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventAppend:
		return "append"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event reports one change made by the Reassembler.
type Event struct {
	Kind  EventKind
	Turn  chat.Turn
	Chunk string
}

// Reassembler tracks the assistant turn currently receiving chunks.
// It is not safe for concurrent use; callers serialize access.
type Reassembler struct {
	store  Store
	open   bool
	turnID string
}

// New creates a Reassembler writing into store.
func New(store Store) *Reassembler {
	return &Reassembler{store: store}
}

// Feed classifies a raw frame and applies it.
func (r *Reassembler) Feed(raw string) []Event {
	return r.Apply(protocol.Decode(raw))
}

// Apply applies a classified frame. The chunk is applied before the end signal.
func (r *Reassembler) Apply(f protocol.Frame) []Event {
	var events []Event
	if f.HasChunk() {
		events = append(events, r.appendChunk(f.Chunk))
	}
	if f.Done {
		events = append(events, r.end())
	}
	return events
}

// End closes the open stream so the next chunk starts a new turn.
// It reports whether a stream was open.
func (r *Reassembler) End() bool {
	wasOpen := r.open
	r.end()
	return wasOpen
}

// Streaming reports whether a turn is currently receiving chunks.
func (r *Reassembler) Streaming() bool {
	return r.open
}

func (r *Reassembler) appendChunk(chunk string) Event {
	if r.open {
		if turn, ok := r.store.AppendText(r.turnID, chunk); ok {
			return Event{Kind: EventAppend, Turn: turn, Chunk: chunk}
		}
	}

	turn := r.store.Add(chat.RoleAssistant, chunk)
	r.open = true
	r.turnID = turn.ID
	return Event{Kind: EventStart, Turn: turn, Chunk: chunk}
}

func (r *Reassembler) end() Event {
	ev := Event{Kind: EventEnd}
	if r.open {
		ev.Turn.ID = r.turnID
		ev.Turn.Role = chat.RoleAssistant
	}
	r.open = false
	r.turnID = ""
	return ev
}
