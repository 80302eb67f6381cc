package chat

import (
	"sync"
	"time"
)

// Transcript is the ordered list of turns in a session.
// Turns are only ever appended or extended in place, never reordered or removed.
type Transcript struct {
	turns []Turn
	index map[string]int
	now   func() time.Time
	newID func() string
	mu    sync.RWMutex
}

// NewTranscript creates an empty Transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		index: make(map[string]int),
		now:   time.Now,
		newID: NewID,
	}
}

// Add appends a new turn and returns it.
func (t *Transcript) Add(role Role, text string) Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn := Turn{
		ID:        t.newID(),
		Role:      role,
		Text:      text,
		CreatedAt: t.now(),
	}
	t.index[turn.ID] = len(t.turns)
	t.turns = append(t.turns, turn)
	return turn
}

// AppendText extends the text of the turn with the given id.
// It reports false if no such turn exists.
func (t *Transcript) AppendText(id, chunk string) (Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return Turn{}, false
	}
	t.turns[i].Text += chunk
	return t.turns[i], true
}

// Turns returns a copy of all turns in order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
