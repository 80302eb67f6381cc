package stream_test

import (
	"testing"

	"github.com/omochice/chatstream/internal/chat"
	"github.com/omochice/chatstream/internal/stream"
	"github.com/omochice/chatstream/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []stream.Event) []stream.EventKind {
	out := make([]stream.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestReassembler_AppendsUntilDone(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	assert.Equal(t, []stream.EventKind{stream.EventStart}, kinds(r.Feed(`{"content":"Hel"}`)))
	assert.Equal(t, []stream.EventKind{stream.EventAppend}, kinds(r.Feed(`{"content":"lo"}`)))
	assert.Equal(t, []stream.EventKind{stream.EventEnd}, kinds(r.Feed(`{"done":true}`)))
	assert.False(t, r.Streaming())

	turns := tr.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, chat.RoleAssistant, turns[0].Role)
	assert.Equal(t, "Hello", turns[0].Text)

	events := r.Feed(`{"content":"World"}`)
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventStart, events[0].Kind)

	turns = tr.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "Hello", turns[0].Text)
	assert.Equal(t, "World", turns[1].Text)
}

func TestReassembler_ContentPrecedence(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	r.Feed(`{"content":"x","text":"y"}`)

	require.Equal(t, 1, tr.Len())
	assert.Equal(t, "x", tr.Turns()[0].Text)
}

func TestReassembler_PlainText(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	events := r.Feed("Hello there")

	require.Len(t, events, 1)
	assert.Equal(t, "Hello there", events[0].Turn.Text)
	assert.True(t, r.Streaming())
}

func TestReassembler_SentinelClosesStream(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	start := r.Feed("partial")
	events := r.Feed("[DONE]")

	require.Len(t, events, 1)
	assert.Equal(t, stream.EventEnd, events[0].Kind)
	assert.Equal(t, start[0].Turn.ID, events[0].Turn.ID)
	assert.False(t, r.Streaming())
	assert.Equal(t, "partial", tr.Turns()[0].Text)
}

func TestReassembler_ChunkAppliedBeforeEnd(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	r.Feed(`{"content":"a"}`)
	events := r.Feed(`{"type":"done","content":"b"}`)

	assert.Equal(t, []stream.EventKind{stream.EventAppend, stream.EventEnd}, kinds(events))
	assert.Equal(t, "ab", tr.Turns()[0].Text)

	r.Feed(`{"content":"c"}`)
	assert.Equal(t, 2, tr.Len())
}

func TestReassembler_EmptyChunkIgnored(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	events := r.Apply(protocol.Frame{Structured: true})

	assert.Empty(t, events)
	assert.Zero(t, tr.Len())
	assert.False(t, r.Streaming())
}

func TestReassembler_EndWithoutStream(t *testing.T) {
	r := stream.New(chat.NewTranscript())

	events := r.Feed(`{"done":true}`)

	require.Len(t, events, 1)
	assert.Equal(t, stream.EventEnd, events[0].Kind)
	assert.Empty(t, events[0].Turn.ID)
	assert.False(t, r.End())
}

func TestReassembler_EndForcesNewTurn(t *testing.T) {
	tr := chat.NewTranscript()
	r := stream.New(tr)

	r.Feed("first")
	assert.True(t, r.End())
	r.Feed("second")

	turns := tr.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[1].Text)
}

// forgetfulStore drops every turn right after creating it.
type forgetfulStore struct {
	added int
}

func (s *forgetfulStore) Add(role chat.Role, text string) chat.Turn {
	s.added++
	return chat.Turn{ID: chat.NewID(), Role: role, Text: text}
}

func (s *forgetfulStore) AppendText(string, string) (chat.Turn, bool) {
	return chat.Turn{}, false
}

func TestReassembler_MissingTurnStartsNewOne(t *testing.T) {
	store := &forgetfulStore{}
	r := stream.New(store)

	r.Feed("a")
	events := r.Feed("b")

	require.Len(t, events, 1)
	assert.Equal(t, stream.EventStart, events[0].Kind)
	assert.Equal(t, 2, store.added)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "start", stream.EventStart.String())
	assert.Equal(t, "append", stream.EventAppend.String())
	assert.Equal(t, "end", stream.EventEnd.String())
	assert.Equal(t, "unknown", stream.EventKind(7).String())
}
