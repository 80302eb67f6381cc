package chat_test

import (
	"sync"
	"testing"

	"github.com/omochice/chatstream/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_Add(t *testing.T) {
	tr := chat.NewTranscript()

	user := tr.Add(chat.RoleUser, "hi")
	bot := tr.Add(chat.RoleAssistant, "hello")

	require.Equal(t, 2, tr.Len())
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, user.ID, bot.ID)
	assert.False(t, user.CreatedAt.IsZero())

	turns := tr.Turns()
	assert.Equal(t, []chat.Role{chat.RoleUser, chat.RoleAssistant}, []chat.Role{turns[0].Role, turns[1].Role})
	assert.Equal(t, "hello", turns[1].Text)
}

func TestTranscript_AppendText(t *testing.T) {
	tr := chat.NewTranscript()
	turn := tr.Add(chat.RoleAssistant, "Hel")

	got, ok := tr.AppendText(turn.ID, "lo")
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Text)

	assert.Equal(t, "Hello", tr.Turns()[0].Text)
}

func TestTranscript_AppendText_Unknown(t *testing.T) {
	tr := chat.NewTranscript()

	_, ok := tr.AppendText("missing", "x")
	assert.False(t, ok)
	assert.Zero(t, tr.Len())
}

func TestTranscript_TurnsIsACopy(t *testing.T) {
	tr := chat.NewTranscript()
	tr.Add(chat.RoleUser, "original")

	turns := tr.Turns()
	turns[0].Text = "mutated"

	assert.Equal(t, "original", tr.Turns()[0].Text)
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	tr := chat.NewTranscript()
	turn := tr.Add(chat.RoleAssistant, "")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AppendText(turn.ID, "x")
		}()
	}
	wg.Wait()

	assert.Len(t, tr.Turns()[0].Text, 10)
}

func TestRole_String(t *testing.T) {
	tests := []struct {
		role chat.Role
		want string
	}{
		{chat.RoleUser, "user"},
		{chat.RoleAssistant, "assistant"},
		{chat.Role(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.String())
		})
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := chat.NewID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
